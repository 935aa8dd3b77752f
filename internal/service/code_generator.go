package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Ошибки генератора кодов
var (
	ErrInvalidCode = errors.New("invalid custom code")
	ErrCodeTaken   = errors.New("custom code already taken")
)

const (
	codeAlphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	generatedLength  = 7
	fallbackLength   = 8
	maxCodeAttempts  = 10
	customCodeMinLen = 3
	customCodeMaxLen = 20
)

// ExistsFunc проверяет занятость кода. Генератор только предлагает код;
// финальный арбитр уникальности — unique-индекс в хранилище.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// CodeGenerator генерирует короткие коды из 62-символьного алфавита.
// Источник случайности передаётся явно, чтобы в тестах его можно было
// подменить детерминированным.
type CodeGenerator struct {
	alphabet string
	random   io.Reader
}

func NewCodeGenerator(random io.Reader) *CodeGenerator {
	if random == nil {
		random = rand.Reader
	}
	return &CodeGenerator{
		alphabet: codeAlphabet,
		random:   random,
	}
}

// Generate возвращает код для нового mapping.
//
// Кастомный код: trim, проверка длины и набора символов, затем проверка
// занятости. Сгенерированный: до 10 проверенных попыток длиной 7; если все
// столкнулись, одна непроверенная попытка длиной 8 возвращается как есть —
// задержка ограничена, а остаточная вероятность коллизии на длине 8
// пренебрежимо мала и разрешается unique-индексом при вставке.
func (g *CodeGenerator) Generate(ctx context.Context, customCode string, exists ExistsFunc) (string, error) {
	if trimmed := strings.TrimSpace(customCode); trimmed != "" {
		if !g.IsValidCustomCode(trimmed) {
			return "", ErrInvalidCode
		}
		taken, err := exists(ctx, trimmed)
		if err != nil {
			return "", fmt.Errorf("failed to check custom code: %w", err)
		}
		if taken {
			return "", ErrCodeTaken
		}
		return trimmed, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := g.randomCode(generatedLength)
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check generated code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}

	return g.randomCode(fallbackLength)
}

// IsValidCustomCode проверяет длину 3-20 и набор [A-Za-z0-9_-].
func (g *CodeGenerator) IsValidCustomCode(code string) bool {
	if len(code) < customCodeMinLen || len(code) > customCodeMaxLen {
		return false
	}
	for _, c := range code {
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') &&
			!(c >= '0' && c <= '9') && c != '-' && c != '_' {
			return false
		}
	}
	return true
}

// randomCode отображает случайные байты в алфавит через byte mod 62.
// 256 не делится на 62 нацело, так что распределение чуть смещено к началу
// алфавита; смещение мало и принято осознанно.
func (g *CodeGenerator) randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	var b strings.Builder
	b.Grow(length)
	for _, c := range buf {
		b.WriteByte(g.alphabet[int(c)%len(g.alphabet)])
	}
	return b.String(), nil
}
