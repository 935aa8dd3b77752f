package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dkhromov/urlmapper/internal/models"
	"github.com/dkhromov/urlmapper/internal/repository"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrInvalidURL = errors.New("invalid URL")
	ErrNotFound   = errors.New("short code not found")
)

// Константы сервиса
const (
	maxURLLength      = 2048
	createAttempts    = 3  // Сколько раз перегенерировать код при гонке на вставке
	recentClicksLimit = 50 // Сколько последних кликов отдаём в статистике
	countryTopLimit   = 10 // Сколько стран держим в гистограмме
)

// MappingService интерфейс сервиса коротких ссылок
type MappingService interface {
	CreateMapping(ctx context.Context, input *models.CreateMappingInput) (*models.URLMapping, error)
	Resolve(ctx context.Context, code string) (*models.URLMapping, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.URLMapping, error)
	DeleteMapping(ctx context.Context, code string, ownerID string) error
	GetStatistics(ctx context.Context, code string) (*models.MappingStats, error)
}

type mappingService struct {
	mappingRepo repository.MappingRepository
	clickRepo   repository.ClickRepository
	generator   *CodeGenerator
	logger      *zap.Logger
}

// NewMappingService создаёт новый экземпляр сервиса
func NewMappingService(
	mappingRepo repository.MappingRepository,
	clickRepo repository.ClickRepository,
	generator *CodeGenerator,
	logger *zap.Logger,
) MappingService {
	return &mappingService{
		mappingRepo: mappingRepo,
		clickRepo:   clickRepo,
		generator:   generator,
		logger:      logger,
	}
}

// CreateMapping создаёт новую короткую ссылку.
//
// Без кастомного кода повторная отправка того же нормализованного URL тем же
// владельцем возвращает существующий mapping, а не дубликат. Гонка
// check-then-insert на сгенерированном коде разрешается перегенерацией:
// unique-индекс отбивает вставку, сервис пробует новый код.
func (s *mappingService) CreateMapping(ctx context.Context, input *models.CreateMappingInput) (*models.URLMapping, error) {
	normalized, err := normalizeURL(input.OriginalURL)
	if err != nil {
		return nil, err
	}

	custom := strings.TrimSpace(input.CustomCode)

	if custom == "" {
		existing, err := s.mappingRepo.GetByOriginalURL(ctx, normalized, input.OwnerID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrMappingNotFound) {
			return nil, err
		}
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := s.generator.Generate(ctx, custom, s.mappingRepo.ExistsByCode)
		if err != nil {
			return nil, err
		}

		mapping := &models.URLMapping{
			ShortCode:   code,
			OriginalURL: normalized,
			CreatedAt:   time.Now().UTC(),
			OwnerID:     input.OwnerID,
		}

		err = s.mappingRepo.Create(ctx, mapping)
		if err == nil {
			return mapping, nil
		}
		if errors.Is(err, repository.ErrCodeExists) {
			if custom != "" {
				// Кастомный код проиграл гонку — это конфликт, не повод перегенерировать
				return nil, ErrCodeTaken
			}
			s.logger.Warn("Сгенерированный код проиграл гонку на вставке",
				zap.String("short_code", code),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("failed to create mapping after %d attempts", createAttempts)
}

// Resolve находит mapping по коду для горячего пути редиректа.
// Только чтение: никаких счётчиков и походов за геолокацией здесь нет.
func (s *mappingService) Resolve(ctx context.Context, code string) (*models.URLMapping, error) {
	mapping, err := s.mappingRepo.GetByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return mapping, nil
}

// ListByOwner возвращает ссылки владельца, новые первыми.
func (s *mappingService) ListByOwner(ctx context.Context, ownerID string) ([]models.URLMapping, error) {
	return s.mappingRepo.GetByOwner(ctx, ownerID)
}

// DeleteMapping удаляет ссылку владельца. Клики уходят каскадом на стороне БД.
func (s *mappingService) DeleteMapping(ctx context.Context, code string, ownerID string) error {
	err := s.mappingRepo.Delete(ctx, code, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// GetStatistics собирает отчёт: счётчик из mapping, 50 последних кликов и
// топ-10 стран по всем кликам. Счётчик может опережать число строк —
// запись кликов асинхронная.
func (s *mappingService) GetStatistics(ctx context.Context, code string) (*models.MappingStats, error) {
	mapping, err := s.mappingRepo.GetByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	recent, err := s.clickRepo.RecentClicks(ctx, mapping.ID, recentClicksLimit)
	if err != nil {
		return nil, err
	}

	counts, err := s.clickRepo.CountryCounts(ctx, mapping.ID, countryTopLimit)
	if err != nil {
		return nil, err
	}

	byCountry := make(map[string]int64, len(counts))
	order := make([]string, 0, len(counts))
	for _, cc := range counts {
		byCountry[cc.Country] = cc.Count
		order = append(order, cc.Country)
	}

	return &models.MappingStats{
		ID:              mapping.ID,
		OriginalURL:     mapping.OriginalURL,
		ShortCode:       mapping.ShortCode,
		TotalClicks:     mapping.ClickCount,
		CreatedAt:       mapping.CreatedAt,
		LastAccessedAt:  mapping.LastAccessedAt,
		RecentClicks:    recent,
		ClicksByCountry: byCountry,
		CountryOrder:    order,
	}, nil
}

// normalizeURL приводит URL к абсолютному виду: без схемы подставляется
// https://, присутствие схемы распознаётся без учёта регистра, сама строка
// при этом не переписывается.
func normalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidURL
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		trimmed = "https://" + trimmed
	}

	if len(trimmed) > maxURLLength {
		return "", ErrInvalidURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", ErrInvalidURL
	}

	return trimmed, nil
}
