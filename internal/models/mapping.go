package models

import (
	"time"
)

// URLMapping связь короткого кода с оригинальным URL плюс агрегаты по кликам.
// OwnerID — слабая ссылка на внешнюю учётку (только идентификатор, без объекта).
type URLMapping struct {
	ID             int64      `json:"id"`
	OriginalURL    string     `json:"original_url"`
	ShortCode      string     `json:"short_code"`
	CreatedAt      time.Time  `json:"created_at"`
	ClickCount     int64      `json:"click_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	OwnerID        *string    `json:"owner_id,omitempty"`
}

type CreateMappingInput struct {
	OriginalURL string
	CustomCode  string
	OwnerID     *string
}

type MappingResponse struct {
	ID             int64      `json:"id"`
	OriginalURL    string     `json:"original_url"`
	ShortCode      string     `json:"short_code"`
	ShortURL       string     `json:"short_url"`
	CreatedAt      time.Time  `json:"created_at"`
	ClickCount     int64      `json:"click_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}
