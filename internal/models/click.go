package models

import (
	"time"
)

// ClickLog один зафиксированный переход по короткой ссылке.
// Строки только добавляются и удаляются каскадом вместе с mapping.
type ClickLog struct {
	ID           int64     `json:"id"`
	URLMappingID int64     `json:"url_mapping_id"`
	ClickedAt    time.Time `json:"clicked_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Country      *string   `json:"country,omitempty"`
	City         *string   `json:"city,omitempty"`
}

// ClickEvent событие клика, уходящее в worker pool из хендлера редиректа.
type ClickEvent struct {
	MappingID int64
	IPAddress string
	UserAgent string
}

// CountryCount пара страна/количество для гистограммы по странам.
type CountryCount struct {
	Country string
	Count   int64
}

// MappingStats агрегированная статистика по одной короткой ссылке.
type MappingStats struct {
	ID              int64            `json:"id"`
	OriginalURL     string           `json:"original_url"`
	ShortCode       string           `json:"short_code"`
	TotalClicks     int64            `json:"total_clicks"`
	CreatedAt       time.Time        `json:"created_at"`
	LastAccessedAt  *time.Time       `json:"last_accessed_at,omitempty"`
	RecentClicks    []ClickLog       `json:"recent_clicks"`
	ClicksByCountry map[string]int64 `json:"clicks_by_country"`
	CountryOrder    []string         `json:"country_order"`
}
