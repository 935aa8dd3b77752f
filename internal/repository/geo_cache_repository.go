package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GeoLocation закэшированный результат геолокации по IP.
// Пустые поля тоже кэшируются: неудачный lookup не надо повторять
// на каждый клик с того же адреса.
type GeoLocation struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

type GeoCacheRepository interface {
	Get(ctx context.Context, ip string) (*GeoLocation, error)
	Set(ctx context.Context, ip string, loc *GeoLocation, ttl time.Duration) error
}

type geoCacheRepository struct {
	redis *RedisDB
}

func NewGeoCacheRepository(redis *RedisDB) GeoCacheRepository {
	return &geoCacheRepository{redis: redis}
}

func (r *geoCacheRepository) Get(ctx context.Context, ip string) (*GeoLocation, error) {
	data, err := r.redis.Client.Get(ctx, r.key(ip)).Bytes()
	if err != nil {
		return nil, err
	}

	var loc GeoLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal geo location: %w", err)
	}

	return &loc, nil
}

func (r *geoCacheRepository) Set(ctx context.Context, ip string, loc *GeoLocation, ttl time.Duration) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to marshal geo location: %w", err)
	}

	return r.redis.Client.Set(ctx, r.key(ip), data, ttl).Err()
}

func (r *geoCacheRepository) key(ip string) string {
	return "geo:" + ip
}
