package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkhromov/urlmapper/internal/config"
	"github.com/dkhromov/urlmapper/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GeoResolver отдаёт примерную географию по IP. Никогда не возвращает
// ошибку: любая неудача — это просто пустые страна и город.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (country, city string)
}

// geoResolver клиент ip-api.com с redis-кэшем результатов и клиентским
// rate limiter: внешний сервис сам ограничивает нас, упираться в его
// лимит на каждом клике нет смысла.
type geoResolver struct {
	cfg     config.GeoConfig
	cache   repository.GeoCacheRepository
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewGeoResolver(cfg config.GeoConfig, cache repository.GeoCacheRepository, logger *zap.Logger) GeoResolver {
	return &geoResolver{
		cfg:     cfg,
		cache:   cache,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}
}

type geoAPIResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	City    string `json:"city"`
}

func (g *geoResolver) Resolve(ctx context.Context, ip string) (string, string) {
	if strings.TrimSpace(ip) == "" {
		return "", ""
	}

	// Локальные и приватные адреса гео-сервис всё равно не знает
	if isLocalOrPrivateIP(ip) {
		return "Local", "Local"
	}

	if g.cache != nil {
		if loc, err := g.cache.Get(ctx, ip); err == nil {
			return loc.Country, loc.City
		}
	}

	loc := g.lookup(ctx, ip)

	if g.cache != nil {
		// Кэшируем и неудачи: повторный lookup того же IP бесполезен
		if err := g.cache.Set(ctx, ip, loc, g.cfg.CacheTTL); err != nil {
			g.logger.Debug("Не удалось закэшировать геолокацию", zap.String("ip", ip), zap.Error(err))
		}
	}

	return loc.Country, loc.City
}

// lookup один поход во внешний API. Все ветки отказа сводятся к пустому
// результату: таймаут, не-2xx, кривой payload, ответ со статусом fail.
func (g *geoResolver) lookup(ctx context.Context, ip string) *repository.GeoLocation {
	empty := &repository.GeoLocation{}

	if err := g.limiter.Wait(ctx); err != nil {
		return empty
	}

	endpoint := strings.TrimRight(g.cfg.APIURL, "/") + "/" + url.PathEscape(ip) + "?fields=status,country,city"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return empty
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("Гео-сервис недоступен", zap.String("ip", ip), zap.Error(err))
		return empty
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("Гео-сервис вернул ошибку", zap.String("ip", ip), zap.Int("status", resp.StatusCode))
		return empty
	}

	var out geoAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		g.logger.Warn("Не удалось разобрать ответ гео-сервиса", zap.String("ip", ip), zap.Error(err))
		return empty
	}
	if out.Status == "fail" {
		return empty
	}

	return &repository.GeoLocation{Country: out.Country, City: out.City}
}

// isLocalOrPrivateIP распознаёт loopback и RFC1918-диапазоны.
func isLocalOrPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}
	if v4 := parsed.To4(); v4 != nil {
		switch {
		case v4[0] == 10:
			return true
		case v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31:
			return true
		case v4[0] == 192 && v4[1] == 168:
			return true
		}
	}
	return false
}
