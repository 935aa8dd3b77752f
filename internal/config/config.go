package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	Geo   GeoConfig
	Auth  AuthConfig
	Click ClickConfig
}

type AppConfig struct {
	Port    string
	BaseURL string // База для построения коротких ссылок, например https://dkh.ro
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host string
	Port string
}

// GeoConfig настройки клиента геолокации.
type GeoConfig struct {
	APIURL            string        // Базовый URL гео-сервиса
	Timeout           time.Duration // Жёсткий таймаут одного запроса
	RequestsPerSecond float64       // Лимит исходящих запросов (внешний сервис сам ограничивает нас)
	CacheTTL          time.Duration // Время жизни закэшированного результата
}

type AuthConfig struct {
	APIKeys map[string]string // API key -> owner id
}

// ClickConfig настройки worker pool для записи кликов.
type ClickConfig struct {
	Workers    int
	BufferSize int
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// .env опционален: в проде всё приходит из окружения
	_ = viper.ReadInConfig()

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	cfg.App.BaseURL = strings.TrimRight(viper.GetString("BASE_URL"), "/")

	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")

	cfg.Geo.APIURL = viper.GetString("GEO_API_URL")
	if cfg.Geo.APIURL == "" {
		cfg.Geo.APIURL = "http://ip-api.com/json"
	}
	cfg.Geo.Timeout = viper.GetDuration("GEO_TIMEOUT")
	if cfg.Geo.Timeout <= 0 || cfg.Geo.Timeout > 5*time.Second {
		cfg.Geo.Timeout = 5 * time.Second
	}
	cfg.Geo.RequestsPerSecond = viper.GetFloat64("GEO_RPS")
	if cfg.Geo.RequestsPerSecond == 0 {
		// Публичный ip-api.com отдаёт примерно 45 запросов в минуту
		cfg.Geo.RequestsPerSecond = 0.7
	}
	cfg.Geo.CacheTTL = viper.GetDuration("GEO_CACHE_TTL")
	if cfg.Geo.CacheTTL <= 0 {
		cfg.Geo.CacheTTL = 24 * time.Hour
	}

	// Auth config - parse API keys from comma-separated string
	// Format: key1:owner1,key2:owner2
	cfg.Auth.APIKeys = parseAPIKeys(viper.GetString("API_KEYS"))

	cfg.Click.Workers = viper.GetInt("CLICK_WORKERS")
	if cfg.Click.Workers == 0 {
		cfg.Click.Workers = 3
	}
	cfg.Click.BufferSize = viper.GetInt("CLICK_BUFFER")
	if cfg.Click.BufferSize == 0 {
		cfg.Click.BufferSize = 1000
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate проверяет обязательные значения на старте, чтобы отсутствие
// конфигурации не всплывало посреди обработки запроса.
func (c *Config) validate() error {
	var missing []string
	if c.App.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if c.DB.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.DB.User == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DB.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.Redis.Host == "" {
		missing = append(missing, "REDIS_HOST")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// parseAPIKeys parses comma-separated API keys in format "key1:owner1,key2:owner2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}
