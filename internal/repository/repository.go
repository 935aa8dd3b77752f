package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dkhromov/urlmapper/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB config: %w", err)
	}

	// Настройка пула соединений
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

// Migrate создаёт схему, если её ещё нет. click_logs удаляются каскадом
// вместе со своим mapping.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS url_mappings (
			id               BIGSERIAL PRIMARY KEY,
			short_code       VARCHAR(20) NOT NULL UNIQUE,
			original_url     VARCHAR(2048) NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			click_count      BIGINT NOT NULL DEFAULT 0,
			last_accessed_at TIMESTAMPTZ,
			owner_id         TEXT
		);

		CREATE TABLE IF NOT EXISTS click_logs (
			id             BIGSERIAL PRIMARY KEY,
			url_mapping_id BIGINT NOT NULL REFERENCES url_mappings(id) ON DELETE CASCADE,
			clicked_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ip_address     VARCHAR(45),
			user_agent     VARCHAR(500),
			country        VARCHAR(100),
			city           VARCHAR(100)
		);

		CREATE INDEX IF NOT EXISTS idx_url_mappings_owner ON url_mappings(owner_id);
		CREATE INDEX IF NOT EXISTS idx_click_logs_mapping ON click_logs(url_mapping_id, clicked_at DESC);
	`

	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}
