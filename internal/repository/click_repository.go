package repository

import (
	"context"
	"fmt"

	"github.com/dkhromov/urlmapper/internal/models"
)

type ClickRepository interface {
	AppendClick(ctx context.Context, click *models.ClickLog) error
	RecentClicks(ctx context.Context, mappingID int64, limit int) ([]models.ClickLog, error)
	CountryCounts(ctx context.Context, mappingID int64, limit int) ([]models.CountryCount, error)
}

type clickRepository struct {
	db *PostgresDB
}

func NewClickRepository(db *PostgresDB) ClickRepository {
	return &clickRepository{db: db}
}

// AppendClick записывает клик и инкремент счётчика одной транзакцией,
// чтобы click_count не разъезжался с числом строк при параллельных кликах.
// Инкремент выражен как click_count = click_count + 1 на стороне БД —
// конкурентные обновления сериализуются строкой, потерянных апдейтов нет.
func (r *clickRepository) AppendClick(ctx context.Context, click *models.ClickLog) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO click_logs (url_mapping_id, clicked_at, ip_address, user_agent, country, city)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRow(ctx, insertQuery,
		click.URLMappingID,
		click.ClickedAt,
		click.IPAddress,
		click.UserAgent,
		click.Country,
		click.City,
	).Scan(&click.ID)
	if err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}

	updateQuery := `
		UPDATE url_mappings
		SET click_count = click_count + 1, last_accessed_at = $2
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, updateQuery, click.URLMappingID, click.ClickedAt); err != nil {
		return fmt.Errorf("failed to bump click count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit click: %w", err)
	}

	return nil
}

func (r *clickRepository) RecentClicks(ctx context.Context, mappingID int64, limit int) ([]models.ClickLog, error) {
	query := `
		SELECT id, url_mapping_id, clicked_at, ip_address, user_agent, country, city
		FROM click_logs
		WHERE url_mapping_id = $1
		ORDER BY clicked_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, mappingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent clicks: %w", err)
	}
	defer rows.Close()

	clicks := []models.ClickLog{}
	for rows.Next() {
		var c models.ClickLog
		var ip, ua *string
		if err := rows.Scan(&c.ID, &c.URLMappingID, &c.ClickedAt, &ip, &ua, &c.Country, &c.City); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		if ip != nil {
			c.IPAddress = *ip
		}
		if ua != nil {
			c.UserAgent = *ua
		}
		clicks = append(clicks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clicks: %w", err)
	}

	return clicks, nil
}

// CountryCounts считает гистограмму по странам среди всех кликов mapping
// (только строки с заполненной страной). Сортировка: количество по убыванию,
// при равенстве выигрывает страна, встретившаяся раньше — порядок стабилен.
func (r *clickRepository) CountryCounts(ctx context.Context, mappingID int64, limit int) ([]models.CountryCount, error) {
	query := `
		SELECT country, COUNT(*) AS cnt
		FROM click_logs
		WHERE url_mapping_id = $1 AND country IS NOT NULL
		GROUP BY country
		ORDER BY cnt DESC, MIN(clicked_at) ASC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, mappingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get country counts: %w", err)
	}
	defer rows.Close()

	var counts []models.CountryCount
	for rows.Next() {
		var cc models.CountryCount
		if err := rows.Scan(&cc.Country, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan country count: %w", err)
		}
		counts = append(counts, cc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating country counts: %w", err)
	}

	return counts, nil
}
