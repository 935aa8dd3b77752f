package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkhromov/urlmapper/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrMappingNotFound = errors.New("mapping not found")
	ErrCodeExists      = errors.New("short code already exists")
)

const mappingColumns = "id, short_code, original_url, created_at, click_count, last_accessed_at, owner_id"

type MappingRepository interface {
	Create(ctx context.Context, mapping *models.URLMapping) error
	GetByShortCode(ctx context.Context, code string) (*models.URLMapping, error)
	GetByID(ctx context.Context, id int64) (*models.URLMapping, error)
	GetByOriginalURL(ctx context.Context, originalURL string, ownerID *string) (*models.URLMapping, error)
	GetByOwner(ctx context.Context, ownerID string) ([]models.URLMapping, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Delete(ctx context.Context, code string, ownerID string) error
}

type mappingRepository struct {
	db *PostgresDB
}

func NewMappingRepository(db *PostgresDB) MappingRepository {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) Create(ctx context.Context, mapping *models.URLMapping) error {
	query := `
		INSERT INTO url_mappings (short_code, original_url, created_at, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		mapping.ShortCode,
		mapping.OriginalURL,
		mapping.CreatedAt,
		mapping.OwnerID,
	).Scan(&mapping.ID, &mapping.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create mapping: %w", err)
	}

	return nil
}

func (r *mappingRepository) GetByShortCode(ctx context.Context, code string) (*models.URLMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM url_mappings WHERE short_code = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, code))
}

func (r *mappingRepository) GetByID(ctx context.Context, id int64) (*models.URLMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM url_mappings WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByOriginalURL ищет существующий mapping той же пары URL+владелец.
// Анонимные записи (owner_id IS NULL) считаются одним владельцем.
func (r *mappingRepository) GetByOriginalURL(ctx context.Context, originalURL string, ownerID *string) (*models.URLMapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM url_mappings
		WHERE original_url = $1 AND owner_id IS NOT DISTINCT FROM $2
		ORDER BY created_at
		LIMIT 1
	`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, originalURL, ownerID))
}

func (r *mappingRepository) GetByOwner(ctx context.Context, ownerID string) ([]models.URLMapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM url_mappings
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []models.URLMapping
	for rows.Next() {
		var m models.URLMapping
		if err := rows.Scan(&m.ID, &m.ShortCode, &m.OriginalURL, &m.CreatedAt, &m.ClickCount, &m.LastAccessedAt, &m.OwnerID); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}

	return mappings, nil
}

func (r *mappingRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM url_mappings WHERE short_code = $1)`

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return exists, nil
}

// Delete удаляет mapping только у его владельца. Для чужого или
// несуществующего кода результат одинаковый — ErrMappingNotFound,
// так что посторонний не узнаёт, занят ли код.
func (r *mappingRepository) Delete(ctx context.Context, code string, ownerID string) error {
	query := `DELETE FROM url_mappings WHERE short_code = $1 AND owner_id = $2`

	result, err := r.db.Pool.Exec(ctx, query, code, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrMappingNotFound
	}

	return nil
}

func (r *mappingRepository) scanOne(row pgx.Row) (*models.URLMapping, error) {
	m := &models.URLMapping{}
	err := row.Scan(&m.ID, &m.ShortCode, &m.OriginalURL, &m.CreatedAt, &m.ClickCount, &m.LastAccessedAt, &m.OwnerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return m, nil
}

// isUniqueViolation проверяет SQLSTATE 23505 (unique_violation).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
