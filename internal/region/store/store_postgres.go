package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kvault/internal/platform/postgres"
	"kvault/internal/region/models"
	id "kvault/pkg/domain"
	"kvault/pkg/platform/sentinel"
	txcontext "kvault/pkg/platform/tx"
)

// PostgresStore persists regions; name uniqueness rides on regions_name_lower_idx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, region *models.Region) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
		`INSERT INTO regions (id, name, created_at) VALUES ($1, $2, $3)`,
		uuid.UUID(region.ID), region.Name, region.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("region name %q: %w", region.Name, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert region: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, regionID id.RegionID) (*models.Region, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, name, created_at FROM regions WHERE id = $1`, uuid.UUID(regionID))
	return scanRegion(row)
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.Region, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, name, created_at FROM regions WHERE lower(name) = $1`, models.NameKey(name))
	return scanRegion(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Region, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT id, name, created_at FROM regions ORDER BY lower(name) ASC`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var out []*models.Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegion(row scanner) (*models.Region, error) {
	var (
		rawID uuid.UUID
		r     models.Region
	)
	if err := row.Scan(&rawID, &r.Name, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan region: %w", err)
	}
	r.ID = id.RegionID(rawID)
	return &r, nil
}
