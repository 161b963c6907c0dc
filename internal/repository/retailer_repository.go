package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
)

// PGRetailers implements repository.Retailers on Postgres.
type PGRetailers struct {
	pool *pgxpool.Pool
}

// NewPGRetailers creates the retailers repository.
func NewPGRetailers(pool *pgxpool.Pool) repository.Retailers {
	return &PGRetailers{pool: pool}
}

func (r *PGRetailers) ListAll(ctx context.Context) ([]*models.Retailer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, slug, name FROM retailers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list retailers: %w", err)
	}
	defer rows.Close()

	var out []*models.Retailer
	for rows.Next() {
		var m models.Retailer
		if err := rows.Scan(&m.ID, &m.Slug, &m.Name); err != nil {
			return nil, fmt.Errorf("scan retailer: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
