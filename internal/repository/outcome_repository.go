package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"DropWatch/internal/domain/repository"
)

// PGOutcomes implements repository.Outcomes on drop_outcomes.
type PGOutcomes struct {
	pool *pgxpool.Pool
}

// NewPGOutcomes creates the drop_outcomes repository.
func NewPGOutcomes(pool *pgxpool.Pool) repository.Outcomes {
	return &PGOutcomes{pool: pool}
}

// RecordFirstSeen sets first_seen_at once per pair; later calls never
// move it forward.
func (r *PGOutcomes) RecordFirstSeen(ctx context.Context, productID, retailerID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO drop_outcomes (product_id, retailer_id, first_seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, retailer_id)
		DO UPDATE SET first_seen_at = COALESCE(drop_outcomes.first_seen_at, EXCLUDED.first_seen_at)`,
		productID, retailerID, at)
	if err != nil {
		return fmt.Errorf("record first seen: %w", err)
	}
	return nil
}
