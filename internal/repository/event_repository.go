package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
)

// PGEvents implements repository.Events on the append-only drop_events
// table.
type PGEvents struct {
	pool *pgxpool.Pool
}

// NewPGEvents creates the drop_events repository.
func NewPGEvents(pool *pgxpool.Pool) repository.Events {
	return &PGEvents{pool: pool}
}

func (r *PGEvents) Append(ctx context.Context, e *models.DropEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO drop_events
			(id, product_id, retailer_id, signal_type, signal_value, observed_at, confidence, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ProductID, e.RetailerID, string(e.SignalType), e.SignalValue,
		e.ObservedAt, e.Confidence, e.Source)
	if err != nil {
		return fmt.Errorf("append drop event: %w", err)
	}
	return nil
}

func (r *PGEvents) ActivePairs(ctx context.Context, since time.Time, limit int) ([]models.Pair, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT product_id, retailer_id
		FROM drop_events
		WHERE observed_at >= $1
		ORDER BY product_id, retailer_id
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list active pairs: %w", err)
	}
	defer rows.Close()

	var out []models.Pair
	for rows.Next() {
		var p models.Pair
		if err := rows.Scan(&p.ProductID, &p.RetailerID); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PGEvents) ListForPair(ctx context.Context, p models.Pair, since time.Time) ([]*models.DropEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, retailer_id, signal_type, signal_value, observed_at, confidence, source
		FROM drop_events
		WHERE product_id = $1 AND retailer_id = $2 AND observed_at >= $3
		ORDER BY observed_at ASC`,
		p.ProductID, p.RetailerID, since)
	if err != nil {
		return nil, fmt.Errorf("list events for pair: %w", err)
	}
	defer rows.Close()

	var out []*models.DropEvent
	for rows.Next() {
		var e models.DropEvent
		var signalType string
		if err := rows.Scan(&e.ID, &e.ProductID, &e.RetailerID, &signalType,
			&e.SignalValue, &e.ObservedAt, &e.Confidence, &e.Source); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.SignalType = models.SignalType(signalType)
		out = append(out, &e)
	}
	return out, rows.Err()
}
