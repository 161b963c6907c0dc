package repository

import (
	"context"
	"errors"
	"time"

	"DropWatch/internal/domain/models"
)

// ErrNotFound marks a lookup that matched no row, regardless of backend.
var ErrNotFound = errors.New("not found")

// Candidates is the view over url_candidates the checker and the admin
// API need.
type Candidates interface {
	// ListCheckable returns up to limit rows with status unknown or valid,
	// oldest updated_at first.
	ListCheckable(ctx context.Context, limit int) ([]*models.CandidateURL, error)
	// UpdateCheckResult persists status, score, reason and timestamps.
	UpdateCheckResult(ctx context.Context, c *models.CandidateURL) error
	GetByID(ctx context.Context, id int64) (*models.CandidateURL, error)
	// ListRecent returns rows checked in [from, to), newest first, plus
	// the total matching count. Zero times leave that bound open.
	ListRecent(ctx context.Context, from, to time.Time, limit int) ([]*models.CandidateURL, int64, error)
}

// Retailers resolves retailer ids to slugs.
type Retailers interface {
	ListAll(ctx context.Context) ([]*models.Retailer, error)
}

// Events reads and appends drop_events rows.
type Events interface {
	Append(ctx context.Context, e *models.DropEvent) error
	// ActivePairs returns distinct (product, retailer) pairs with at least
	// one event since the given time, capped at limit.
	ActivePairs(ctx context.Context, since time.Time, limit int) ([]models.Pair, error)
	// ListForPair returns events for one pair since the given time,
	// ordered by observed_at ascending.
	ListForPair(ctx context.Context, p models.Pair, since time.Time) ([]*models.DropEvent, error)
}

// Outcomes writes first-seen timestamps into drop_outcomes.
type Outcomes interface {
	RecordFirstSeen(ctx context.Context, productID, retailerID int64, at time.Time) error
}

// Snapshots reads availability_snapshots for training features.
type Snapshots interface {
	// AvailabilityRatio returns the fraction of in_stock=true snapshots for
	// the pair in [from, to), and the number of snapshots seen.
	AvailabilityRatio(ctx context.Context, p models.Pair, from, to time.Time) (ratio float64, n int, err error)
}

// SignalPublisher emits drop signals for downstream alerting.
type SignalPublisher interface {
	Publish(ctx context.Context, e *models.DropEvent) error
	Close() error
}

// Metrics records per-retailer check counters; implementations are
// best-effort and must never block the check loop.
type Metrics interface {
	RecordCheck(retailer, counter string)
	RecordFetchLatency(retailer string, seconds float64)
	RecordTraining(rows int, auc, precisionAt10 float64)
}

// HourWeights supplies the per-retailer hour-of-day drop propensity used
// as a trainer feature. Implementations fall back to uniform weights.
type HourWeights interface {
	Weights(ctx context.Context, retailerID int64) ([24]float64, error)
}
