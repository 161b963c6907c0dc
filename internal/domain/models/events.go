package models

import "time"

// SignalType classifies a drop-event observation.
type SignalType string

const (
	SignalURLSeen      SignalType = "url_seen"
	SignalURLLive      SignalType = "url_live"
	SignalInStock      SignalType = "in_stock"
	SignalPricePresent SignalType = "price_present"
	SignalStatusChange SignalType = "status_change"
)

// DropEvent is an append-only observation emitted by the checker and by
// other producers, consumed downstream and read back for training.
type DropEvent struct {
	ID          string
	ProductID   int64
	RetailerID  int64
	SignalType  SignalType
	SignalValue string
	ObservedAt  time.Time
	Confidence  int
	Source      string
}

// DropOutcome tracks the timeline of a (product, retailer) pair.
// FirstSeenAt is set by the checker the first time a candidate goes live;
// the remaining fields belong to other producers.
type DropOutcome struct {
	ProductID      int64
	RetailerID     int64
	DropAt         time.Time
	FirstSeenAt    time.Time
	FirstInStockAt time.Time
}

// AvailabilitySnapshot is a point-in-time stock observation, read-only
// input to the trainer.
type AvailabilitySnapshot struct {
	ProductID    int64
	RetailerID   int64
	SnapshotTime time.Time
	InStock      bool
}
