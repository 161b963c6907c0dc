package models

import "time"

// CandidateStatus is the lifecycle state of a candidate URL.
type CandidateStatus string

const (
	StatusUnknown CandidateStatus = "unknown"
	StatusValid   CandidateStatus = "valid"
	StatusInvalid CandidateStatus = "invalid"
	StatusLive    CandidateStatus = "live"
)

// CandidateURL is a retailer product-page URL hypothesized to correspond
// to a tracked product, awaiting liveness confirmation. Rows are seeded
// externally; the checker only mutates status, score, reason and timestamps.
type CandidateURL struct {
	ID            int64
	ProductID     int64
	RetailerID    int64
	URL           string
	Status        CandidateStatus
	Score         float64 // confidence accumulator, always in [0,1]
	Reason        string
	LastCheckedAt time.Time
	UpdatedAt     time.Time
}

// Retailer maps an id to its stable slug used for rate budgets and metrics.
type Retailer struct {
	ID   int64
	Slug string
	Name string
}
