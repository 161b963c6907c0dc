package models

// Pair identifies a (product, retailer) combination tracked across
// candidates, events, outcomes and snapshots.
type Pair struct {
	ProductID  int64
	RetailerID int64
}
