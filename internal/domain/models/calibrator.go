package models

import (
	"math"
	"time"
)

// Calibrator is the two-parameter logistic mapping from heuristic score
// to drop probability: p = sigmoid(a*s + b).
type Calibrator struct {
	A         float64          `json:"a"`
	B         float64          `json:"b"`
	TrainedAt time.Time        `json:"trainedAt"`
	Metrics   CalibratorMetrics `json:"metrics"`
}

// CalibratorMetrics are training-set quality numbers for the artifact.
type CalibratorMetrics struct {
	Rows          int     `json:"rows"`
	AUC           float64 `json:"auc"`
	PrecisionAt10 float64 `json:"precisionAt10"`
}

// Predict maps a raw heuristic score to a calibrated probability.
func (c *Calibrator) Predict(score float64) float64 {
	return 1.0 / (1.0 + math.Exp(-(c.A*score + c.B)))
}
