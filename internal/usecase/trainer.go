package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
	"DropWatch/internal/services/calibrate"
	"DropWatch/pkg/logger"
	"DropWatch/pkg/util"
)

const (
	minTrainSamples = 50
	maxTrainPairs   = 1000
)

// Feature weights for the raw heuristic score. Signal counts saturate
// so a chatty producer cannot dominate the score.
const (
	weightHour         = 1.5
	weightURLLive      = 0.8
	weightPricePresent = 0.4
	weightStatusChange = 0.3
	weightURLSeen      = 0.2
	weightScarcity     = 0.5
)

// TrainOptions are the tunable windows of one training run. All values
// are bounded to sane ranges before use.
type TrainOptions struct {
	LookbackDays      int
	HorizonMinutes    int
	HistoryWindowDays int
	SampleStepMinutes int
	MaxSamples        int
}

func (o *TrainOptions) bound() {
	o.LookbackDays = util.ClampInt(o.LookbackDays, 7, 120)
	o.HorizonMinutes = util.ClampInt(o.HorizonMinutes, 30, 240)
	o.HistoryWindowDays = util.ClampInt(o.HistoryWindowDays, 1, 30)
	o.SampleStepMinutes = util.ClampInt(o.SampleStepMinutes, 30, 180)
	o.MaxSamples = util.ClampInt(o.MaxSamples, 500, 20000)
}

// ClassifierTrainer fits the drop-probability calibrator from historical
// signal counts. It is a bounded one-shot batch job: hard caps on pairs
// and samples guarantee termination, and the only state it leaves behind
// is the artifact file. Callers must not overlap runs; serialization is
// the scheduler's job.
type ClassifierTrainer struct {
	events      repository.Events
	snapshots   repository.Snapshots
	hourWeights repository.HourWeights
	metrics     repository.Metrics
	logger      *logger.Logger
	artifact    string
	now         func() time.Time
}

// NewClassifierTrainer wires the trainer with its data sources and the
// artifact destination path.
func NewClassifierTrainer(
	events repository.Events,
	snapshots repository.Snapshots,
	hourWeights repository.HourWeights,
	metrics repository.Metrics,
	lgr *logger.Logger,
	artifactPath string,
) *ClassifierTrainer {
	return &ClassifierTrainer{
		events:      events,
		snapshots:   snapshots,
		hourWeights: hourWeights,
		metrics:     metrics,
		logger:      lgr,
		artifact:    artifactPath,
		now:         time.Now,
	}
}

// Train builds the sample set, fits the logistic calibrator and persists
// the artifact. Returns (nil, nil) when fewer than 50 samples exist;
// insufficient data is a normal outcome, not an error.
func (t *ClassifierTrainer) Train(ctx context.Context, opts TrainOptions) (*models.Calibrator, error) {
	opts.bound()

	samples, err := t.buildDataset(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(samples) < minTrainSamples {
		t.logger.Warn("insufficient training data",
			logger.Int("samples", len(samples)),
			logger.Int("required", minTrainSamples))
		return nil, nil
	}

	cal := t.Fit(samples)
	t.metrics.RecordTraining(cal.Metrics.Rows, cal.Metrics.AUC, cal.Metrics.PrecisionAt10)

	if err := t.persist(cal); err != nil {
		return nil, err
	}

	t.logger.Info("calibrator trained",
		logger.Int("rows", cal.Metrics.Rows),
		logger.Float64("auc", cal.Metrics.AUC),
		logger.Float64("precision_at_10", cal.Metrics.PrecisionAt10))
	return cal, nil
}

// Fit runs the numeric half of training on pre-built samples. Exposed
// separately so the fit and its metrics can be exercised without any
// storage behind them.
func (t *ClassifierTrainer) Fit(samples []calibrate.Sample) *models.Calibrator {
	a, b := calibrate.FitLogistic(samples)
	probs := calibrate.Predict(samples, a, b)

	return &models.Calibrator{
		A:         a,
		B:         b,
		TrainedAt: t.now().UTC(),
		Metrics: models.CalibratorMetrics{
			Rows:          len(samples),
			AUC:           calibrate.AUC(samples, probs),
			PrecisionAt10: calibrate.PrecisionAtTopDecile(samples, probs),
		},
	}
}

// buildDataset slides a sample timestamp across each active pair's
// event history, computing features and the did-a-drop-follow label.
func (t *ClassifierTrainer) buildDataset(ctx context.Context, opts TrainOptions) ([]calibrate.Sample, error) {
	now := t.now().UTC()
	lookbackStart := now.AddDate(0, 0, -opts.LookbackDays)
	horizon := time.Duration(opts.HorizonMinutes) * time.Minute
	history := time.Duration(opts.HistoryWindowDays) * 24 * time.Hour
	step := time.Duration(opts.SampleStepMinutes) * time.Minute

	pairs, err := t.events.ActivePairs(ctx, lookbackStart, maxTrainPairs)
	if err != nil {
		return nil, fmt.Errorf("list active pairs: %w", err)
	}

	var samples []calibrate.Sample
	for _, pair := range pairs {
		if len(samples) >= opts.MaxSamples {
			break
		}

		events, err := t.events.ListForPair(ctx, pair, lookbackStart)
		if err != nil {
			t.logger.Warn("skip pair, event load failed",
				logger.Int64("product_id", pair.ProductID),
				logger.Int64("retailer_id", pair.RetailerID),
				logger.Error(err))
			continue
		}
		if len(events) == 0 {
			continue
		}

		weights := t.retailerHourWeights(ctx, pair.RetailerID)
		lastEvent := events[len(events)-1].ObservedAt

		start := lastEvent.Add(-time.Duration(opts.LookbackDays) * 24 * time.Hour)
		if start.Before(lookbackStart) {
			start = lookbackStart
		}

		for ts := start; !ts.After(lastEvent) && len(samples) < opts.MaxSamples; ts = ts.Add(step) {
			counts := countSignals(events, ts.Add(-history), ts)
			ratio := t.availabilityRatio(ctx, pair, ts.Add(-history), ts)
			hourWeight := weights[ts.Add(horizon).UTC().Hour()]

			score := weightHour*hourWeight +
				weightURLLive*capped(counts[models.SignalURLLive], 5) +
				weightPricePresent*capped(counts[models.SignalPricePresent], 10) +
				weightStatusChange*capped(counts[models.SignalStatusChange], 10) +
				weightURLSeen*capped(counts[models.SignalURLSeen], 10) -
				weightScarcity*scarcityPenalty(ratio)

			samples = append(samples, calibrate.Sample{
				Score: score,
				Label: dropLabel(events, ts, ts.Add(horizon)),
			})
		}
	}
	return samples, nil
}

func (t *ClassifierTrainer) retailerHourWeights(ctx context.Context, retailerID int64) [24]float64 {
	weights, err := t.hourWeights.Weights(ctx, retailerID)
	if err != nil {
		for i := range weights {
			weights[i] = 1.0 / 24.0
		}
	}
	return weights
}

func (t *ClassifierTrainer) availabilityRatio(ctx context.Context, pair models.Pair, from, to time.Time) float64 {
	ratio, _, err := t.snapshots.AvailabilityRatio(ctx, pair, from, to)
	if err != nil {
		return 0
	}
	return ratio
}

// persist writes the artifact with a whole-file replace so readers
// never observe a partially written calibrator.
func (t *ClassifierTrainer) persist(cal *models.Calibrator) error {
	data, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal calibrator: %w", err)
	}

	dir := filepath.Dir(t.artifact)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp := t.artifact + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write calibrator artifact: %w", err)
	}
	if err := os.Rename(tmp, t.artifact); err != nil {
		return fmt.Errorf("replace calibrator artifact: %w", err)
	}
	return nil
}

func countSignals(events []*models.DropEvent, from, to time.Time) map[models.SignalType]int {
	counts := make(map[models.SignalType]int)
	for _, e := range events {
		if !e.ObservedAt.Before(from) && e.ObservedAt.Before(to) {
			counts[e.SignalType]++
		}
	}
	return counts
}

// dropLabel reports whether a drop-indicating event lands inside
// [from, to], bounds inclusive.
func dropLabel(events []*models.DropEvent, from, to time.Time) int {
	for _, e := range events {
		if e.SignalType != models.SignalURLLive && e.SignalType != models.SignalInStock {
			continue
		}
		if !e.ObservedAt.Before(from) && !e.ObservedAt.After(to) {
			return 1
		}
	}
	return 0
}

func capped(count, saturation int) float64 {
	v := float64(count) / float64(saturation)
	if v > 1 {
		return 1
	}
	return v
}

func scarcityPenalty(ratio float64) float64 {
	if ratio >= 0.5 {
		return 0
	}
	return 0.5 - ratio
}
