package usecase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/services/calibrate"
)

type memEvents struct {
	byPair map[models.Pair][]*models.DropEvent
}

func (m *memEvents) Append(_ context.Context, e *models.DropEvent) error {
	p := models.Pair{ProductID: e.ProductID, RetailerID: e.RetailerID}
	if m.byPair == nil {
		m.byPair = make(map[models.Pair][]*models.DropEvent)
	}
	m.byPair[p] = append(m.byPair[p], e)
	return nil
}

func (m *memEvents) ActivePairs(_ context.Context, since time.Time, limit int) ([]models.Pair, error) {
	var out []models.Pair
	for p, events := range m.byPair {
		for _, e := range events {
			if !e.ObservedAt.Before(since) {
				out = append(out, p)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memEvents) ListForPair(_ context.Context, p models.Pair, since time.Time) ([]*models.DropEvent, error) {
	var out []*models.DropEvent
	for _, e := range m.byPair[p] {
		if !e.ObservedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fixedSnapshots struct{ ratio float64 }

func (s *fixedSnapshots) AvailabilityRatio(context.Context, models.Pair, time.Time, time.Time) (float64, int, error) {
	return s.ratio, 10, nil
}

type uniformHours struct{}

func (uniformHours) Weights(context.Context, int64) ([24]float64, error) {
	var w [24]float64
	for i := range w {
		w[i] = 1.0 / 24.0
	}
	return w, nil
}

func newTestTrainer(t *testing.T, events *memEvents, artifact string) *ClassifierTrainer {
	t.Helper()
	return NewClassifierTrainer(
		events, &fixedSnapshots{ratio: 0.5}, uniformHours{},
		&fakeMetrics{}, newTestLogger(t), artifact)
}

// seedPair writes a regular cadence of events for one pair: url_seen
// every step, with url_live bursts when live is true.
func seedPair(events *memEvents, p models.Pair, from time.Time, days int, live bool) {
	ctx := context.Background()
	for d := 0; d < days; d++ {
		for h := 0; h < 24; h += 2 {
			at := from.AddDate(0, 0, d).Add(time.Duration(h) * time.Hour)
			_ = events.Append(ctx, &models.DropEvent{
				ID: "e", ProductID: p.ProductID, RetailerID: p.RetailerID,
				SignalType: models.SignalURLSeen, ObservedAt: at, Source: "test",
			})
			if live && h%8 == 0 {
				_ = events.Append(ctx, &models.DropEvent{
					ID: "l", ProductID: p.ProductID, RetailerID: p.RetailerID,
					SignalType: models.SignalURLLive, ObservedAt: at.Add(30 * time.Minute),
					Confidence: 85, Source: "test",
				})
			}
		}
	}
}

func TestTrainInsufficientDataReturnsNil(t *testing.T) {
	events := &memEvents{}
	// One pair whose whole history sits right at the lookback edge, so
	// the slide yields only a handful of samples.
	_ = events.Append(context.Background(), &models.DropEvent{
		ID: "e", ProductID: 1, RetailerID: 1,
		SignalType: models.SignalURLSeen,
		ObservedAt: time.Now().UTC().AddDate(0, 0, -7).Add(time.Hour),
	})

	trainer := newTestTrainer(t, events, filepath.Join(t.TempDir(), "cal.json"))
	cal, err := trainer.Train(context.Background(), TrainOptions{
		LookbackDays: 7, HorizonMinutes: 60, HistoryWindowDays: 1,
		SampleStepMinutes: 180, MaxSamples: 500,
	})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if cal != nil {
		t.Fatalf("expected nil calibrator, got %+v", cal)
	}
}

func TestTrainProducesArtifact(t *testing.T) {
	events := &memEvents{}
	now := time.Now().UTC()
	seedPair(events, models.Pair{ProductID: 1, RetailerID: 1}, now.AddDate(0, 0, -7), 7, true)
	seedPair(events, models.Pair{ProductID: 2, RetailerID: 1}, now.AddDate(0, 0, -7), 7, false)

	artifact := filepath.Join(t.TempDir(), "calibrator.json")
	trainer := newTestTrainer(t, events, artifact)

	cal, err := trainer.Train(context.Background(), TrainOptions{
		LookbackDays: 7, HorizonMinutes: 120, HistoryWindowDays: 1,
		SampleStepMinutes: 60, MaxSamples: 2000,
	})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if cal == nil {
		t.Fatal("expected a calibrator")
	}
	if cal.Metrics.Rows < minTrainSamples {
		t.Fatalf("rows = %d, want >= %d", cal.Metrics.Rows, minTrainSamples)
	}
	if cal.Metrics.AUC < 0 || cal.Metrics.AUC > 1 {
		t.Fatalf("auc = %f outside [0,1]", cal.Metrics.AUC)
	}

	data, err := os.ReadFile(artifact)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var persisted models.Calibrator
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("unmarshal artifact: %v", err)
	}
	if persisted.A != cal.A || persisted.B != cal.B {
		t.Fatalf("artifact %+v does not match trained %+v", persisted, cal)
	}
	if persisted.TrainedAt.IsZero() {
		t.Fatal("artifact missing trainedAt")
	}
}

func TestTrainBoundsOptions(t *testing.T) {
	opts := TrainOptions{
		LookbackDays: 1000, HorizonMinutes: 1, HistoryWindowDays: 0,
		SampleStepMinutes: 999, MaxSamples: 1,
	}
	opts.bound()
	if opts.LookbackDays != 120 || opts.HorizonMinutes != 30 ||
		opts.HistoryWindowDays != 1 || opts.SampleStepMinutes != 180 ||
		opts.MaxSamples != 500 {
		t.Fatalf("bounded opts = %+v", opts)
	}
}

func TestTrainRespectsSampleCap(t *testing.T) {
	events := &memEvents{}
	now := time.Now().UTC()
	for pid := int64(1); pid <= 10; pid++ {
		seedPair(events, models.Pair{ProductID: pid, RetailerID: 1}, now.AddDate(0, 0, -7), 7, pid%2 == 0)
	}

	trainer := newTestTrainer(t, events, filepath.Join(t.TempDir(), "cal.json"))
	cal, err := trainer.Train(context.Background(), TrainOptions{
		LookbackDays: 7, HorizonMinutes: 120, HistoryWindowDays: 1,
		SampleStepMinutes: 30, MaxSamples: 500,
	})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if cal == nil {
		t.Fatal("expected a calibrator")
	}
	if cal.Metrics.Rows > 500 {
		t.Fatalf("rows = %d exceeds sample cap", cal.Metrics.Rows)
	}
}

func TestFitSeparatesSyntheticData(t *testing.T) {
	var samples []calibrate.Sample
	for i := 0; i < 100; i++ {
		s := float64(i) / 100.0
		label := 0
		if s > 0.6 {
			label = 1
		}
		samples = append(samples, calibrate.Sample{Score: s, Label: label})
	}

	trainer := newTestTrainer(t, &memEvents{}, filepath.Join(t.TempDir(), "cal.json"))
	cal := trainer.Fit(samples)
	if cal.Metrics.AUC <= 0.9 {
		t.Fatalf("auc = %f, want > 0.9 on separable data", cal.Metrics.AUC)
	}
	if cal.Metrics.PrecisionAt10 != 1.0 {
		t.Fatalf("precision@10 = %f, want 1.0", cal.Metrics.PrecisionAt10)
	}
}
