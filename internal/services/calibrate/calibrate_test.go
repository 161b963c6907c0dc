package calibrate

import (
	"math"
	"math/rand"
	"testing"
)

func TestSigmoid(t *testing.T) {
	if got := Sigmoid(0); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("Sigmoid(0) = %v", got)
	}
	if got := Sigmoid(10); got < 0.99 {
		t.Fatalf("Sigmoid(10) = %v", got)
	}
	if got := Sigmoid(-10); got > 0.01 {
		t.Fatalf("Sigmoid(-10) = %v", got)
	}
}

func TestFitLogisticSeparableData(t *testing.T) {
	// label = 1 iff score > 1.0 with a clear margin.
	rng := rand.New(rand.NewSource(7))
	samples := make([]Sample, 0, 400)
	for i := 0; i < 200; i++ {
		samples = append(samples, Sample{Score: 1.3 + rng.Float64(), Label: 1})
		samples = append(samples, Sample{Score: 0.7 - rng.Float64()*0.7, Label: 0})
	}

	a, b := FitLogistic(samples)
	probs := Predict(samples, a, b)
	auc := AUC(samples, probs)

	if auc <= 0.9 {
		t.Fatalf("separable data should calibrate to AUC > 0.9, got %v (a=%v b=%v)", auc, a, b)
	}
	if a <= 0 {
		t.Fatalf("slope should be positive on positively separable data, got %v", a)
	}
}

func TestFitLogisticEmptyInput(t *testing.T) {
	a, b := FitLogistic(nil)
	if a != 1.0 || b != 0.0 {
		t.Fatalf("empty fit should return initial parameters, got a=%v b=%v", a, b)
	}
}

// bruteForceAUC counts concordant positive/negative pairs, ties at half
// weight. Oracle for the rank-sum implementation.
func bruteForceAUC(samples []Sample, probs []float64) float64 {
	var pairs, score float64
	for i, si := range samples {
		if si.Label != 1 {
			continue
		}
		for j, sj := range samples {
			if sj.Label != 0 {
				continue
			}
			pairs++
			switch {
			case probs[i] > probs[j]:
				score++
			case probs[i] == probs[j]:
				score += 0.5
			}
		}
	}
	if pairs == 0 {
		return 0.5
	}
	return score / pairs
}

func TestAUCMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	samples := make([]Sample, 300)
	probs := make([]float64, 300)
	for i := range samples {
		label := 0
		if rng.Float64() < 0.3 {
			label = 1
		}
		samples[i] = Sample{Score: rng.Float64() * 3, Label: label}
		// Quantize to force ties.
		probs[i] = math.Round(rng.Float64()*20) / 20
	}

	got := AUC(samples, probs)
	want := bruteForceAUC(samples, probs)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("rank-sum AUC %v != brute-force AUC %v", got, want)
	}
}

func TestAUCDegenerateClasses(t *testing.T) {
	all1 := []Sample{{1, 1}, {2, 1}}
	if got := AUC(all1, []float64{0.1, 0.9}); got != 0.5 {
		t.Fatalf("single-class AUC should default to 0.5, got %v", got)
	}
	if got := AUC(nil, nil); got != 0.5 {
		t.Fatalf("empty AUC should default to 0.5, got %v", got)
	}
}

func TestPrecisionAtTopDecile(t *testing.T) {
	samples := make([]Sample, 20)
	probs := make([]float64, 20)
	for i := range samples {
		probs[i] = float64(i) / 20
		// The two highest-probability samples are one positive, one negative.
		if i == 19 {
			samples[i].Label = 1
		}
	}
	// top 10% of 20 = 2 samples: indexes 19 (pos) and 18 (neg).
	if got := PrecisionAtTopDecile(samples, probs); got != 0.5 {
		t.Fatalf("expected precision 0.5, got %v", got)
	}
}

func TestPrecisionAtTopDecileSmallSet(t *testing.T) {
	samples := []Sample{{1, 1}, {0, 0}, {0, 0}}
	probs := []float64{0.9, 0.2, 0.1}
	// n/10 == 0 rounds up to a single sample.
	if got := PrecisionAtTopDecile(samples, probs); got != 1 {
		t.Fatalf("expected precision 1 with top-1 positive, got %v", got)
	}
}
