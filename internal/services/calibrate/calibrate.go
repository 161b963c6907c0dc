package calibrate

import (
	"math"
	"sort"
)

// Sample is one (raw score, label) training row. Label is 1 when a drop
// signal followed within the horizon, else 0.
type Sample struct {
	Score float64
	Label int
}

const (
	fitIterations   = 200
	fitLearningRate = 0.1
)

// Sigmoid is the standard logistic function.
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// FitLogistic fits p = sigmoid(a*s + b) with full-batch gradient descent.
func FitLogistic(samples []Sample) (a, b float64) {
	a, b = 1.0, 0.0
	n := float64(len(samples))
	if n == 0 {
		return a, b
	}

	for iter := 0; iter < fitIterations; iter++ {
		var ga, gb float64
		for _, s := range samples {
			p := Sigmoid(a*s.Score + b)
			diff := p - float64(s.Label)
			ga += diff * s.Score
			gb += diff
		}
		a -= fitLearningRate * ga / n
		b -= fitLearningRate * gb / n
	}
	return a, b
}

// Predict applies the fitted calibrator to every sample score.
func Predict(samples []Sample, a, b float64) []float64 {
	probs := make([]float64, len(samples))
	for i, s := range samples {
		probs[i] = Sigmoid(a*s.Score + b)
	}
	return probs
}

// AUC computes the area under the ROC curve via the Mann-Whitney rank
// sum: rank all samples ascending by predicted probability, sum ranks of
// positives, U = rankSum - pos*(pos+1)/2, AUC = U / (pos*neg). Tied
// probabilities receive their midrank. Returns 0.5 when either class is
// empty.
func AUC(samples []Sample, probs []float64) float64 {
	n := len(samples)
	if n == 0 || n != len(probs) {
		return 0.5
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return probs[idx[i]] < probs[idx[j]]
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && probs[idx[j+1]] == probs[idx[i]] {
			j++
		}
		// 1-based midrank over the tie group [i, j].
		mid := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = mid
		}
		i = j + 1
	}

	var pos, neg int
	var rankSum float64
	for i, s := range samples {
		if s.Label == 1 {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	u := rankSum - float64(pos)*float64(pos+1)/2
	return u / (float64(pos) * float64(neg))
}

// PrecisionAtTopDecile is the fraction of true positives among the top
// 10% of samples by predicted probability (at least one sample).
func PrecisionAtTopDecile(samples []Sample, probs []float64) float64 {
	n := len(samples)
	if n == 0 || n != len(probs) {
		return 0
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return probs[idx[i]] > probs[idx[j]]
	})

	top := n / 10
	if top < 1 {
		top = 1
	}

	var hits int
	for _, i := range idx[:top] {
		if samples[i].Label == 1 {
			hits++
		}
	}
	return float64(hits) / float64(top)
}
