package propensity

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// UniformWeights spreads drop propensity evenly across the day; used
// whenever the model service has nothing better.
func UniformWeights() [24]float64 {
	var w [24]float64
	for i := range w {
		w[i] = 1.0 / 24.0
	}
	return w
}

// Client fetches per-retailer hour-of-day drop propensity from the
// external model service. Implements domain repository.HourWeights.
type Client struct {
	baseURL string
	http    *resty.Client
}

// New creates a propensity client. An empty baseURL yields a client that
// always falls back to uniform weights.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    resty.New().SetTimeout(timeout),
	}
}

type hourWeightsResponse struct {
	Weights []float64 `json:"weights"`
}

// Weights returns the 24-hour propensity vector for a retailer. Any
// failure degrades to the uniform prior rather than an error that would
// abort training.
func (c *Client) Weights(ctx context.Context, retailerID int64) ([24]float64, error) {
	if c.baseURL == "" {
		return UniformWeights(), nil
	}

	var hr hourWeightsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&hr).
		Get(fmt.Sprintf("%s/retailers/%d/hour-weights", c.baseURL, retailerID))
	if err != nil || resp.IsError() || len(hr.Weights) != 24 {
		return UniformWeights(), nil
	}

	var w [24]float64
	copy(w[:], hr.Weights)
	return w, nil
}
