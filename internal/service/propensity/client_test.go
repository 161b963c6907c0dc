package propensity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWeightsFromService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/retailers/7/hour-weights" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"weights":[`)
		for i := 0; i < 24; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, "%f", float64(i)/100.0)
		}
		fmt.Fprint(w, `]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	w, err := c.Weights(context.Background(), 7)
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	if w[0] != 0 || w[23] != 0.23 {
		t.Fatalf("unexpected weights: first=%f last=%f", w[0], w[23])
	}
}

func TestWeightsFallsBackToUniform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cases := []*Client{
		New(srv.URL, time.Second),
		New("", time.Second),
	}
	for _, c := range cases {
		w, err := c.Weights(context.Background(), 1)
		if err != nil {
			t.Fatalf("Weights: %v", err)
		}
		for i, v := range w {
			if v != 1.0/24.0 {
				t.Fatalf("hour %d weight = %f, want uniform", i, v)
			}
		}
	}
}
