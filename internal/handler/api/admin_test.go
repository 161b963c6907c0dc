package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
	"DropWatch/pkg/logger"
)

type fakeCandidates struct {
	rows []*models.CandidateURL

	listFrom  time.Time
	listTo    time.Time
	listLimit int
}

func (f *fakeCandidates) ListCheckable(context.Context, int) ([]*models.CandidateURL, error) {
	return nil, nil
}

func (f *fakeCandidates) UpdateCheckResult(context.Context, *models.CandidateURL) error {
	return nil
}

func (f *fakeCandidates) GetByID(_ context.Context, id int64) (*models.CandidateURL, error) {
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("candidate %d: %w", id, repository.ErrNotFound)
}

func (f *fakeCandidates) ListRecent(_ context.Context, from, to time.Time, limit int) ([]*models.CandidateURL, int64, error) {
	f.listFrom, f.listTo, f.listLimit = from, to, limit
	return f.rows, int64(len(f.rows)), nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newTestHandler(t *testing.T, cands *fakeCandidates, artifact string) *AdminHandler {
	t.Helper()
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewAdminHandler(nil, cands, nil, artifact, lgr)
}

func perform(t *testing.T, h *AdminHandler, method, target string) envelope {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestGetCandidateNotFound(t *testing.T) {
	h := newTestHandler(t, &fakeCandidates{}, "")
	env := perform(t, h, http.MethodGet, "/api/v1/candidates/99")

	if env.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", env.Status)
	}
	var errs []errorBody
	if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) != 1 {
		t.Fatalf("expected one error entry, got %s (%v)", env.Data, err)
	}
	if errs[0].Code != "ERR_NOT_FOUND" {
		t.Fatalf("code = %q, want ERR_NOT_FOUND", errs[0].Code)
	}
	if errs[0].Message != "candidate 99 not found" {
		t.Fatalf("message = %q", errs[0].Message)
	}
}

func TestGetCandidateFound(t *testing.T) {
	cands := &fakeCandidates{rows: []*models.CandidateURL{{
		ID:         7,
		ProductID:  1,
		RetailerID: 2,
		URL:        "https://shop.example/p/7",
		Status:     models.StatusLive,
		Score:      0.9,
	}}}
	h := newTestHandler(t, cands, "")
	env := perform(t, h, http.MethodGet, "/api/v1/candidates/7")

	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var got candidateResponse
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if got.ID != 7 || got.Status != "live" || got.URL != "https://shop.example/p/7" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestListCandidates(t *testing.T) {
	cands := &fakeCandidates{rows: []*models.CandidateURL{
		{ID: 1, URL: "https://shop.example/p/1", Status: models.StatusValid},
		{ID: 2, URL: "https://shop.example/p/2", Status: models.StatusLive},
	}}
	h := newTestHandler(t, cands, "")
	env := perform(t, h, http.MethodGet, "/api/v1/candidates?from=2026-08-01T00:00:00Z&to=2026-08-28T00:00:00Z&limit=10")

	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var list struct {
		Rows  []candidateResponse `json:"rows"`
		Total int64               `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Rows) != 2 || list.Total != 2 {
		t.Fatalf("rows=%d total=%d, want 2/2", len(list.Rows), list.Total)
	}

	if cands.listLimit != 10 {
		t.Fatalf("limit = %d, want 10", cands.listLimit)
	}
	wantFrom := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !cands.listFrom.Equal(wantFrom) {
		t.Fatalf("from = %v, want %v", cands.listFrom, wantFrom)
	}
	if cands.listTo.IsZero() {
		t.Fatal("to bound not passed through")
	}
}

func TestListCandidatesRejectsBadLimit(t *testing.T) {
	h := newTestHandler(t, &fakeCandidates{}, "")
	env := perform(t, h, http.MethodGet, "/api/v1/candidates?limit=0")

	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
	var errs []errorBody
	if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) != 1 {
		t.Fatalf("expected one error entry, got %s (%v)", env.Data, err)
	}
	if errs[0].Code != "ERR_BAD_REQUEST" {
		t.Fatalf("code = %q, want ERR_BAD_REQUEST", errs[0].Code)
	}
}

func TestGetCalibratorMissingArtifact(t *testing.T) {
	h := newTestHandler(t, &fakeCandidates{}, filepath.Join(t.TempDir(), "calibrator.json"))
	env := perform(t, h, http.MethodGet, "/api/v1/calibrator")

	if env.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", env.Status)
	}
	var errs []errorBody
	if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) != 1 {
		t.Fatalf("expected one error entry, got %s (%v)", env.Data, err)
	}
	if errs[0].Code != "ERR_NOT_FOUND" {
		t.Fatalf("code = %q, want ERR_NOT_FOUND", errs[0].Code)
	}
}
