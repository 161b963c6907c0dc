package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
	"DropWatch/internal/service/fetcher"
	"DropWatch/pkg/kvstore"
	"DropWatch/pkg/logger"
)

type fakeCandidates struct {
	rows    []*models.CandidateURL
	updated []*models.CandidateURL
}

func (f *fakeCandidates) ListCheckable(_ context.Context, limit int) ([]*models.CandidateURL, error) {
	if limit < len(f.rows) {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func (f *fakeCandidates) UpdateCheckResult(_ context.Context, c *models.CandidateURL) error {
	cp := *c
	f.updated = append(f.updated, &cp)
	return nil
}

func (f *fakeCandidates) GetByID(_ context.Context, id int64) (*models.CandidateURL, error) {
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCandidates) ListRecent(_ context.Context, _, _ time.Time, limit int) ([]*models.CandidateURL, int64, error) {
	if limit < len(f.rows) {
		return f.rows[:limit], int64(len(f.rows)), nil
	}
	return f.rows, int64(len(f.rows)), nil
}

type fakeRetailers struct{ list []*models.Retailer }

func (f *fakeRetailers) ListAll(context.Context) ([]*models.Retailer, error) {
	return f.list, nil
}

type fakeEvents struct{ appended []*models.DropEvent }

func (f *fakeEvents) Append(_ context.Context, e *models.DropEvent) error {
	f.appended = append(f.appended, e)
	return nil
}

func (f *fakeEvents) ActivePairs(context.Context, time.Time, int) ([]models.Pair, error) {
	return nil, nil
}

func (f *fakeEvents) ListForPair(context.Context, models.Pair, time.Time) ([]*models.DropEvent, error) {
	return nil, nil
}

type fakeOutcomes struct{ firstSeen []int64 }

func (f *fakeOutcomes) RecordFirstSeen(_ context.Context, productID, _ int64, _ time.Time) error {
	f.firstSeen = append(f.firstSeen, productID)
	return nil
}

type fakePublisher struct{ published []*models.DropEvent }

func (f *fakePublisher) Publish(_ context.Context, e *models.DropEvent) error {
	f.published = append(f.published, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeMetrics struct{ counts map[string]int }

func (f *fakeMetrics) RecordCheck(retailer, counter string) {
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[retailer+"/"+counter]++
}

func (f *fakeMetrics) RecordFetchLatency(string, float64)   {}
func (f *fakeMetrics) RecordTraining(int, float64, float64) {}

type fakeGate struct{ denied map[string]bool }

func (f *fakeGate) Allow(_ context.Context, slug string) bool { return !f.denied[slug] }

type fakeFetcher struct {
	responses map[string]*fetcher.Response
	errs      map[string]error
	calls     []fetcher.Options
}

func (f *fakeFetcher) Get(_ context.Context, url string, opts fetcher.Options) (*fetcher.Response, error) {
	f.calls = append(f.calls, opts)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if r, ok := f.responses[url]; ok {
		return r, nil
	}
	return &fetcher.Response{Status: 200, Body: "<html></html>"}, nil
}

const liveBody = `<html><head><title>Scarlet Booster Bundle</title></head>
<body><h1>Booster Bundle</h1><button>Add to Cart</button><span>$39.99</span></body></html>`

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lgr
}

type checkerEnv struct {
	checker    *CandidateChecker
	candidates *fakeCandidates
	events     *fakeEvents
	outcomes   *fakeOutcomes
	publisher  *fakePublisher
	metrics    *fakeMetrics
	gate       *fakeGate
	fetch      *fakeFetcher
	kv         kvstore.Store
}

func newCheckerEnv(t *testing.T, rows []*models.CandidateURL, cfg CheckerConfig) *checkerEnv {
	t.Helper()
	env := &checkerEnv{
		candidates: &fakeCandidates{rows: rows},
		events:     &fakeEvents{},
		outcomes:   &fakeOutcomes{},
		publisher:  &fakePublisher{},
		metrics:    &fakeMetrics{},
		gate:       &fakeGate{denied: map[string]bool{}},
		fetch:      &fakeFetcher{responses: map[string]*fetcher.Response{}, errs: map[string]error{}},
		kv:         kvstore.NewMemoryStore(),
	}
	retailers := &fakeRetailers{list: []*models.Retailer{
		{ID: 1, Slug: "bestbuy", Name: "Best Buy"},
		{ID: 2, Slug: "target", Name: "Target"},
	}}
	env.checker = NewCandidateChecker(
		env.candidates, retailers, env.events, env.outcomes,
		env.publisher, env.metrics, env.gate, env.fetch, env.kv,
		newTestLogger(t), cfg)
	return env
}

func TestCheckBatchLiveEndToEnd(t *testing.T) {
	url := "https://www.bestbuy.com/site/pokemon-booster-bundle/6530000.p"
	rows := []*models.CandidateURL{
		{ID: 1, ProductID: 10, RetailerID: 1, URL: url, Status: models.StatusUnknown, Score: 0.4},
	}
	env := newCheckerEnv(t, rows, CheckerConfig{RenderOnBlock: true})
	env.fetch.responses[url] = &fetcher.Response{Status: 200, Body: liveBody}

	report, err := env.checker.CheckBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("CheckBatch: %v", err)
	}
	if report.Checked != 1 || report.LiveFound != 1 {
		t.Fatalf("report = %+v, want checked=1 live=1", report)
	}

	if len(env.candidates.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(env.candidates.updated))
	}
	got := env.candidates.updated[0]
	if got.Status != models.StatusLive {
		t.Fatalf("status = %s, want live", got.Status)
	}
	if diff := got.Score - 0.65; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("score = %f, want 0.65", got.Score)
	}
	if !strings.Contains(got.Reason, "cta") || !strings.Contains(got.Reason, "price_seen") {
		t.Fatalf("reason = %q, want cta and price_seen", got.Reason)
	}
	if len(env.outcomes.firstSeen) != 1 || env.outcomes.firstSeen[0] != 10 {
		t.Fatalf("first seen = %v, want [10]", env.outcomes.firstSeen)
	}

	var liveSignal *models.DropEvent
	for _, e := range env.publisher.published {
		if e.SignalType == models.SignalURLLive {
			liveSignal = e
		}
	}
	if liveSignal == nil {
		t.Fatal("no url_live signal published")
	}
	if liveSignal.Confidence != 85 {
		t.Fatalf("confidence = %d, want 85", liveSignal.Confidence)
	}
}

func TestCheckBatchBlockedRenderDisabled(t *testing.T) {
	url := "https://www.bestbuy.com/site/pokemon-booster-bundle/6530000.p"
	rows := []*models.CandidateURL{
		{ID: 1, ProductID: 10, RetailerID: 1, URL: url, Status: models.StatusUnknown, Score: 0.5},
	}
	env := newCheckerEnv(t, rows, CheckerConfig{RenderOnBlock: false})
	// 200 with a captcha interstitial; the CTA wording must never reach
	// the extractor.
	env.fetch.responses[url] = &fetcher.Response{
		Status: 200,
		Body:   `<html><body>Please complete the captcha. Add to Cart $39.99</body></html>`,
	}

	report, err := env.checker.CheckBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("CheckBatch: %v", err)
	}
	if report.LiveFound != 0 {
		t.Fatalf("live found = %d, want 0", report.LiveFound)
	}

	got := env.candidates.updated[0]
	if got.Status != models.StatusUnknown {
		t.Fatalf("status = %s, want unknown", got.Status)
	}
	if diff := got.Score - 0.45; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("score = %f, want 0.45", got.Score)
	}
	if !strings.HasPrefix(got.Reason, "http_200") {
		t.Fatalf("reason = %q, want http_200 prefix", got.Reason)
	}
	if len(env.fetch.calls) != 1 {
		t.Fatalf("fetch calls = %d, want 1 (no render retry)", len(env.fetch.calls))
	}
}

func TestCheckBatchRenderFallbackOnBlock(t *testing.T) {
	url := "https://www.target.com/p/booster-bundle/-/A-88897429"
	rows := []*models.CandidateURL{
		{ID: 1, ProductID: 10, RetailerID: 2, URL: url, Status: models.StatusValid, Score: 0.3},
	}
	env := newCheckerEnv(t, rows, CheckerConfig{RenderOnBlock: true})

	blocked := &fetcher.Response{Status: 403, Body: "Access Denied"}
	env.fetch.responses[url] = blocked

	f := env.fetch
	f.responses[url] = blocked
	// Swap in the rendered page once the fallback fires.
	env.checker.fetch = fetchFunc(func(ctx context.Context, u string, opts fetcher.Options) (*fetcher.Response, error) {
		f.calls = append(f.calls, opts)
		if opts.Render {
			return &fetcher.Response{Status: 200, Body: liveBody}, nil
		}
		return blocked, nil
	})

	report, err := env.checker.CheckBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("CheckBatch: %v", err)
	}
	if report.LiveFound != 1 {
		t.Fatalf("live found = %d, want 1", report.LiveFound)
	}
	if len(f.calls) != 2 || !f.calls[1].Render {
		t.Fatalf("expected plain fetch then render fetch, got %+v", f.calls)
	}
	if env.metrics.counts["target/blocked"] != 1 {
		t.Fatalf("blocked metric = %d, want 1", env.metrics.counts["target/blocked"])
	}
}

type fetchFunc func(ctx context.Context, url string, opts fetcher.Options) (*fetcher.Response, error)

func (f fetchFunc) Get(ctx context.Context, url string, opts fetcher.Options) (*fetcher.Response, error) {
	return f(ctx, url, opts)
}

func TestCheckBatchGoneStrictlyDecreasesScore(t *testing.T) {
	for _, prior := range []float64{0.0, 0.2, 1.0} {
		url := "https://www.bestbuy.com/site/gone/123.p"
		rows := []*models.CandidateURL{
			{ID: 1, ProductID: 10, RetailerID: 1, URL: url, Status: models.StatusValid, Score: prior},
		}
		env := newCheckerEnv(t, rows, CheckerConfig{})
		env.fetch.responses[url] = &fetcher.Response{Status: 404, Body: "not found"}

		if _, err := env.checker.CheckBatch(context.Background(), 10); err != nil {
			t.Fatalf("CheckBatch: %v", err)
		}
		got := env.candidates.updated[0]
		if got.Status != models.StatusInvalid {
			t.Fatalf("status = %s, want invalid", got.Status)
		}
		if prior > 0 && got.Score >= prior {
			t.Fatalf("score %f did not decrease from %f", got.Score, prior)
		}
		if got.Score < 0 || got.Score > 1 {
			t.Fatalf("score %f outside [0,1]", got.Score)
		}
		if got.Reason != "http_404" {
			t.Fatalf("reason = %q, want http_404", got.Reason)
		}
	}
}

func TestCheckBatchBudgetSkip(t *testing.T) {
	rows := []*models.CandidateURL{
		{ID: 1, ProductID: 10, RetailerID: 1, URL: "https://www.bestbuy.com/site/a/1.p", Status: models.StatusUnknown},
		{ID: 2, ProductID: 11, RetailerID: 2, URL: "https://www.target.com/p/b/-/A-2", Status: models.StatusUnknown},
	}
	env := newCheckerEnv(t, rows, CheckerConfig{})
	env.gate.denied["bestbuy"] = true

	report, err := env.checker.CheckBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("CheckBatch: %v", err)
	}
	if report.Checked != 1 {
		t.Fatalf("checked = %d, want 1", report.Checked)
	}
	for _, u := range env.candidates.updated {
		if u.ID == 1 {
			t.Fatal("budget-exhausted row was mutated")
		}
	}
	if env.metrics.counts["bestbuy/requests"] != 0 {
		t.Fatal("requests metric recorded for skipped row")
	}
}

func TestCheckBatchCountsAllEligible(t *testing.T) {
	var rows []*models.CandidateURL
	for i := int64(1); i <= 5; i++ {
		rows = append(rows, &models.CandidateURL{
			ID: i, ProductID: i, RetailerID: 1,
			URL:    "https://www.bestbuy.com/site/x/1.p",
			Status: models.StatusUnknown,
		})
	}
	env := newCheckerEnv(t, rows, CheckerConfig{})

	report, err := env.checker.CheckBatch(context.Background(), 5)
	if err != nil {
		t.Fatalf("CheckBatch: %v", err)
	}
	if report.Checked != 5 {
		t.Fatalf("checked = %d, want 5", report.Checked)
	}
}

func TestCheckBatchErrorIsolated(t *testing.T) {
	badURL := "https://www.bestbuy.com/site/bad/1.p"
	goodURL := "https://www.bestbuy.com/site/good/2.p"
	rows := []*models.CandidateURL{
		{ID: 1, ProductID: 10, RetailerID: 1, URL: badURL, Status: models.StatusUnknown, Score: 0.2},
		{ID: 2, ProductID: 11, RetailerID: 1, URL: goodURL, Status: models.StatusUnknown, Score: 0.2},
	}
	env := newCheckerEnv(t, rows, CheckerConfig{})
	env.fetch.errs[badURL] = errors.New("dial tcp: i/o timeout")
	env.fetch.responses[goodURL] = &fetcher.Response{Status: 200, Body: "<html><body>landing</body></html>"}

	report, err := env.checker.CheckBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("CheckBatch: %v", err)
	}
	if report.Checked != 2 {
		t.Fatalf("checked = %d, want 2", report.Checked)
	}

	var bad *models.CandidateURL
	for _, u := range env.candidates.updated {
		if u.ID == 1 {
			bad = u
		}
	}
	if bad == nil {
		t.Fatal("errored row not persisted")
	}
	if bad.Status != models.StatusUnknown {
		t.Fatalf("status = %s, want unknown", bad.Status)
	}
	if diff := bad.Score - 0.15; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("score = %f, want 0.15", bad.Score)
	}
	if env.metrics.counts["bestbuy/errors"] != 1 {
		t.Fatalf("errors metric = %d, want 1", env.metrics.counts["bestbuy/errors"])
	}
}

func TestCheckBatchDynamicRenderPolicy(t *testing.T) {
	url := "https://www.bestbuy.com/site/x/1.p"
	rows := []*models.CandidateURL{
		{ID: 1, ProductID: 10, RetailerID: 1, URL: url, Status: models.StatusUnknown},
	}
	env := newCheckerEnv(t, rows, CheckerConfig{RenderOnBlock: true})
	if err := env.kv.Set(context.Background(), "render:bestbuy", "never", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	env.fetch.responses[url] = &fetcher.Response{Status: 403, Body: "Access Denied"}

	if _, err := env.checker.CheckBatch(context.Background(), 10); err != nil {
		t.Fatalf("CheckBatch: %v", err)
	}
	if len(env.fetch.calls) != 1 {
		t.Fatalf("fetch calls = %d, want 1 (policy never)", len(env.fetch.calls))
	}
}

func TestCheckBatchEmitsLifecycleSignals(t *testing.T) {
	url := "https://www.bestbuy.com/site/pokemon-booster-bundle/6530000.p"
	rows := []*models.CandidateURL{
		{ID: 1, ProductID: 10, RetailerID: 1, URL: url, Status: models.StatusUnknown},
	}
	env := newCheckerEnv(t, rows, CheckerConfig{})
	env.fetch.responses[url] = &fetcher.Response{Status: 200, Body: liveBody}

	if _, err := env.checker.CheckBatch(context.Background(), 10); err != nil {
		t.Fatalf("CheckBatch: %v", err)
	}

	seen := map[models.SignalType]bool{}
	for _, e := range env.events.appended {
		seen[e.SignalType] = true
		if e.ID == "" || e.Source == "" {
			t.Fatalf("event missing id or source: %+v", e)
		}
	}
	for _, want := range []models.SignalType{models.SignalURLSeen, models.SignalURLLive, models.SignalStatusChange} {
		if !seen[want] {
			t.Fatalf("missing %s event, got %v", want, seen)
		}
	}
}
