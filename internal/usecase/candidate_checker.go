package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
	"DropWatch/internal/service/cache"
	"DropWatch/internal/service/fetcher"
	"DropWatch/internal/services/extract"
	"DropWatch/pkg/kvstore"
	"DropWatch/pkg/logger"
	"DropWatch/pkg/util"
)

// Fetcher is the page-retrieval seam the checker depends on.
type Fetcher interface {
	Get(ctx context.Context, url string, opts fetcher.Options) (*fetcher.Response, error)
}

// BudgetGate admits or rejects one fetch against a retailer's rate budget.
type BudgetGate interface {
	Allow(ctx context.Context, slug string) bool
}

// RenderPolicy controls when the headless render fallback is used.
type RenderPolicy string

const (
	RenderAlways  RenderPolicy = "always"
	RenderOnBlock RenderPolicy = "on_block"
	RenderNever   RenderPolicy = "never"
)

const (
	retailerCacheKey = "retailers"
	signalSource     = "candidate-checker"
)

// Score adjustments per classification outcome. Score is a persistent
// accumulator; every outcome nudges it by a fixed signed amount and the
// result is clamped to [0,1].
const (
	scoreLive      = 0.25
	scoreValid     = 0.05
	scoreGone      = -0.3
	scoreTransient = -0.05
	scoreErrOther  = -0.02
)

// CheckerConfig carries the knobs for one checker instance.
type CheckerConfig struct {
	BatchLimit       int
	PacingDelay      time.Duration
	FetchTimeout     time.Duration
	RenderTimeout    time.Duration
	ForceRender      bool
	RenderOnBlock    bool
	RetailerCacheTTL time.Duration
}

// Report summarizes one checkBatch invocation.
type Report struct {
	Checked   int
	LiveFound int
}

// CandidateChecker evaluates a bounded batch of candidate URLs against
// their retailers: fetch, classify, persist, emit signals. Batches are
// strictly sequential; parallelism across retailers is achieved by
// scheduling separate invocations, never by internal fan-out.
type CandidateChecker struct {
	candidates repository.Candidates
	retailers  repository.Retailers
	events     repository.Events
	outcomes   repository.Outcomes
	publisher  repository.SignalPublisher
	metrics    repository.Metrics
	gate       BudgetGate
	fetch      Fetcher
	kv         kvstore.Store
	cache      *cache.TTLCache
	logger     *logger.Logger
	cfg        CheckerConfig
}

// NewCandidateChecker wires the checker with its collaborators.
func NewCandidateChecker(
	candidates repository.Candidates,
	retailers repository.Retailers,
	events repository.Events,
	outcomes repository.Outcomes,
	publisher repository.SignalPublisher,
	metrics repository.Metrics,
	gate BudgetGate,
	fetch Fetcher,
	kv kvstore.Store,
	lgr *logger.Logger,
	cfg CheckerConfig,
) *CandidateChecker {
	return &CandidateChecker{
		candidates: candidates,
		retailers:  retailers,
		events:     events,
		outcomes:   outcomes,
		publisher:  publisher,
		metrics:    metrics,
		gate:       gate,
		fetch:      fetch,
		kv:         kv,
		cache:      cache.NewTTLCache(),
		logger:     lgr,
		cfg:        cfg,
	}
}

// CheckBatch evaluates up to limit checkable candidates. Rows whose
// retailer budget is exhausted are skipped silently: not counted, not
// mutated. Per-row failures are isolated so one bad candidate cannot
// abort the rest of the batch.
func (c *CandidateChecker) CheckBatch(ctx context.Context, limit int) (*Report, error) {
	if limit <= 0 {
		limit = c.cfg.BatchLimit
	}

	rows, err := c.candidates.ListCheckable(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkable candidates: %w", err)
	}

	report := &Report{}
	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}

		slug := c.retailerSlug(ctx, row.RetailerID)

		if !c.gate.Allow(ctx, slug) {
			c.logger.Debug("budget exhausted, skipping candidate",
				logger.String("retailer", slug),
				logger.Int64("candidate_id", row.ID))
			continue
		}

		report.Checked++
		c.metrics.RecordCheck(slug, "requests")

		live := c.checkOne(ctx, row, slug)
		if live {
			report.LiveFound++
		}

		if i < len(rows)-1 {
			c.pace(ctx)
		}
	}

	c.logger.Info("candidate batch complete",
		logger.Int("checked", report.Checked),
		logger.Int("live_found", report.LiveFound))
	return report, nil
}

// checkOne fetches and classifies a single candidate, persisting the
// resulting state. Returns true when the candidate was classified live.
func (c *CandidateChecker) checkOne(ctx context.Context, row *models.CandidateURL, slug string) bool {
	prevStatus := row.Status
	policy := c.renderPolicy(ctx, slug)
	useSession := c.sessionEnabled(ctx, slug)

	opts := fetcher.Options{Timeout: c.cfg.FetchTimeout, UseSession: useSession}
	if policy == RenderAlways {
		opts.Render = true
		opts.Timeout = c.cfg.RenderTimeout
	}

	start := time.Now()
	resp, err := c.fetch.Get(ctx, row.URL, opts)
	c.metrics.RecordFetchLatency(slug, time.Since(start).Seconds())
	if err != nil {
		c.classifyError(row, err)
		c.metrics.RecordCheck(slug, "errors")
		c.persist(ctx, row, slug)
		c.emitTransitions(ctx, row, prevStatus)
		return false
	}

	blocked := blockedStatus(resp.Status) || extract.LooksBlocked(resp.Body)
	if blocked {
		c.metrics.RecordCheck(slug, "blocked")
		if policy == RenderOnBlock {
			rendered, rerr := c.fetch.Get(ctx, row.URL, fetcher.Options{
				Timeout:    c.cfg.RenderTimeout,
				Render:     true,
				UseSession: useSession,
			})
			if rerr != nil {
				c.classifyError(row, rerr)
				c.metrics.RecordCheck(slug, "errors")
				c.persist(ctx, row, slug)
				c.emitTransitions(ctx, row, prevStatus)
				return false
			}
			resp = rendered
			blocked = blockedStatus(resp.Status) || extract.LooksBlocked(resp.Body)
		}
	}

	live := c.classify(ctx, row, slug, resp, blocked)
	c.persist(ctx, row, slug)
	c.emitTransitions(ctx, row, prevStatus)
	return live
}

// classify applies the outcome table to the final response. A blocked
// body never reaches the extractor; it degrades as transient with the
// status code preserved in the reason.
func (c *CandidateChecker) classify(ctx context.Context, row *models.CandidateURL, slug string, resp *fetcher.Response, blocked bool) bool {
	switch {
	case blocked:
		row.Score = util.Clamp01(row.Score + scoreTransient)
		if resp.Status >= 200 && resp.Status < 300 {
			// Bot wall behind a 2xx; the body must not reach the extractor.
			row.Reason = fmt.Sprintf("http_%d_blocked", resp.Status)
		} else {
			row.Reason = fmt.Sprintf("http_%d", resp.Status)
		}
		return false

	case resp.Status == 404 || resp.Status == 410:
		// Definitively gone. Strongest negative adjustment in the system;
		// recovery requires an operator re-seeding the candidate.
		row.Status = models.StatusInvalid
		row.Score = util.Clamp01(row.Score + scoreGone)
		row.Reason = fmt.Sprintf("http_%d", resp.Status)
		c.metrics.RecordCheck(slug, "invalid")
		return false

	case resp.Status >= 200 && resp.Status < 300:
		ev := extract.Evaluate(row.URL, resp.Body)
		isProduct := extract.IsLikelyProductPage(row.URL, resp.Body)
		if isProduct && (ev.IsLive || (ev.IsProduct && ev.PriceFound)) {
			row.Status = models.StatusLive
			row.Score = util.Clamp01(row.Score + scoreLive)
			row.Reason = joinSignals(ev.Signals, "live_detected")
			c.metrics.RecordCheck(slug, "live")

			now := time.Now().UTC()
			if err := c.outcomes.RecordFirstSeen(ctx, row.ProductID, row.RetailerID, now); err != nil {
				c.logger.Error("record first seen failed",
					logger.Int64("product_id", row.ProductID),
					logger.Error(err))
			}
			c.emit(ctx, row, models.SignalURLLive, row.Reason, 85)
			return true
		}

		row.Status = models.StatusValid
		row.Score = util.Clamp01(row.Score + scoreValid)
		row.Reason = joinSignals(ev.Signals, "reachable_no_live_cues")
		c.metrics.RecordCheck(slug, "valid")
		return false

	case resp.Status == 403 || resp.Status == 429:
		row.Score = util.Clamp01(row.Score + scoreTransient)
		row.Reason = fmt.Sprintf("http_%d", resp.Status)
		return false

	default:
		row.Score = util.Clamp01(row.Score + scoreTransient)
		row.Reason = fmt.Sprintf("http_%d", resp.Status)
		return false
	}
}

// classifyError maps transport-level failures onto the same outcome
// table by message shape. Transient failures leave status untouched so
// a live candidate is never demoted by a flaky network.
func (c *CandidateChecker) classifyError(row *models.CandidateURL, err error) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "404") || strings.Contains(msg, "410") || strings.Contains(msg, "gone"):
		row.Status = models.StatusInvalid
		row.Score = util.Clamp01(row.Score + scoreGone)
		row.Reason = "fetch_gone"
	case strings.Contains(msg, "403") || strings.Contains(msg, "429") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "connection"):
		row.Score = util.Clamp01(row.Score + scoreTransient)
		row.Reason = "fetch_transient"
	default:
		row.Score = util.Clamp01(row.Score + scoreErrOther)
		row.Reason = "fetch_error"
	}
}

// persist writes the row back. The row update is the critical state of
// a check; a failure here is logged loudly but the batch carries on.
func (c *CandidateChecker) persist(ctx context.Context, row *models.CandidateURL, slug string) {
	now := time.Now().UTC()
	row.LastCheckedAt = now
	row.UpdatedAt = now
	if err := c.candidates.UpdateCheckResult(ctx, row); err != nil {
		c.logger.Error("persist check result failed",
			logger.Int64("candidate_id", row.ID),
			logger.String("retailer", slug),
			logger.Error(err))
	}
}

// emitTransitions publishes lifecycle signals once the row's final
// status is known: url_seen the first time an unknown candidate gets a
// classification, status_change whenever the status moved.
func (c *CandidateChecker) emitTransitions(ctx context.Context, row *models.CandidateURL, prev models.CandidateStatus) {
	if row.Status == prev {
		return
	}
	if prev == models.StatusUnknown {
		c.emit(ctx, row, models.SignalURLSeen, string(row.Status), 50)
	}
	c.emit(ctx, row, models.SignalStatusChange,
		fmt.Sprintf("%s:%s", prev, row.Status), 60)
}

// emit appends the event for training reads and publishes it for
// downstream alerting. Both writes are best-effort.
func (c *CandidateChecker) emit(ctx context.Context, row *models.CandidateURL, st models.SignalType, value string, confidence int) {
	e := &models.DropEvent{
		ID:          uuid.NewString(),
		ProductID:   row.ProductID,
		RetailerID:  row.RetailerID,
		SignalType:  st,
		SignalValue: value,
		ObservedAt:  time.Now().UTC(),
		Confidence:  confidence,
		Source:      signalSource,
	}
	if err := c.events.Append(ctx, e); err != nil {
		c.logger.Error("append drop event failed",
			logger.String("signal", string(st)),
			logger.Error(err))
	}
	if err := c.publisher.Publish(ctx, e); err != nil {
		c.logger.Error("publish drop signal failed",
			logger.String("signal", string(st)),
			logger.Error(err))
	}
}

// renderPolicy resolves the render-fallback policy for a retailer:
// dynamic store key first, then static configuration.
func (c *CandidateChecker) renderPolicy(ctx context.Context, slug string) RenderPolicy {
	if v, err := c.kv.Get(ctx, "render:"+slug); err == nil {
		switch RenderPolicy(v) {
		case RenderAlways, RenderOnBlock, RenderNever:
			return RenderPolicy(v)
		}
	}
	if c.cfg.ForceRender {
		return RenderAlways
	}
	if !c.cfg.RenderOnBlock {
		return RenderNever
	}
	return RenderOnBlock
}

// sessionEnabled reports whether fetches for this retailer should reuse
// the cookie-bearing session client.
func (c *CandidateChecker) sessionEnabled(ctx context.Context, slug string) bool {
	v, err := c.kv.Get(ctx, "session:"+slug)
	return err == nil && (v == "1" || strings.EqualFold(v, "true"))
}

// retailerSlug resolves an id through the cached slug map, populating
// it from the repository on first use. A lookup failure falls back to a
// synthetic slug so budgeting and metrics still have a stable key.
func (c *CandidateChecker) retailerSlug(ctx context.Context, id int64) string {
	if v, ok := c.cache.Get(retailerCacheKey); ok {
		if slug, ok := v.(map[int64]string)[id]; ok {
			return slug
		}
	}

	all, err := c.retailers.ListAll(ctx)
	if err != nil {
		c.logger.Warn("retailer lookup failed", logger.Error(err))
		return fmt.Sprintf("retailer-%d", id)
	}

	m := make(map[int64]string, len(all))
	for _, r := range all {
		m[r.ID] = r.Slug
	}
	c.cache.Set(retailerCacheKey, m, c.cfg.RetailerCacheTTL)

	if slug, ok := m[id]; ok {
		return slug
	}
	return fmt.Sprintf("retailer-%d", id)
}

// InvalidateRetailers drops the cached slug map, forcing a reload on
// the next batch.
func (c *CandidateChecker) InvalidateRetailers() {
	c.cache.Delete(retailerCacheKey)
}

func (c *CandidateChecker) pace(ctx context.Context) {
	if c.cfg.PacingDelay <= 0 {
		return
	}
	t := time.NewTimer(c.cfg.PacingDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func blockedStatus(status int) bool {
	return status == 403 || status == 407 || status == 429
}

func joinSignals(signals []string, fallback string) string {
	if len(signals) == 0 {
		return fallback
	}
	return strings.Join(signals, ",")
}
