package ratebudget

import (
	"context"
	"strconv"
	"time"

	"DropWatch/pkg/kvstore"
	"DropWatch/pkg/logger"
)

// FallbackQPM is the hardcoded floor when no configuration layer resolves.
const FallbackQPM = 6

const defaultWindow = 60 * time.Second

// Gate enforces a per-retailer queries-per-minute budget against the
// shared counter store. It fails open: availability of the check loop
// outranks schedule correctness, so a broken counter backend never
// stalls checking.
type Gate struct {
	kv         kvstore.Store
	logger     *logger.Logger
	defaultQPM int
	overrides  map[string]int
	window     time.Duration
}

// New creates a budget gate. overrides holds per-retailer QPM from static
// config; the dynamic store value still wins over it.
func New(kv kvstore.Store, lgr *logger.Logger, defaultQPM int, overrides map[string]int) *Gate {
	return &Gate{
		kv:         kv,
		logger:     lgr,
		defaultQPM: defaultQPM,
		overrides:  overrides,
		window:     defaultWindow,
	}
}

// Allow consumes one token from the retailer's 60-second budget window
// and reports whether the request may proceed.
func (g *Gate) Allow(ctx context.Context, slug string) bool {
	qpm := g.resolveQPM(ctx, slug)

	limited, err := g.kv.RateLimit(ctx, "budget:"+slug, g.window, qpm)
	if err != nil {
		g.logger.Warn("budget store unavailable, failing open",
			logger.String("retailer", slug), logger.Error(err))
		return true
	}
	return !limited
}

// resolveQPM walks the config layers: dynamic store value, static
// per-retailer override, global default, hardcoded fallback.
func (g *Gate) resolveQPM(ctx context.Context, slug string) int {
	if v, err := g.kv.Get(ctx, "qpm:"+slug); err == nil {
		if qpm, perr := strconv.Atoi(v); perr == nil && qpm > 0 {
			return qpm
		}
	}
	if qpm, ok := g.overrides[slug]; ok && qpm > 0 {
		return qpm
	}
	if g.defaultQPM > 0 {
		return g.defaultQPM
	}
	return FallbackQPM
}
