package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/varden/recover/internal/recover/store"
	"github.com/varden/recover/pkg/slogx"
)

// rateLimitPrefix scopes penalty counters inside the shared KV store.
const rateLimitPrefix = "rate-limit:"

// RateLimiter applies an exponential penalty per (action, client) pair.
//
// Each attempt increments the pair's counter and stretches its lifetime to
// n*n seconds, where n is the attempt count. Only the first attempt while no
// counter exists is admitted; every retry inside the penalty window both gets
// denied and pushes the window further out, so hammering makes things
// strictly worse for the caller.
type RateLimiter struct {
	Store store.KV

	// Disabled bypasses the limiter entirely, for test rigs and local runs.
	Disabled bool
}

// Admit records an attempt for the (action, client) pair and reports whether
// it may proceed. The penalty extension happens on every call, admitted or
// not.
func (r *RateLimiter) Admit(ctx context.Context, action, client string) (bool, error) {
	if r.Disabled {
		return true, nil
	}

	key := rateLimitPrefix + action + ":" + client

	n, err := r.Store.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if err := r.Store.Expire(ctx, key, time.Duration(n*n)*time.Second); err != nil {
		return false, err
	}

	if n > 1 {
		slogx.FromContext(ctx).Info("rate limit exceeded",
			slog.String("action", action),
			slog.Int64("attempts", n),
			slog.Int64("penalty_seconds", n*n),
		)
		return false, nil
	}
	return true, nil
}
