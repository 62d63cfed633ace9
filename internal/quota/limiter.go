/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package quota implements sliding-window admission over the shared store.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/internal/metrics"
	"github.com/blnkfinance/namecard/internal/store"
	"github.com/blnkfinance/namecard/model"
)

// Policy decides the outcome when the store cannot be reached.
type Policy int

const (
	FailOpen Policy = iota
	FailClosed
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	}
	return FailOpen, fmt.Errorf("unknown quota fail policy %q", s)
}

func (p Policy) String() string {
	if p == FailClosed {
		return "closed"
	}
	return "open"
}

// Decision is the outcome of an admission check. Count includes the request
// being checked when it was allowed. RetryAfter is zero when Allowed.
// Degraded is set when the store failed and the policy decided.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int64
	RetryAfter time.Duration
	ResetAt    time.Time
	Degraded   bool

	// recorded window entry, empty unless the store admitted the request
	key    string
	member string
}

type Limiter struct {
	store   store.Store
	policy  Policy
	now     func() time.Time
	timeout time.Duration
	loc     *time.Location
}

type Option func(*Limiter)

func WithPolicy(p Policy) Option {
	return func(l *Limiter) { l.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLocation sets the time zone period boundaries are computed in.
func WithLocation(loc *time.Location) Option {
	return func(l *Limiter) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func NewLimiter(s store.Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:   s,
		policy:  FailOpen,
		now:     time.Now,
		timeout: 2 * time.Second,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ScopeKey is the quota key for one user of one tenant.
func ScopeKey(tenantID, userID string) string {
	return model.ScopedKey("quota", tenantID, userID)
}

// Now returns the limiter's clock in its configured location.
func (l *Limiter) Now() time.Time {
	return l.now().In(l.loc)
}

// CheckAndRecord admits a request when fewer than limit requests were
// recorded for scopeKey in the trailing window, and records it.
func (l *Limiter) CheckAndRecord(ctx context.Context, scopeKey string, limit int64, window time.Duration) (Decision, error) {
	now := l.Now()
	floor := now.Add(-window)
	d, err := l.check(ctx, scopeKey, limit, floor, now, window+time.Second)
	if err != nil {
		return d, err
	}
	if !d.Allowed && !d.Degraded {
		// the slot frees up when the oldest entry leaves the window
		d.ResetAt = d.ResetAt.Add(window)
		d.RetryAfter = d.ResetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	if d.Allowed {
		d.ResetAt = now.Add(window)
	}
	return d, nil
}

// CheckPeriod admits a request when fewer than limit requests were recorded
// since the start of the current cadence period.
func (l *Limiter) CheckPeriod(ctx context.Context, scopeKey string, limit int64, cadence model.Cadence, resetDay int) (Decision, error) {
	now := l.Now()
	start := PeriodStart(now, cadence, resetDay)
	reset := NextReset(now, cadence, resetDay)
	d, err := l.check(ctx, scopeKey, limit, start, now, reset.Sub(now)+time.Second)
	if err != nil {
		return d, err
	}
	d.ResetAt = reset
	if !d.Allowed {
		d.RetryAfter = reset.Sub(now)
	}
	return d, nil
}

// Release gives back the unit an allowed decision recorded. Degraded and
// denied decisions recorded nothing and are a no-op.
func (l *Limiter) Release(ctx context.Context, d Decision) error {
	if d.member == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.store.ZRem(ctx, d.key, d.member); err != nil {
		return fmt.Errorf("quota release for %s: %w", d.key, err)
	}
	metrics.AdmissionDecisions.WithLabelValues("quota", "released").Inc()
	return nil
}

// Remaining reports how many requests the current period still admits
// without recording anything.
func (l *Limiter) Remaining(ctx context.Context, scopeKey string, limit int64, cadence model.Cadence, resetDay int) (int64, error) {
	now := l.Now()
	start := PeriodStart(now, cadence, resetDay)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	used, err := l.store.ZCount(ctx, scopeKey, float64(start.UnixMilli()), math.Inf(1))
	if err != nil {
		if l.policy == FailOpen {
			l.logDegraded(scopeKey, err)
			return limit, nil
		}
		return 0, fmt.Errorf("quota peek for %s: %w", scopeKey, err)
	}
	if used >= limit {
		return 0, nil
	}
	return limit - used, nil
}

func (l *Limiter) check(ctx context.Context, scopeKey string, limit int64, floor, now time.Time, ttl time.Duration) (Decision, error) {
	d := Decision{Limit: limit}
	if limit <= 0 {
		metrics.AdmissionDecisions.WithLabelValues("quota", "denied").Inc()
		return d, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
	res, err := l.store.SlidingWindow(ctx, scopeKey, floor, now, member, limit, ttl)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return d, err
		}
		l.logDegraded(scopeKey, err)
		d.Degraded = true
		d.Allowed = l.policy == FailOpen
		metrics.AdmissionDecisions.WithLabelValues("quota", "degraded").Inc()
		return d, nil
	}

	d.Allowed = res.Allowed
	d.Count = res.Count
	d.ResetAt = res.Oldest
	if d.Allowed {
		d.key, d.member = scopeKey, member
		metrics.AdmissionDecisions.WithLabelValues("quota", "allowed").Inc()
	} else {
		metrics.AdmissionDecisions.WithLabelValues("quota", "denied").Inc()
	}
	return d, nil
}

func (l *Limiter) logDegraded(scopeKey string, err error) {
	logrus.WithFields(logrus.Fields{
		"scope":  scopeKey,
		"policy": l.policy.String(),
	}).WithError(err).Warn("quota store unavailable, applying fail policy")
}
