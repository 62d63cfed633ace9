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

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/blnkfinance/namecard/internal/metrics"
)

// FailoverSettings tunes the breaker in front of the primary store.
type FailoverSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// Cooldown is how long the breaker stays open before probing the primary.
	Cooldown time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
}

func (s FailoverSettings) withDefaults() FailoverSettings {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 3
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}
	return s
}

// FailoverStore sends every call to primary and serves it from secondary
// while primary is failing. Writes made during an outage stay in secondary;
// cross-instance consistency is lost until the breaker closes again.
type FailoverStore struct {
	primary   Store
	secondary Store
	cb        *gobreaker.CircuitBreaker[any]
}

func NewFailoverStore(primary, secondary Store, settings FailoverSettings) *FailoverStore {
	settings = settings.withDefaults()
	f := &FailoverStore{primary: primary, secondary: secondary}

	metrics.StoreBreakerState.Set(0)
	f.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "store-" + primary.Name(),
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry := logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			if to == gobreaker.StateOpen {
				entry.Warn("store unavailable, serving from in-memory fallback")
			} else {
				entry.Info("store breaker state changed")
			}
			metrics.StoreBreakerState.Set(stateToFloat(to))
		},
	})
	return f
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Degraded reports whether calls are currently being served by the fallback.
func (f *FailoverStore) Degraded() bool {
	return f.cb.State() != gobreaker.StateClosed
}

func (f *FailoverStore) Name() string {
	return fmt.Sprintf("failover(%s,%s)", f.primary.Name(), f.secondary.Name())
}

// Ping reports the health of the primary only.
func (f *FailoverStore) Ping(ctx context.Context) error {
	return f.primary.Ping(ctx)
}

func run[T any](ctx context.Context, f *FailoverStore, op string, fn func(Store) (T, error)) (T, error) {
	out, err := f.cb.Execute(func() (any, error) {
		v, err := fn(f.primary)
		return v, err
	})
	if err == nil {
		return out.(T), nil
	}
	if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
		var zero T
		return zero, err
	}

	if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		logrus.WithFields(logrus.Fields{
			"operation": op,
			"store":     f.primary.Name(),
		}).WithError(err).Warn("primary store call failed, using in-memory fallback")
	}
	metrics.StoreFailovers.WithLabelValues(op).Inc()
	return fn(f.secondary)
}

func runErr(ctx context.Context, f *FailoverStore, op string, fn func(Store) error) error {
	_, err := run(ctx, f, op, func(s Store) (struct{}, error) {
		return struct{}{}, fn(s)
	})
	return err
}

func (f *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	return run(ctx, f, "get", func(s Store) ([]byte, error) { return s.Get(ctx, key) })
}

func (f *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return runErr(ctx, f, "set", func(s Store) error { return s.Set(ctx, key, value, ttl) })
}

func (f *FailoverStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return run(ctx, f, "setnx", func(s Store) (bool, error) { return s.SetNX(ctx, key, value, ttl) })
}

func (f *FailoverStore) Delete(ctx context.Context, keys ...string) error {
	return runErr(ctx, f, "delete", func(s Store) error { return s.Delete(ctx, keys...) })
}

func (f *FailoverStore) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	return run(ctx, f, "compare_and_delete", func(s Store) (bool, error) { return s.CompareAndDelete(ctx, key, value) })
}

func (f *FailoverStore) Incr(ctx context.Context, key string) (int64, error) {
	return run(ctx, f, "incr", func(s Store) (int64, error) { return s.Incr(ctx, key) })
}

func (f *FailoverStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return runErr(ctx, f, "expire", func(s Store) error { return s.Expire(ctx, key, ttl) })
}

func (f *FailoverStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return run(ctx, f, "ttl", func(s Store) (time.Duration, error) { return s.TTL(ctx, key) })
}

func (f *FailoverStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return runErr(ctx, f, "zadd", func(s Store) error { return s.ZAdd(ctx, key, score, member) })
}

func (f *FailoverStore) ZRem(ctx context.Context, key string, members ...string) error {
	return runErr(ctx, f, "zrem", func(s Store) error { return s.ZRem(ctx, key, members...) })
}

func (f *FailoverStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return runErr(ctx, f, "zremrangebyscore", func(s Store) error { return s.ZRemRangeByScore(ctx, key, min, max) })
}

func (f *FailoverStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return run(ctx, f, "zrangebyscore", func(s Store) ([]string, error) { return s.ZRangeByScore(ctx, key, min, max) })
}

func (f *FailoverStore) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	return run(ctx, f, "zcount", func(s Store) (int64, error) { return s.ZCount(ctx, key, min, max) })
}

func (f *FailoverStore) SlidingWindow(ctx context.Context, key string, floor, now time.Time, member string, limit int64, ttl time.Duration) (WindowResult, error) {
	return run(ctx, f, "sliding_window", func(s Store) (WindowResult, error) {
		return s.SlidingWindow(ctx, key, floor, now, member, limit, ttl)
	})
}
