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

// Package store is the key-value layer shared by quota, session, block and
// upload state. Every implementation must make SlidingWindow atomic per key.
package store

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"
)

var ErrNotFound = errors.New("store: key not found")

// Store is implemented by RedisStore, MemoryStore and FailoverStore.
type Store interface {
	Name() string
	Ping(ctx context.Context) error

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// CompareAndDelete removes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns 0 for keys without expiry and ErrNotFound for missing keys.
	TTL(ctx context.Context, key string) (time.Duration, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	// ZRangeByScore returns members with min <= score <= max, lowest score first.
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)

	// SlidingWindow prunes entries scored before floor, counts the rest and,
	// when the count is below limit, adds member scored at now and sets the
	// key TTL. The whole sequence is atomic for key.
	SlidingWindow(ctx context.Context, key string, floor, now time.Time, member string, limit int64, ttl time.Duration) (WindowResult, error)
}

// WindowResult reports the state of a sliding window after a SlidingWindow call.
// Count includes the new member when Allowed is true. Oldest is the score of
// the earliest entry still inside the window.
type WindowResult struct {
	Allowed bool
	Count   int64
	Oldest  time.Time
}

// formatScore renders a sorted-set bound the way redis expects it.
func formatScore(f float64) string {
	switch {
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsInf(f, 1):
		return "+inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
