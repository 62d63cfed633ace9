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

package blocklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/internal/metrics"
	"github.com/blnkfinance/namecard/internal/quota"
	"github.com/blnkfinance/namecard/internal/store"
	"github.com/blnkfinance/namecard/model"
)

// Settings drive the abuse heuristic: more than Limit messages within
// Window blocks the user for BlockFor.
type Settings struct {
	Limit    int64
	Window   time.Duration
	BlockFor time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Limit:    10,
		Window:   time.Minute,
		BlockFor: time.Hour,
	}
}

// WindowLimiter is the sliding-window check behind Observe.
type WindowLimiter interface {
	CheckAndRecord(ctx context.Context, scopeKey string, limit int64, window time.Duration) (quota.Decision, error)
}

type BlockList struct {
	store    store.Store
	limiter  WindowLimiter
	settings Settings
	timeout  time.Duration
	now      func() time.Time
}

func New(s store.Store, limiter WindowLimiter, settings Settings) *BlockList {
	d := DefaultSettings()
	if settings.Limit <= 0 {
		settings.Limit = d.Limit
	}
	if settings.Window <= 0 {
		settings.Window = d.Window
	}
	if settings.BlockFor <= 0 {
		settings.BlockFor = d.BlockFor
	}
	return &BlockList{
		store:    s,
		limiter:  limiter,
		settings: settings,
		timeout:  2 * time.Second,
		now:      time.Now,
	}
}

func blockKey(tenantID, userID string) string {
	return model.ScopedKey("block", tenantID, userID)
}

func abuseKey(tenantID, userID string) string {
	return model.ScopedKey("abuse", tenantID, userID)
}

func (b *BlockList) Block(ctx context.Context, tenantID, userID string, duration time.Duration, reason model.BlockReason) (*model.BlockEntry, error) {
	if duration <= 0 {
		return nil, errors.New("block duration must be positive")
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	entry := &model.BlockEntry{
		TenantID:     tenantID,
		UserID:       userID,
		BlockedUntil: b.now().Add(duration),
		Reason:       reason,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if err := b.store.Set(ctx, blockKey(tenantID, userID), raw, duration); err != nil {
		return nil, fmt.Errorf("block %s: %w", userID, err)
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"user_id":       userID,
		"reason":        reason,
		"blocked_until": entry.BlockedUntil,
	}).Warn("user blocked")
	return entry, nil
}

// IsBlocked returns the active block entry for the user, if any.
func (b *BlockList) IsBlocked(ctx context.Context, tenantID, userID string) (*model.BlockEntry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	raw, err := b.store.Get(ctx, blockKey(tenantID, userID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry model.BlockEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, err
	}
	if !b.now().Before(entry.BlockedUntil) {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (b *BlockList) Unblock(ctx context.Context, tenantID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Delete(ctx, blockKey(tenantID, userID), abuseKey(tenantID, userID))
}

// Observe records one inbound message for the abuse heuristic and blocks
// the user when the sliding window overflows. It returns the new block
// entry when one was created.
func (b *BlockList) Observe(ctx context.Context, tenantID, userID string) (*model.BlockEntry, error) {
	d, err := b.limiter.CheckAndRecord(ctx, abuseKey(tenantID, userID), b.settings.Limit, b.settings.Window)
	if err != nil {
		return nil, err
	}
	if d.Allowed || d.Degraded {
		metrics.AdmissionDecisions.WithLabelValues("abuse", "allowed").Inc()
		return nil, nil
	}
	metrics.AdmissionDecisions.WithLabelValues("abuse", "denied").Inc()
	return b.Block(ctx, tenantID, userID, b.settings.BlockFor, model.BlockReasonRateLimit)
}
