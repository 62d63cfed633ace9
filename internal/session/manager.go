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

// Package session keeps the per-user idle/batch state machine.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/internal/quota"
	"github.com/blnkfinance/namecard/internal/store"
	"github.com/blnkfinance/namecard/model"
)

var (
	ErrNotInBatch     = errors.New("no batch in progress")
	ErrBatchActive    = errors.New("a batch is already in progress")
	ErrQuotaExhausted = errors.New("quota exhausted for the current period")
)

type AddResult int

const (
	Accepted AddResult = iota
	CapacityExceeded
	NotInBatch
)

func (r AddResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case CapacityExceeded:
		return "capacity_exceeded"
	default:
		return "not_in_batch"
	}
}

const DefaultTTL = 24 * time.Hour

// QuotaPeeker reports the remaining quota without recording a request.
type QuotaPeeker interface {
	Remaining(ctx context.Context, scopeKey string, limit int64, cadence model.Cadence, resetDay int) (int64, error)
}

type Manager struct {
	store   store.Store
	quota   QuotaPeeker
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	loc     *time.Location
}

type Option func(*Manager)

// WithTTL sets the inactivity TTL of the session blob.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func NewManager(s store.Store, q QuotaPeeker, opts ...Option) *Manager {
	m := &Manager{
		store:   s,
		quota:   q,
		ttl:     DefaultTTL,
		timeout: 2 * time.Second,
		now:     time.Now,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sessionKey(tenantID, userID string) string {
	return model.ScopedKey("session", tenantID, userID)
}

// batchShadowKey outlives the session blob so a batch lost to inactivity
// can be reported on the next interaction.
func batchShadowKey(tenantID, userID string) string {
	return model.ScopedKey("session", "batch", tenantID, userID)
}

// GetStatus returns the current session. A missing or expired session is a
// fresh idle one with zero counters.
func (m *Manager) GetStatus(ctx context.Context, tenant *model.Tenant, userID string) (*model.SessionState, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.load(ctx, tenant, userID)
}

// StartBatch moves an idle session into batch mode. It fails with
// ErrBatchActive when already batching and ErrQuotaExhausted when the
// period quota is used up.
func (m *Manager) StartBatch(ctx context.Context, tenant *model.Tenant, userID string) (*model.SessionState, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	state, err := m.load(ctx, tenant, userID)
	if err != nil {
		return nil, err
	}
	if state.InBatch() {
		return state, ErrBatchActive
	}

	if m.quota != nil {
		limits := tenant.Limits
		remaining, err := m.quota.Remaining(ctx, quota.ScopeKey(tenant.TenantID, userID), int64(limits.DailyCardLimit), limits.ResetCadence, limits.ResetDay)
		if err != nil {
			return state, err
		}
		if remaining <= 0 {
			return state, ErrQuotaExhausted
		}
	}

	now := m.clock()
	state.Mode = model.SessionBatch
	state.BatchCount = 0
	state.BatchItems = nil
	state.BatchStartedAt = &now
	if err := m.save(ctx, state); err != nil {
		return nil, err
	}
	m.writeShadow(ctx, state)
	return state, nil
}

// AddToBatch records item against the open batch.
func (m *Manager) AddToBatch(ctx context.Context, tenant *model.Tenant, userID, item string) (AddResult, *model.SessionState, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	state, err := m.load(ctx, tenant, userID)
	if err != nil {
		return NotInBatch, nil, err
	}
	if !state.InBatch() {
		return NotInBatch, state, nil
	}
	if state.BatchCount >= tenant.Limits.BatchSizeLimit {
		return CapacityExceeded, state, nil
	}

	state.BatchCount++
	state.BatchItems = append(state.BatchItems, item)
	if err := m.save(ctx, state); err != nil {
		return NotInBatch, nil, err
	}
	m.writeShadow(ctx, state)
	return Accepted, state, nil
}

// EndBatch closes the batch and returns the items accumulated in it.
func (m *Manager) EndBatch(ctx context.Context, tenant *model.Tenant, userID string) ([]string, *model.SessionState, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	state, err := m.load(ctx, tenant, userID)
	if err != nil {
		return nil, nil, err
	}
	if !state.InBatch() {
		return nil, state, ErrNotInBatch
	}

	items := state.BatchItems
	if items == nil {
		items = []string{}
	}
	state.Mode = model.SessionIdle
	state.BatchCount = 0
	state.BatchItems = nil
	state.BatchStartedAt = nil
	if err := m.save(ctx, state); err != nil {
		return nil, nil, err
	}
	if err := m.store.Delete(ctx, batchShadowKey(tenant.TenantID, userID)); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to clear batch marker")
	}
	return items, state, nil
}

// RecordProcessed adds n processed cards to the period counter.
func (m *Manager) RecordProcessed(ctx context.Context, tenant *model.Tenant, userID string, n int) (*model.SessionState, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	state, err := m.load(ctx, tenant, userID)
	if err != nil {
		return nil, err
	}
	state.DailyProcessed += n
	if err := m.save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (m *Manager) clock() time.Time {
	return m.now().In(m.loc)
}

func (m *Manager) load(ctx context.Context, tenant *model.Tenant, userID string) (*model.SessionState, error) {
	now := m.clock()
	periodStart := quota.PeriodStart(now, tenant.Limits.ResetCadence, tenant.Limits.ResetDay)

	raw, err := m.store.Get(ctx, sessionKey(tenant.TenantID, userID))
	if errors.Is(err, store.ErrNotFound) {
		state := &model.SessionState{
			TenantID:     tenant.TenantID,
			UserID:       userID,
			Mode:         model.SessionIdle,
			PeriodStart:  periodStart,
			LastActivity: now,
		}
		state.LostBatchItems = m.takeLostBatch(ctx, tenant.TenantID, userID)
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session for %s: %w", userID, err)
	}

	var state model.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("discarding unreadable session")
		return &model.SessionState{
			TenantID:     tenant.TenantID,
			UserID:       userID,
			Mode:         model.SessionIdle,
			PeriodStart:  periodStart,
			LastActivity: now,
		}, nil
	}

	if state.PeriodStart.Before(periodStart) {
		state.DailyProcessed = 0
		state.PeriodStart = periodStart
	}
	return &state, nil
}

func (m *Manager) save(ctx context.Context, state *model.SessionState) error {
	state.LastActivity = m.clock()
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, sessionKey(state.TenantID, state.UserID), raw, m.ttl); err != nil {
		return fmt.Errorf("save session for %s: %w", state.UserID, err)
	}
	return nil
}

func (m *Manager) writeShadow(ctx context.Context, state *model.SessionState) {
	key := batchShadowKey(state.TenantID, state.UserID)
	if err := m.store.Set(ctx, key, []byte(strconv.Itoa(state.BatchCount)), 2*m.ttl); err != nil {
		logrus.WithError(err).WithField("user_id", state.UserID).Warn("failed to write batch marker")
	}
}

// takeLostBatch reports, once, the size of a batch whose session expired.
func (m *Manager) takeLostBatch(ctx context.Context, tenantID, userID string) int {
	key := batchShadowKey(tenantID, userID)
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		return 0
	}
	if err := m.store.Delete(ctx, key); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to clear batch marker")
	}
	n, _ := strconv.Atoi(string(raw))
	if n > 0 {
		logrus.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"user_id":   userID,
			"items":     n,
		}).Warn("batch expired through inactivity")
	}
	return n
}
