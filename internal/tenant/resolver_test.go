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

package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/namecard/internal/apierror"
	"github.com/blnkfinance/namecard/model"
)

type fakeSource struct {
	mu      sync.Mutex
	tenants map[string]model.Tenant
	err     error
	calls   int
}

func newFakeSource(tenants ...model.Tenant) *fakeSource {
	s := &fakeSource{tenants: map[string]model.Tenant{}}
	for _, t := range tenants {
		s.tenants[t.RoutingKey] = t
	}
	return s
}

func (s *fakeSource) put(t model.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.RoutingKey] = t
}

func (s *fakeSource) GetTenantByRoutingKey(_ context.Context, routingKey string) (*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	t, ok := s.tenants[routingKey]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "tenant not found", nil)
	}
	return &t, nil
}

func (s *fakeSource) GetTenantByID(_ context.Context, tenantID string) (*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, t := range s.tenants {
		if t.TenantID == tenantID {
			t := t
			return &t, nil
		}
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "tenant not found", nil)
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testTenant(dailyLimit int) model.Tenant {
	return model.Tenant{
		TenantID:   model.GenerateUUIDWithSuffix("tnt"),
		Name:       gofakeit.Company(),
		RoutingKey: "U" + gofakeit.LetterN(10),
		Status:     model.TenantActive,
		Limits: model.TenantLimits{
			DailyCardLimit: dailyLimit,
			BatchSizeLimit: 10,
			ResetCadence:   model.CadenceDaily,
		},
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestResolver_CachesPositiveLookups(t *testing.T) {
	tnt := testTenant(50)
	source := newFakeSource(tnt)
	r := NewResolver(source)

	for i := 0; i < 3; i++ {
		got, err := r.Resolve(context.Background(), tnt.RoutingKey)
		require.NoError(t, err)
		assert.Equal(t, tnt.TenantID, got.TenantID)
	}
	assert.Equal(t, 1, source.callCount())
}

func TestResolver_CachesNegativeLookups(t *testing.T) {
	source := newFakeSource()
	r := NewResolver(source)

	_, err := r.Resolve(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	_, err = r.Resolve(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	assert.Equal(t, 1, source.callCount())
}

func TestResolver_StalenessWindow(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	tnt := testTenant(50)
	source := newFakeSource(tnt)
	r := NewResolver(source, WithClock(clk.Now))
	ctx := context.Background()

	got, err := r.Resolve(ctx, tnt.RoutingKey)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Limits.DailyCardLimit)

	updated := tnt
	updated.Limits.DailyCardLimit = 5
	source.put(updated)

	// inside the TTL the old limits may still be served
	clk.Advance(4 * time.Minute)
	got, err = r.Resolve(ctx, tnt.RoutingKey)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Limits.DailyCardLimit)

	// past the TTL the update must be visible
	clk.Advance(2 * time.Minute)
	got, err = r.Resolve(ctx, tnt.RoutingKey)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Limits.DailyCardLimit)
}

func TestResolver_Invalidate(t *testing.T) {
	tnt := testTenant(50)
	source := newFakeSource(tnt)
	r := NewResolver(source)
	ctx := context.Background()

	_, err := r.Resolve(ctx, tnt.RoutingKey)
	require.NoError(t, err)

	updated := tnt
	updated.Limits.DailyCardLimit = 7
	source.put(updated)
	r.Invalidate(ctx, tnt.RoutingKey, tnt.TenantID)

	got, err := r.Resolve(ctx, tnt.RoutingKey)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Limits.DailyCardLimit)
}

func TestResolver_LookupErrorsAreNotCached(t *testing.T) {
	tnt := testTenant(50)
	source := newFakeSource(tnt)
	source.err = errors.New("connection refused")
	fallback := testTenant(20)
	fallback.TenantID = "default"
	r := NewResolver(source, WithDefault(&fallback))
	ctx := context.Background()

	_, err := r.Resolve(ctx, tnt.RoutingKey)
	assert.ErrorIs(t, err, ErrTenantLookup)

	// a store failure is never replaced by the default tenant
	_, usedDefault, err := r.ResolveOrDefault(ctx, tnt.RoutingKey)
	assert.ErrorIs(t, err, ErrTenantLookup)
	assert.False(t, usedDefault)

	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()

	got, err := r.Resolve(ctx, tnt.RoutingKey)
	require.NoError(t, err)
	assert.Equal(t, tnt.TenantID, got.TenantID)
}

func TestResolver_ResolveOrDefault(t *testing.T) {
	fallback := testTenant(20)
	fallback.TenantID = "default"
	r := NewResolver(newFakeSource(), WithDefault(&fallback))

	got, usedDefault, err := r.ResolveOrDefault(context.Background(), "unknown")
	require.NoError(t, err)
	assert.True(t, usedDefault)
	assert.Equal(t, "default", got.TenantID)

	got, err = r.Lookup(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "default", got.TenantID)

	r = NewResolver(newFakeSource())
	_, _, err = r.ResolveOrDefault(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolver_RejectsInvalidTenant(t *testing.T) {
	tnt := testTenant(50)
	tnt.Limits.ResetCadence = model.CadenceMonthly
	tnt.Limits.ResetDay = 31
	r := NewResolver(newFakeSource(tnt))

	_, err := r.Resolve(context.Background(), tnt.RoutingKey)
	assert.ErrorIs(t, err, ErrTenantLookup)
}

func TestResolver_LookupByID(t *testing.T) {
	tnt := testTenant(50)
	source := newFakeSource(tnt)
	r := NewResolver(source)

	got, err := r.Lookup(context.Background(), tnt.TenantID)
	require.NoError(t, err)
	assert.Equal(t, tnt.RoutingKey, got.RoutingKey)

	_, err = r.Lookup(context.Background(), "tnt_missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
