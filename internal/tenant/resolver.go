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

// Package tenant maps inbound routing keys to tenant configuration.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/internal/apierror"
	"github.com/blnkfinance/namecard/internal/cache"
	"github.com/blnkfinance/namecard/internal/metrics"
	"github.com/blnkfinance/namecard/model"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantLookup wraps failures of the backing configuration store.
	ErrTenantLookup = errors.New("tenant lookup failed")
)

const DefaultTTL = 5 * time.Minute

// Source is the backing configuration store. Missing tenants are reported
// with an apierror.ErrNotFound error.
type Source interface {
	GetTenantByRoutingKey(ctx context.Context, routingKey string) (*model.Tenant, error)
	GetTenantByID(ctx context.Context, tenantID string) (*model.Tenant, error)
}

// entry is what the resolver caches. Missing marks a negative lookup.
type entry struct {
	Tenant    *model.Tenant `msgpack:"tenant"`
	Missing   bool          `msgpack:"missing"`
	FetchedAt time.Time     `msgpack:"fetched_at"`
}

type Resolver struct {
	source   Source
	cache    cache.Cache
	ttl      time.Duration
	fallback *model.Tenant
	now      func() time.Time
}

type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithDefault sets the tenant returned by ResolveOrDefault when nothing matches.
func WithDefault(t *model.Tenant) Option {
	return func(r *Resolver) { r.fallback = t }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithCache(c cache.Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		// The local cache outlives ttl so freshness is decided by r.now.
		r.cache = cache.NewLocalCache(cache.DefaultSize, 2*r.ttl)
	}
	return r
}

func routingCacheKey(routingKey string) string {
	return model.ScopedKey("tenant", "route", routingKey)
}

func idCacheKey(tenantID string) string {
	return model.ScopedKey("tenant", "id", tenantID)
}

// Resolve returns the tenant for routingKey. Cached entries younger than the
// TTL are served without a read; older ones are re-fetched.
func (r *Resolver) Resolve(ctx context.Context, routingKey string) (*model.Tenant, error) {
	if routingKey == "" {
		return nil, ErrTenantNotFound
	}
	return r.lookup(ctx, routingCacheKey(routingKey), func(ctx context.Context) (*model.Tenant, error) {
		return r.source.GetTenantByRoutingKey(ctx, routingKey)
	})
}

// Lookup resolves a tenant by id. It is used by background work that only
// carries the tenant id.
func (r *Resolver) Lookup(ctx context.Context, tenantID string) (*model.Tenant, error) {
	if r.fallback != nil && tenantID == r.fallback.TenantID {
		return r.fallback, nil
	}
	return r.lookup(ctx, idCacheKey(tenantID), func(ctx context.Context) (*model.Tenant, error) {
		return r.source.GetTenantByID(ctx, tenantID)
	})
}

// ResolveOrDefault behaves like Resolve but substitutes the startup default
// tenant for ErrTenantNotFound. usedDefault reports the substitution. Lookup
// errors are returned as they are.
func (r *Resolver) ResolveOrDefault(ctx context.Context, routingKey string) (t *model.Tenant, usedDefault bool, err error) {
	t, err = r.Resolve(ctx, routingKey)
	if err == nil {
		return t, false, nil
	}
	if errors.Is(err, ErrTenantNotFound) && r.fallback != nil {
		metrics.TenantCacheLookups.WithLabelValues("default").Inc()
		return r.fallback, true, nil
	}
	return nil, false, err
}

// Invalidate drops cached entries for a tenant. Either argument may be empty.
func (r *Resolver) Invalidate(ctx context.Context, routingKey, tenantID string) {
	if routingKey != "" {
		if err := r.cache.Delete(ctx, routingCacheKey(routingKey)); err != nil {
			logrus.WithError(err).WithField("routing_key", routingKey).Warn("failed to invalidate tenant cache entry")
		}
	}
	if tenantID != "" {
		if err := r.cache.Delete(ctx, idCacheKey(tenantID)); err != nil {
			logrus.WithError(err).WithField("tenant_id", tenantID).Warn("failed to invalidate tenant cache entry")
		}
	}
}

func (r *Resolver) lookup(ctx context.Context, key string, fetch func(context.Context) (*model.Tenant, error)) (*model.Tenant, error) {
	var cached entry
	err := r.cache.Get(ctx, key, &cached)
	if err == nil && r.now().Sub(cached.FetchedAt) < r.ttl {
		if cached.Missing {
			metrics.TenantCacheLookups.WithLabelValues("negative_hit").Inc()
			return nil, ErrTenantNotFound
		}
		metrics.TenantCacheLookups.WithLabelValues("hit").Inc()
		return cached.Tenant, nil
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		logrus.WithError(err).WithField("key", key).Warn("tenant cache read failed")
	}

	tenant, err := fetch(ctx)
	switch {
	case apierror.IsNotFound(err):
		metrics.TenantCacheLookups.WithLabelValues("miss").Inc()
		r.store(ctx, key, entry{Missing: true, FetchedAt: r.now()})
		return nil, ErrTenantNotFound
	case err != nil:
		metrics.TenantCacheLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrTenantLookup, err)
	}

	tenant.ApplyDefaults()
	if err := tenant.Validate(); err != nil {
		metrics.TenantCacheLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: tenant %s has invalid configuration: %v", ErrTenantLookup, tenant.TenantID, err)
	}

	metrics.TenantCacheLookups.WithLabelValues("miss").Inc()
	r.store(ctx, key, entry{Tenant: tenant, FetchedAt: r.now()})
	return tenant, nil
}

func (r *Resolver) store(ctx context.Context, key string, e entry) {
	if err := r.cache.Set(ctx, key, &e, 2*r.ttl); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("failed to cache tenant lookup")
	}
}
