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

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
)

// ErrMiss is returned by Get when the key is absent or evicted.
var ErrMiss = errors.New("cache: key not found")

// Cache is the in-process lookup cache used in front of slow reads.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get decodes the cached value into data or returns ErrMiss.
	Get(ctx context.Context, key string, data interface{}) error
	Delete(ctx context.Context, key string) error
}

// LocalCache is a process-local TinyLFU cache. Values are msgpack encoded,
// so callers always get their own copy.
type LocalCache struct {
	cache *cache.Cache
}

// DefaultSize is the number of entries kept when no size is configured.
const DefaultSize = 1000

// NewLocalCache returns a cache holding up to size entries. Entries are
// evicted after maxAge regardless of the TTL passed to Set.
func NewLocalCache(size int, maxAge time.Duration) *LocalCache {
	if size <= 0 {
		size = DefaultSize
	}
	return &LocalCache{
		cache: cache.New(&cache.Options{
			LocalCache: cache.NewTinyLFU(size, maxAge),
		}),
	}
}

func (l *LocalCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return l.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

func (l *LocalCache) Get(ctx context.Context, key string, data interface{}) error {
	err := l.cache.Get(ctx, key, data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return ErrMiss
	}
	return err
}

func (l *LocalCache) Delete(ctx context.Context, key string) error {
	return l.cache.Delete(ctx, key)
}
