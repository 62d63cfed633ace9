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
	"bytes"
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"
)

var errWrongType = errors.New("store: operation against a key holding the wrong kind of value")

type memoryItem struct {
	value     []byte
	zset      map[string]float64
	expiresAt time.Time
}

func (i *memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryStore is a process-local Store. State is not shared between
// processes, so it only stands in for redis on a single instance.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*memoryItem
	now   func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces time.Now, for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		items: make(map[string]*memoryItem),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartJanitor evicts expired keys every interval until Close is called.
func (m *MemoryStore) StartJanitor(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.evictExpired()
			}
		}
	}()
}

func (m *MemoryStore) Close() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *MemoryStore) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, item := range m.items {
		if item.expired(now) {
			delete(m.items, key)
		}
	}
}

// lookup must be called with mu held.
func (m *MemoryStore) lookup(key string) *memoryItem {
	item, ok := m.items[key]
	if !ok {
		return nil
	}
	if item.expired(m.now()) {
		delete(m.items, key)
		return nil
	}
	return item
}

func (m *MemoryStore) zsetFor(key string, create bool) (*memoryItem, error) {
	item := m.lookup(key)
	if item == nil {
		if !create {
			return nil, nil
		}
		item = &memoryItem{zset: make(map[string]float64)}
		m.items[key] = item
		return item, nil
	}
	if item.zset == nil {
		return nil, errWrongType
	}
	return item, nil
}

func (m *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.lookup(key)
	if item == nil {
		return nil, ErrNotFound
	}
	if item.zset != nil {
		return nil, errWrongType
	}
	return append([]byte(nil), item.value...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = &memoryItem{value: append([]byte(nil), value...), expiresAt: m.expiry(ttl)}
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookup(key) != nil {
		return false, nil
	}
	m.items[key] = &memoryItem{value: append([]byte(nil), value...), expiresAt: m.expiry(ttl)}
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryStore) CompareAndDelete(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.lookup(key)
	if item == nil || item.zset != nil || !bytes.Equal(item.value, value) {
		return false, nil
	}
	delete(m.items, key)
	return true, nil
}

func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.lookup(key)
	if item == nil {
		m.items[key] = &memoryItem{value: []byte("1")}
		return 1, nil
	}
	if item.zset != nil {
		return 0, errWrongType
	}
	n, err := strconv.ParseInt(string(item.value), 10, 64)
	if err != nil {
		return 0, errWrongType
	}
	n++
	item.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.lookup(key)
	if item == nil {
		return nil
	}
	item.expiresAt = m.expiry(ttl)
	return nil
}

func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.lookup(key)
	if item == nil {
		return 0, ErrNotFound
	}
	if item.expiresAt.IsZero() {
		return 0, nil
	}
	return item.expiresAt.Sub(m.now()), nil
}

func (m *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.zsetFor(key, true)
	if err != nil {
		return err
	}
	item.zset[member] = score
	return nil
}

func (m *MemoryStore) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.zsetFor(key, false)
	if err != nil || item == nil {
		return err
	}
	for _, member := range members {
		delete(item.zset, member)
	}
	if len(item.zset) == 0 {
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryStore) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.zsetFor(key, false)
	if err != nil || item == nil {
		return err
	}
	for member, score := range item.zset {
		if score >= min && score <= max {
			delete(item.zset, member)
		}
	}
	if len(item.zset) == 0 {
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryStore) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.zsetFor(key, false)
	if err != nil || item == nil {
		return []string{}, err
	}
	return rangeByScore(item.zset, min, max), nil
}

func (m *MemoryStore) ZCount(_ context.Context, key string, min, max float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, err := m.zsetFor(key, false)
	if err != nil || item == nil {
		return 0, err
	}
	var n int64
	for _, score := range item.zset {
		if score >= min && score <= max {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SlidingWindow(_ context.Context, key string, floor, now time.Time, member string, limit int64, ttl time.Duration) (WindowResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, err := m.zsetFor(key, true)
	if err != nil {
		return WindowResult{}, err
	}

	floorMs := float64(floor.UnixMilli())
	first := int64(-1)
	for mem, score := range item.zset {
		if score < floorMs {
			delete(item.zset, mem)
			continue
		}
		if first < 0 || int64(score) < first {
			first = int64(score)
		}
	}

	count := int64(len(item.zset))
	if count >= limit {
		if count == 0 {
			delete(m.items, key)
		}
		result := WindowResult{Count: count}
		if first >= 0 {
			result.Oldest = time.UnixMilli(first)
		}
		return result, nil
	}

	nowMs := now.UnixMilli()
	item.zset[member] = float64(nowMs)
	item.expiresAt = m.expiry(ttl)
	if first < 0 {
		first = nowMs
	}
	return WindowResult{Allowed: true, Count: count + 1, Oldest: time.UnixMilli(first)}, nil
}

func rangeByScore(zset map[string]float64, min, max float64) []string {
	type scored struct {
		member string
		score  float64
	}
	matched := make([]scored, 0, len(zset))
	for member, score := range zset {
		if score >= min && score <= max {
			matched = append(matched, scored{member, score})
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score == matched[j].score {
			return matched[i].member < matched[j].member
		}
		return matched[i].score < matched[j].score
	})
	members := make([]string, len(matched))
	for i, s := range matched {
		members[i] = s.member
	}
	return members
}
