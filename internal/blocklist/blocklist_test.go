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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/namecard/internal/quota"
	"github.com/blnkfinance/namecard/internal/store"
	"github.com/blnkfinance/namecard/model"
)

func TestBlockList_BlockAndExpire(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := store.NewRedisStore(client)
	b := New(s, quota.NewLimiter(s), Settings{})
	ctx := context.Background()

	_, blocked, err := b.IsBlocked(ctx, "tnt_1", "U1")
	require.NoError(t, err)
	assert.False(t, blocked)

	entry, err := b.Block(ctx, "tnt_1", "U1", 10*time.Minute, model.BlockReasonManual)
	require.NoError(t, err)
	assert.Equal(t, model.BlockReasonManual, entry.Reason)

	got, blocked, err := b.IsBlocked(ctx, "tnt_1", "U1")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, model.BlockReasonManual, got.Reason)

	_, blocked, err = b.IsBlocked(ctx, "tnt_2", "U1")
	require.NoError(t, err)
	assert.False(t, blocked)

	mr.FastForward(11 * time.Minute)
	_, blocked, err = b.IsBlocked(ctx, "tnt_1", "U1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlockList_Unblock(t *testing.T) {
	s := store.NewMemoryStore()
	b := New(s, quota.NewLimiter(s), Settings{})
	ctx := context.Background()

	_, err := b.Block(ctx, "tnt_1", "U1", time.Hour, model.BlockReasonManual)
	require.NoError(t, err)
	require.NoError(t, b.Unblock(ctx, "tnt_1", "U1"))

	_, blocked, err := b.IsBlocked(ctx, "tnt_1", "U1")
	require.NoError(t, err)
	assert.False(t, blocked)

	_, err = b.Block(ctx, "tnt_1", "U1", 0, model.BlockReasonManual)
	assert.Error(t, err)
}

func TestBlockList_ObserveTripsAfterLimit(t *testing.T) {
	s := store.NewMemoryStore()
	b := New(s, quota.NewLimiter(s), Settings{Limit: 10, Window: time.Minute, BlockFor: time.Hour})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		entry, err := b.Observe(ctx, "tnt_1", "U1")
		require.NoError(t, err)
		assert.Nil(t, entry)
	}

	entry, err := b.Observe(ctx, "tnt_1", "U1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.BlockReasonRateLimit, entry.Reason)
	assert.WithinDuration(t, time.Now().Add(time.Hour), entry.BlockedUntil, 5*time.Second)

	_, blocked, err := b.IsBlocked(ctx, "tnt_1", "U1")
	require.NoError(t, err)
	assert.True(t, blocked)

	entry, err = b.Observe(ctx, "tnt_1", "U2")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
