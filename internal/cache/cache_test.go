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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(100, time.Minute)

	require.NoError(t, c.Set(ctx, "testKey", map[string]string{"hello": "world"}, time.Minute))

	var got map[string]string
	require.NoError(t, c.Get(ctx, "testKey", &got))
	assert.Equal(t, "world", got["hello"])
}

func TestLocalCache_Miss(t *testing.T) {
	c := NewLocalCache(0, time.Minute)

	var got string
	err := c.Get(context.Background(), "absent", &got)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLocalCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(100, time.Minute)

	require.NoError(t, c.Set(ctx, "testKey", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "testKey"))

	var got string
	assert.ErrorIs(t, c.Get(ctx, "testKey", &got), ErrMiss)
}

func TestLocalCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(100, time.Minute)

	original := []string{"a"}
	require.NoError(t, c.Set(ctx, "slice", original, time.Minute))
	original[0] = "mutated"

	var got []string
	require.NoError(t, c.Get(ctx, "slice", &got))
	assert.Equal(t, []string{"a"}, got)
}
