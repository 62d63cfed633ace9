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
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scores are unix milliseconds. The floor is passed as a string so that lua
// never reformats it in exponent notation.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[2])
local member = ARGV[3]
local limit = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. ARGV[1])
local count = redis.call('ZCARD', key)
local first = -1
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	first = tonumber(oldest[2])
end

if count >= limit then
	return {0, count, first}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, ttl)
if first < 0 then
	first = now
end
return {1, count + 1, first}
`)

const compareAndDeleteScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// RedisStore implements Store on a go-redis universal client.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisStore) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	result, err := r.client.Eval(ctx, compareAndDeleteScript, []string{key}, string(value)).Result()
	if err != nil {
		return false, err
	}
	return result != int64(0), nil
}

func (r *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.PExpire(ctx, key, ttl).Err()
}

func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// go-redis reports the -2/-1 sentinels as raw durations.
	switch {
	case ttl == -2 || ttl == -2*time.Millisecond:
		return 0, ErrNotFound
	case ttl < 0:
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return r.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (r *RedisStore) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.ZRem(ctx, key, args...).Err()
}

func (r *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return r.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

func (r *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: formatScore(min), Max: formatScore(max)}).Result()
}

func (r *RedisStore) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	return r.client.ZCount(ctx, key, formatScore(min), formatScore(max)).Result()
}

func (r *RedisStore) SlidingWindow(ctx context.Context, key string, floor, now time.Time, member string, limit int64, ttl time.Duration) (WindowResult, error) {
	raw, err := slidingWindowScript.Run(ctx, r.client, []string{key},
		strconv.FormatInt(floor.UnixMilli(), 10),
		now.UnixMilli(),
		member,
		limit,
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return WindowResult{}, err
	}
	if len(raw) != 3 {
		return WindowResult{}, fmt.Errorf("sliding window script returned %d values", len(raw))
	}

	allowed, _ := raw[0].(int64)
	count, _ := raw[1].(int64)
	first, _ := raw[2].(int64)

	result := WindowResult{Allowed: allowed == 1, Count: count}
	if first >= 0 {
		result.Oldest = time.UnixMilli(first)
	}
	return result, nil
}
