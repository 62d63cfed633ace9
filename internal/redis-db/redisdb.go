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

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Connection bundles the go-redis client used by the store with the
// options the upload queue needs to reach the same server.
type Connection struct {
	addresses []string
	client    redis.UniversalClient
	queueOpt  asynq.RedisConnOpt
}

// ParseRedisURL accepts plain host:port addresses, redis:// and rediss://
// URLs and password-only URLs such as "redis://secret@host:6379".
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("redis address is empty")
	}

	if isBareAddress(rawURL) {
		return &redis.Options{Addr: rawURL}, nil
	}

	if strings.HasPrefix(rawURL, "redis://") && strings.Contains(rawURL, "@") {
		userinfo, host, _ := strings.Cut(strings.TrimPrefix(rawURL, "redis://"), "@")
		if !strings.Contains(userinfo, ":") {
			rawURL = fmt.Sprintf("redis://:%s@%s", userinfo, host)
		}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		host := rawURL
		var password string
		if before, after, found := strings.Cut(rawURL, "@"); found {
			password = strings.TrimPrefix(before, "redis://")
			host = after
		}
		opts = &redis.Options{Addr: host, Password: password}
		if strings.Contains(host, "redis.cache.windows.net") {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true,
		}
	}
	return opts, nil
}

func isBareAddress(rawURL string) bool {
	return strings.Count(rawURL, ":") == 1 && !strings.Contains(rawURL, "@") && !strings.Contains(rawURL, "//")
}

// Connect builds a client for a comma separated list of addresses. A single
// address gives a standalone client, several give a cluster client. The
// connection is not pinged; use Available for that.
func Connect(dns string, skipTLSVerify bool) (*Connection, error) {
	var addresses []string
	for _, a := range strings.Split(dns, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	if len(addresses) == 1 {
		opts, err := ParseRedisURL(addresses[0], skipTLSVerify)
		if err != nil {
			return nil, err
		}
		return &Connection{
			addresses: addresses,
			client:    redis.NewClient(opts),
			queueOpt: asynq.RedisClientOpt{
				Addr:      opts.Addr,
				Username:  opts.Username,
				Password:  opts.Password,
				DB:        opts.DB,
				TLSConfig: opts.TLSConfig,
			},
		}, nil
	}

	var clusterAddrs []string
	var password string
	useTLS := false
	for _, addr := range addresses {
		opts, err := ParseRedisURL(addr, skipTLSVerify)
		if err != nil {
			return nil, err
		}
		clusterAddrs = append(clusterAddrs, opts.Addr)
		if password == "" && opts.Password != "" {
			password = opts.Password
		}
		if opts.TLSConfig != nil {
			useTLS = true
		}
	}

	var tlsConfig *tls.Config
	if useTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: skipTLSVerify,
		}
	}

	return &Connection{
		addresses: addresses,
		client: redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:     clusterAddrs,
			Password:  password,
			TLSConfig: tlsConfig,
		}),
		queueOpt: asynq.RedisClusterClientOpt{
			Addrs:     clusterAddrs,
			Password:  password,
			TLSConfig: tlsConfig,
		},
	}, nil
}

func (c *Connection) Client() redis.UniversalClient {
	return c.client
}

// QueueOpt is the asynq connection option for the same server(s).
func (c *Connection) QueueOpt() asynq.RedisConnOpt {
	return c.queueOpt
}

func (c *Connection) Addresses() []string {
	return c.addresses
}

// Available pings the server with a short timeout. It decides the upload
// backend and the initial store at startup.
func (c *Connection) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *Connection) Close() error {
	return c.client.Close()
}
