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

package pg_listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Channel is the notification channel written by the tenants trigger.
const Channel = "tenant_change"

// TenantChange is the trigger payload. OldRoutingKey is set when an update
// changed the routing key.
type TenantChange struct {
	Operation     string `json:"op"`
	TenantID      string `json:"tenant_id"`
	RoutingKey    string `json:"routing_key"`
	OldRoutingKey string `json:"old_routing_key,omitempty"`
}

// Invalidator drops cached tenant entries.
type Invalidator interface {
	Invalidate(ctx context.Context, routingKey, tenantID string)
}

type ListenerConfig struct {
	PgConnStr string
	// Interval is the keepalive ping period while no notification arrives.
	Interval time.Duration
	Timeout  time.Duration
}

// DBListener evicts tenant cache entries when any instance writes the
// tenants table, so admin changes reach every process without waiting for
// the cache TTL.
type DBListener struct {
	config ListenerConfig
	cache  Invalidator
}

func NewDBListener(config ListenerConfig, cache Invalidator) *DBListener {
	if config.Interval <= 0 {
		config.Interval = 90 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	return &DBListener{config: config, cache: cache}
}

// Start listens until ctx is cancelled.
func (d *DBListener) Start(ctx context.Context) error {
	listener := pq.NewListener(d.config.PgConnStr, 10*time.Second, d.config.Timeout, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logrus.WithError(err).Warn("tenant listener connection event")
		}
	})
	if err := listener.Listen(Channel); err != nil {
		_ = listener.Close()
		return err
	}
	logrus.WithField("channel", Channel).Info("listening for tenant changes")

	go func() {
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// A nil notification follows a reconnect; events may have
				// been missed, but cached entries still expire by TTL.
				if n != nil {
					d.handleNotification(ctx, n.Extra)
				}
			case <-time.After(d.config.Interval):
				if err := listener.Ping(); err != nil {
					logrus.WithError(err).Warn("tenant listener ping failed")
				}
			}
		}
	}()
	return nil
}

func (d *DBListener) handleNotification(ctx context.Context, extra string) {
	var change TenantChange
	if err := json.Unmarshal([]byte(extra), &change); err != nil {
		logrus.WithError(err).Error("malformed tenant change notification")
		return
	}

	d.cache.Invalidate(ctx, change.RoutingKey, change.TenantID)
	if change.OldRoutingKey != "" && change.OldRoutingKey != change.RoutingKey {
		d.cache.Invalidate(ctx, change.OldRoutingKey, "")
	}
	logrus.WithFields(logrus.Fields{
		"tenant_id": change.TenantID,
		"op":        change.Operation,
	}).Debug("tenant cache invalidated")
}
