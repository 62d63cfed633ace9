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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard"
	"github.com/blnkfinance/namecard/config"
	"github.com/blnkfinance/namecard/database"
	"github.com/blnkfinance/namecard/internal/apierror"
	"github.com/blnkfinance/namecard/internal/blocklist"
	"github.com/blnkfinance/namecard/internal/cache"
	"github.com/blnkfinance/namecard/internal/credentials"
	"github.com/blnkfinance/namecard/internal/docstore"
	"github.com/blnkfinance/namecard/internal/imagehost"
	"github.com/blnkfinance/namecard/internal/messaging"
	"github.com/blnkfinance/namecard/internal/quota"
	"github.com/blnkfinance/namecard/internal/recognizer"
	pg_listener "github.com/blnkfinance/namecard/internal/pg-listener"
	redis_db "github.com/blnkfinance/namecard/internal/redis-db"
	"github.com/blnkfinance/namecard/internal/session"
	"github.com/blnkfinance/namecard/internal/store"
	"github.com/blnkfinance/namecard/internal/tenant"
	"github.com/blnkfinance/namecard/internal/upload"
	"github.com/blnkfinance/namecard/model"
)

// app holds every long-lived component of a running process.
type app struct {
	cnf        *config.Configuration
	conn       *redis_db.Connection
	memory     *store.MemoryStore
	store      store.Store
	datasource database.IDataSource
	resolver   *tenant.Resolver
	documents  docstore.Client
	worker     *upload.Worker
	blocks     *blocklist.BlockList
	queue      *upload.QueueBackend
	namecard   *namecard.Namecard
	admin      *namecard.TenantAdmin
}

// noTenants is the tenant source when no database is configured. Only the
// default tenant can be served.
type noTenants struct{}

func (noTenants) GetTenantByRoutingKey(context.Context, string) (*model.Tenant, error) {
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "tenant registry not configured", nil)
}

func (noTenants) GetTenantByID(context.Context, string) (*model.Tenant, error) {
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "tenant registry not configured", nil)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// connectStore picks the shared store. Redis sits behind a breaker that
// falls back to process memory; without redis the memory store is used.
func (a *app) connectStore(ctx context.Context) {
	cnf := a.cnf
	a.memory = store.NewMemoryStore()
	a.memory.StartJanitor(seconds(cnf.Store.JanitorIntervalSec))
	a.store = a.memory

	if cnf.Redis.Dns == "" {
		logrus.Warn("no redis configured, state is local to this process")
		return
	}
	conn, err := redis_db.Connect(cnf.Redis.Dns, cnf.Redis.SkipTLSVerify)
	if err != nil {
		logrus.WithError(err).Error("invalid redis configuration, state is local to this process")
		return
	}
	a.conn = conn
	if err := conn.Available(ctx); err != nil {
		logrus.WithError(err).Warn("redis unreachable at startup, serving from memory until it recovers")
	}
	a.store = store.NewFailoverStore(store.NewRedisStore(conn.Client()), a.memory, store.FailoverSettings{
		ConsecutiveFailures: uint32(cnf.Store.BreakerFailures),
		Cooldown:            seconds(cnf.Store.BreakerCooldownSec),
	})
}

func (a *app) connectTenants() error {
	cnf := a.cnf
	var source tenant.Source = noTenants{}
	if cnf.DataSource.Dns != "" {
		ds, err := database.NewDataSource(cnf)
		if err != nil {
			return fmt.Errorf("error getting datasource: %v", err)
		}
		a.datasource = ds
		source = ds
	} else if !cnf.DefaultTenant.Enabled {
		return fmt.Errorf("either a data source or a default tenant must be configured")
	}

	ttl := seconds(cnf.TenantCache.TTLSec)
	opts := []tenant.Option{
		tenant.WithTTL(ttl),
		tenant.WithCache(cache.NewLocalCache(cnf.TenantCache.Size, 2*ttl)),
	}
	if def := cnf.DefaultTenantModel(); def != nil {
		opts = append(opts, tenant.WithDefault(def))
	}
	a.resolver = tenant.NewResolver(source, opts...)
	return nil
}

// listenForTenantChanges keeps the tenant cache in step with writes made
// by other instances.
func (a *app) listenForTenantChanges(ctx context.Context) {
	if a.datasource == nil {
		return
	}
	listener := pg_listener.NewDBListener(pg_listener.ListenerConfig{PgConnStr: a.cnf.DataSource.Dns}, a.resolver)
	if err := listener.Start(ctx); err != nil {
		logrus.WithError(err).Warn("tenant change listener unavailable, relying on cache ttl")
	}
}

func (a *app) imageHost(creds credentials.Resolver) (imagehost.Host, error) {
	cnf := a.cnf.ImageHost
	switch cnf.Provider {
	case "s3":
		return imagehost.NewS3Host(imagehost.S3Config{
			AccessKeyID:     cnf.AwsAccessKeyId,
			SecretAccessKey: cnf.AwsSecretAccessKey,
			Region:          cnf.S3Region,
			Endpoint:        cnf.S3Endpoint,
			Bucket:          cnf.S3BucketName,
			PublicBaseURL:   cnf.PublicBaseURL,
		})
	case "http":
		var key string
		if cnf.APIKeyRef != "" {
			v, err := creds.Resolve(cnf.APIKeyRef)
			if err != nil {
				return nil, fmt.Errorf("image host api key: %w", err)
			}
			key = v
		}
		return imagehost.NewHTTPHost(cnf.URL, key, seconds(a.cnf.Upload.TimeoutSec)), nil
	}
	return nil, fmt.Errorf("unknown image host provider %q", cnf.Provider)
}

// uploadBackend decides the backend once per process.
func (a *app) uploadBackend(ctx context.Context, exec *upload.Executor, ledger *upload.Ledger, settings upload.Settings) upload.Backend {
	cnf := a.cnf.Upload
	useQueue := cnf.Backend == config.UploadBackendQueue
	if cnf.Backend == config.UploadBackendAuto {
		useQueue = a.conn != nil && a.conn.Available(ctx) == nil
	}
	if useQueue && a.conn == nil {
		logrus.Warn("queue upload backend requested without redis, using in-process uploads")
		useQueue = false
	}

	if useQueue {
		a.queue = upload.NewQueueBackend(a.conn.QueueOpt(), cnf.Queue, cnf.Concurrency, exec, ledger, settings)
		return a.queue
	}
	return upload.NewInProcessBackend(cnf.BufferSize, exec, ledger, settings)
}

func buildApp(ctx context.Context, cnf *config.Configuration) (*app, error) {
	a := &app{cnf: cnf}
	a.connectStore(ctx)
	if err := a.connectTenants(); err != nil {
		return nil, err
	}

	policy, err := quota.ParsePolicy(cnf.Quota.FailPolicy)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if cnf.Quota.Timezone != "" {
		if loc, err = time.LoadLocation(cnf.Quota.Timezone); err != nil {
			return nil, fmt.Errorf("invalid quota timezone: %w", err)
		}
	}
	limiter := quota.NewLimiter(a.store,
		quota.WithPolicy(policy),
		quota.WithLocation(loc),
		quota.WithTimeout(cnf.StoreTimeout()),
	)
	sessions := session.NewManager(a.store, limiter,
		session.WithTTL(time.Duration(cnf.Session.TTLHours)*time.Hour),
		session.WithLocation(loc),
		session.WithTimeout(cnf.StoreTimeout()),
	)
	a.blocks = blocklist.New(a.store, limiter, blocklist.Settings{
		Limit:    int64(cnf.Security.AbuseLimit),
		Window:   seconds(cnf.Security.AbuseWindowSec),
		BlockFor: time.Duration(cnf.Security.BlockDurationMin) * time.Minute,
	})

	creds := credentials.NewEnvResolver()
	a.documents = docstore.NewHTTPClient(cnf.DocumentStore.URL, creds, seconds(cnf.DocumentStore.TimeoutSec))
	host, err := a.imageHost(creds)
	if err != nil {
		return nil, err
	}

	settings := upload.Settings{
		MaxAttempts: cnf.Upload.MaxAttempts,
		RetryDelays: cnf.UploadRetryDelays(),
		Timeout:     seconds(cnf.Upload.TimeoutSec),
		LedgerTTL:   time.Duration(cnf.Upload.LedgerTTLDays) * 24 * time.Hour,
	}
	exec := upload.NewExecutor(a.store, a.resolver, host, a.documents, settings)
	ledger := upload.NewLedger(a.store, settings.LedgerTTL)
	a.worker = upload.NewWorker(a.uploadBackend(ctx, exec, ledger, settings), exec, ledger, settings)

	a.namecard, err = namecard.New(namecard.Deps{
		Tenants:         a.resolver,
		Quota:           limiter,
		Sessions:        sessions,
		Blocks:          a.blocks,
		Recognizer:      recognizer.NewHTTPRecognizer(cnf.Recognizer.URL, creds, seconds(cnf.Recognizer.TimeoutSec)),
		Documents:       a.documents,
		Messaging:       messaging.NewHTTPClient(cnf.Messaging.URL, cnf.Messaging.DataURL, creds, seconds(cnf.Messaging.TimeoutSec)),
		Uploads:         a.worker,
		Credentials:     creds,
		VerifySignature: cnf.Security.VerifySignature,
		MaxImageBytes:   int(cnf.Security.MaxImageBytes),
	})
	if err != nil {
		return nil, err
	}
	if a.datasource != nil {
		a.admin = namecard.NewTenantAdmin(a.datasource, a.resolver, a.documents)
	}

	logrus.WithFields(logrus.Fields{
		"store":          a.store.Name(),
		"upload_backend": a.worker.Backend().Name(),
		"quota_policy":   policy.String(),
	}).Info("namecard initialised")
	return a, nil
}

func (a *app) close() {
	a.worker.Stop()
	a.memory.Close()
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close redis connection")
		}
	}
}
