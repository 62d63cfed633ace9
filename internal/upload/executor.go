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

package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/namecard/internal/docstore"
	"github.com/blnkfinance/namecard/internal/imagehost"
	redlock "github.com/blnkfinance/namecard/internal/lock"
	"github.com/blnkfinance/namecard/internal/store"
	"github.com/blnkfinance/namecard/model"
)

var tracer = otel.Tracer("namecard.upload")

// TenantLookup finds a tenant by ID.
type TenantLookup interface {
	Lookup(ctx context.Context, tenantID string) (*model.Tenant, error)
}

// Executor runs one attempt of an upload task. Attempts are safe to repeat:
// the hosted URL is cached per task, each handle is patched at most once and
// a per-task lock keeps concurrent replays apart.
type Executor struct {
	store    store.Store
	tenants  TenantLookup
	host     imagehost.Host
	docs     docstore.Client
	stateTTL time.Duration
	lockTTL  time.Duration
	lockWait time.Duration
}

func NewExecutor(s store.Store, tenants TenantLookup, host imagehost.Host, docs docstore.Client, settings Settings) *Executor {
	settings = settings.withDefaults()
	return &Executor{
		store:    s,
		tenants:  tenants,
		host:     host,
		docs:     docs,
		stateTTL: settings.LedgerTTL,
		lockTTL:  settings.Timeout,
		lockWait: 30 * time.Second,
	}
}

func lockKey(taskID string) string {
	return model.ScopedKey("upload", "lock", taskID)
}

func urlKey(taskID string) string {
	return model.ScopedKey("upload", "url", taskID)
}

func patchedKey(taskID, handleID string) string {
	return model.ScopedKey("upload", "patched", taskID, handleID)
}

func objectName(task *model.UploadTask) string {
	return fmt.Sprintf("%s/%s", task.TenantID, task.ID)
}

// Execute uploads the task image and patches every record handle with the
// resulting URL.
func (e *Executor) Execute(ctx context.Context, task *model.UploadTask) error {
	ctx, span := tracer.Start(ctx, "Execute Upload Task")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", task.ID), attribute.String("tenant.id", task.TenantID))

	locker := redlock.NewLocker(e.store, lockKey(task.ID), uuid.New().String())
	if err := locker.WaitLock(ctx, e.lockTTL, e.lockWait); err != nil {
		return fmt.Errorf("acquire upload lock: %w", err)
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithField("task_id", task.ID).WithError(err).Warn("failed to release upload lock")
		}
	}()

	tenant, err := e.tenants.Lookup(ctx, task.TenantID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	imageURL, err := e.hostedURL(ctx, task)
	if err != nil {
		span.RecordError(err)
		return err
	}

	for _, handle := range task.Handles {
		if err := e.patch(ctx, tenant, task, handle, imageURL); err != nil {
			span.RecordError(err)
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"tenant_id": task.TenantID,
		"user_id":   task.UserID,
		"handles":   len(task.Handles),
	}).Info("upload task completed")
	return nil
}

func (e *Executor) hostedURL(ctx context.Context, task *model.UploadTask) (string, error) {
	cached, err := e.store.Get(ctx, urlKey(task.ID))
	if err == nil {
		return string(cached), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	imageURL, err := e.host.Upload(ctx, objectName(task), task.Image)
	if err != nil {
		return "", err
	}
	if err := e.store.Set(ctx, urlKey(task.ID), []byte(imageURL), e.stateTTL); err != nil {
		logrus.WithField("task_id", task.ID).WithError(err).Warn("failed to cache hosted image url")
	}
	return imageURL, nil
}

func (e *Executor) patch(ctx context.Context, tenant *model.Tenant, task *model.UploadTask, handle model.RecordHandle, imageURL string) error {
	key := patchedKey(task.ID, handle.ID)
	if _, err := e.store.Get(ctx, key); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := e.docs.PatchImage(ctx, tenant, handle, imageURL); err != nil {
		return err
	}
	if err := e.store.Set(ctx, key, []byte(imageURL), e.stateTTL); err != nil {
		logrus.WithFields(logrus.Fields{"task_id": task.ID, "record_id": handle.ID}).WithError(err).Warn("failed to mark record as patched")
	}
	return nil
}
