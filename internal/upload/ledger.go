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
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/internal/metrics"
	"github.com/blnkfinance/namecard/internal/store"
	"github.com/blnkfinance/namecard/model"
)

// Ledger keeps tasks that ran out of attempts, keyed by user and task, with
// a sorted-set index per user scored by failure time.
type Ledger struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewLedger(s store.Store, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultSettings().LedgerTTL
	}
	return &Ledger{store: s, ttl: ttl, now: time.Now}
}

func entryKey(userID, taskID string) string {
	return model.ScopedKey("upload", "failed", userID, taskID)
}

func indexKey(userID string) string {
	return model.ScopedKey("upload", "failed", userID)
}

// Record stores task as failed. Recording the same task again replaces the
// earlier entry.
func (l *Ledger) Record(ctx context.Context, task *model.UploadTask, cause error) error {
	now := l.now()
	task.Status = model.UploadFailed
	task.FailedAt = &now
	if cause != nil {
		task.Error = cause.Error()
		if task.ErrorKind == "" {
			task.ErrorKind = ErrorKind(cause)
		}
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, entryKey(task.UserID, task.ID), data, l.ttl); err != nil {
		return err
	}
	if err := l.store.ZAdd(ctx, indexKey(task.UserID), float64(now.UnixMilli()), task.ID); err != nil {
		return err
	}
	if err := l.store.Expire(ctx, indexKey(task.UserID), l.ttl); err != nil {
		return err
	}

	metrics.FailedLedgerWrites.Inc()
	logrus.WithFields(logrus.Fields{
		"task_id":    task.ID,
		"tenant_id":  task.TenantID,
		"user_id":    task.UserID,
		"error_kind": task.ErrorKind,
		"attempts":   task.Attempts,
	}).Error("upload task moved to failure ledger")
	return nil
}

// List returns the user's failed tasks, oldest failure first.
func (l *Ledger) List(ctx context.Context, userID string) ([]model.UploadTask, error) {
	cutoff := float64(l.now().Add(-l.ttl).UnixMilli())
	if err := l.store.ZRemRangeByScore(ctx, indexKey(userID), math.Inf(-1), cutoff); err != nil {
		return nil, err
	}
	ids, err := l.store.ZRangeByScore(ctx, indexKey(userID), math.Inf(-1), math.Inf(1))
	if err != nil {
		return nil, err
	}

	tasks := make([]model.UploadTask, 0, len(ids))
	for _, id := range ids {
		task, err := l.Get(ctx, userID, id)
		if errors.Is(err, ErrTaskNotFound) {
			_ = l.store.ZRem(ctx, indexKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

func (l *Ledger) Get(ctx context.Context, userID, taskID string) (*model.UploadTask, error) {
	data, err := l.store.Get(ctx, entryKey(userID, taskID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	var task model.UploadTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (l *Ledger) Delete(ctx context.Context, userID, taskID string) error {
	if err := l.store.Delete(ctx, entryKey(userID, taskID)); err != nil {
		return err
	}
	return l.store.ZRem(ctx, indexKey(userID), taskID)
}

// Clear removes every failed task of the user and returns how many there were.
func (l *Ledger) Clear(ctx context.Context, userID string) (int, error) {
	ids, err := l.store.ZRangeByScore(ctx, indexKey(userID), math.Inf(-1), math.Inf(1))
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, entryKey(userID, id))
	}
	keys = append(keys, indexKey(userID))
	if err := l.store.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return len(ids), nil
}
