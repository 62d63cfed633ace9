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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/internal/metrics"
	"github.com/blnkfinance/namecard/model"
)

// Worker is the entry point for the upload pipeline and its operator
// surface.
type Worker struct {
	backend  Backend
	exec     *Executor
	ledger   *Ledger
	settings Settings
	now      func() time.Time
}

func NewWorker(backend Backend, exec *Executor, ledger *Ledger, settings Settings) *Worker {
	return &Worker{
		backend:  backend,
		exec:     exec,
		ledger:   ledger,
		settings: settings.withDefaults(),
		now:      time.Now,
	}
}

func (w *Worker) Backend() Backend {
	return w.backend
}

func (w *Worker) Start(ctx context.Context) error {
	logrus.WithField("backend", w.backend.Name()).Info("starting upload worker")
	return w.backend.Start(ctx)
}

func (w *Worker) Stop() {
	w.backend.Stop()
}

// Submit hands the image to the backend and returns the task ID without
// waiting for the upload. When the backend refuses the task it goes
// straight to the failure ledger so it can be replayed.
func (w *Worker) Submit(ctx context.Context, image []byte, handles []model.RecordHandle, tenantID, userID string) (string, error) {
	task := &model.UploadTask{
		ID:         model.GenerateUUIDWithSuffix("upl"),
		TenantID:   tenantID,
		UserID:     userID,
		Handles:    handles,
		Image:      image,
		Status:     model.UploadQueued,
		EnqueuedAt: w.now(),
	}

	if err := w.backend.Enqueue(ctx, task); err != nil {
		metrics.UploadTasks.WithLabelValues(w.backend.Name(), "rejected").Inc()
		task.ErrorKind = KindEnqueue
		if lerr := w.ledger.Record(ctx, task, err); lerr != nil {
			logrus.WithField("task_id", task.ID).WithError(lerr).Error("upload task lost, enqueue and ledger both failed")
		}
		return task.ID, err
	}

	metrics.UploadTasks.WithLabelValues(w.backend.Name(), "submitted").Inc()
	return task.ID, nil
}

func (w *Worker) ListFailed(ctx context.Context, userID string) ([]model.UploadTask, error) {
	return w.ledger.List(ctx, userID)
}

// RetryTask replays a failed task synchronously. On success the ledger
// entry is removed; on failure it is rewritten with the new error.
func (w *Worker) RetryTask(ctx context.Context, userID, taskID string) error {
	task, err := w.ledger.Get(ctx, userID, taskID)
	if err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, w.settings.Timeout)
	defer cancel()

	task.Attempts++
	task.ErrorKind = ""
	if err := w.exec.Execute(attemptCtx, task); err != nil {
		if lerr := w.ledger.Record(ctx, task, err); lerr != nil {
			logrus.WithField("task_id", task.ID).WithError(lerr).Error("failed to update upload failure ledger")
		}
		return err
	}

	metrics.UploadTasks.WithLabelValues(w.backend.Name(), "replayed").Inc()
	return w.ledger.Delete(ctx, userID, taskID)
}

// RetryAll replays every failed task of the user in failure order.
func (w *Worker) RetryAll(ctx context.Context, userID string) (RetrySummary, error) {
	tasks, err := w.ledger.List(ctx, userID)
	if err != nil {
		return RetrySummary{}, err
	}

	summary := RetrySummary{Total: len(tasks)}
	for _, task := range tasks {
		if err := w.RetryTask(ctx, userID, task.ID); err != nil {
			summary.Failed++
			if summary.Errors == nil {
				summary.Errors = make(map[string]string)
			}
			summary.Errors[task.ID] = err.Error()
			continue
		}
		summary.Succeeded++
	}
	return summary, nil
}

func (w *Worker) ClearFailed(ctx context.Context, userID string) (int, error) {
	return w.ledger.Clear(ctx, userID)
}

func (w *Worker) Status(ctx context.Context) (Status, error) {
	return w.backend.Status(ctx)
}
