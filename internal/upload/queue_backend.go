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
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/internal/metrics"
	"github.com/blnkfinance/namecard/internal/notification"
	"github.com/blnkfinance/namecard/model"
)

const queueBackendName = "queue"

// QueueBackend runs uploads through a durable asynq queue. Tasks survive
// restarts and are retried by asynq on the configured schedule.
type QueueBackend struct {
	conn        asynq.RedisConnOpt
	client      *asynq.Client
	inspector   *asynq.Inspector
	server      *asynq.Server
	queue       string
	concurrency int
	settings    Settings
	exec        *Executor
	ledger      *Ledger
}

func NewQueueBackend(conn asynq.RedisConnOpt, queue string, concurrency int, exec *Executor, ledger *Ledger, settings Settings) *QueueBackend {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &QueueBackend{
		conn:        conn,
		client:      asynq.NewClient(conn),
		inspector:   asynq.NewInspector(conn),
		queue:       queue,
		concurrency: concurrency,
		settings:    settings.withDefaults(),
		exec:        exec,
		ledger:      ledger,
	}
}

func (q *QueueBackend) Name() string {
	return queueBackendName
}

func (q *QueueBackend) Enqueue(ctx context.Context, task *model.UploadTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(task.ID),
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.settings.MaxAttempts - 1),
		asynq.Timeout(q.settings.Timeout),
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TypeUploadImage, payload), taskOptions...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("upload task %s is already queued: %w", task.ID, err)
		}
		return err
	}
	logrus.WithFields(logrus.Fields{"task_id": task.ID, "queue": info.Queue}).Info("upload task enqueued")
	return nil
}

// RetryDelay is the asynq RetryDelayFunc for upload tasks; n counts
// previous retries from zero.
func (q *QueueBackend) RetryDelay(n int, _ error, t *asynq.Task) time.Duration {
	if t != nil && t.Type() != TypeUploadImage {
		return asynq.DefaultRetryDelayFunc(n, nil, t)
	}
	return q.settings.delay(n)
}

// Register adds the upload handler to mux.
func (q *QueueBackend) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeUploadImage, q.ProcessTask)
}

// ServerConfig is the asynq server configuration for upload consumers.
func (q *QueueBackend) ServerConfig() asynq.Config {
	return asynq.Config{
		Concurrency:    q.concurrency,
		Queues:         map[string]int{q.queue: 1},
		RetryDelayFunc: q.RetryDelay,
		Logger:         logrus.StandardLogger(),
	}
}

// ProcessTask is the asynq handler. On the last attempt a failure is written
// to the ledger and the task is completed so asynq does not archive it.
func (q *QueueBackend) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		maxRetry = q.settings.MaxAttempts - 1
	}
	return q.process(ctx, t.Payload(), retried, maxRetry)
}

func (q *QueueBackend) process(ctx context.Context, payload []byte, retried, maxRetry int) error {
	var task model.UploadTask
	if err := json.Unmarshal(payload, &task); err != nil {
		logrus.WithError(err).Error("dropping malformed upload task")
		return fmt.Errorf("unmarshal upload task: %v: %w", err, asynq.SkipRetry)
	}
	task.Attempts = retried + 1
	task.Status = model.UploadInFlight

	start := time.Now()
	err := q.exec.Execute(ctx, &task)
	metrics.UploadDuration.WithLabelValues(queueBackendName).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.UploadTasks.WithLabelValues(queueBackendName, "succeeded").Inc()
		return nil
	}

	fields := logrus.Fields{"task_id": task.ID, "tenant_id": task.TenantID, "user_id": task.UserID, "attempt": task.Attempts}
	if retried < maxRetry && Retryable(err) {
		metrics.UploadTasks.WithLabelValues(queueBackendName, "retried").Inc()
		logrus.WithFields(fields).WithError(err).Warn("upload attempt failed, will retry")
		return err
	}

	metrics.UploadTasks.WithLabelValues(queueBackendName, "failed").Inc()
	if lerr := q.ledger.Record(context.WithoutCancel(ctx), &task, err); lerr != nil {
		logrus.WithFields(fields).WithError(lerr).Error("failed to write upload failure ledger")
		return lerr
	}
	notification.NotifyError(err, map[string]string{
		"task_id":    task.ID,
		"tenant_id":  task.TenantID,
		"user_id":    task.UserID,
		"error_kind": task.ErrorKind,
	})
	return nil
}

// Start runs an embedded asynq server consuming the upload queue.
func (q *QueueBackend) Start(_ context.Context) error {
	mux := asynq.NewServeMux()
	q.Register(mux)
	q.server = asynq.NewServer(q.conn, q.ServerConfig())
	return q.server.Start(mux)
}

func (q *QueueBackend) Stop() {
	if q.server != nil {
		q.server.Shutdown()
	}
	if err := q.client.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close asynq client")
	}
	if err := q.inspector.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close asynq inspector")
	}
}

func (q *QueueBackend) Status(_ context.Context) (Status, error) {
	status := Status{Backend: queueBackendName}
	info, err := q.inspector.GetQueueInfo(q.queue)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.Pending = info.Pending + info.Scheduled
	status.InFlight = info.Active
	status.Retrying = info.Retry
	return status, nil
}
