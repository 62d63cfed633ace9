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
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/internal/metrics"
	"github.com/blnkfinance/namecard/internal/notification"
	"github.com/blnkfinance/namecard/model"
)

const inProcessBackendName = "inprocess"

// scheduleBackOff replays a fixed list of delays, repeating the last one.
type scheduleBackOff struct {
	settings Settings
	n        int
}

func (s *scheduleBackOff) NextBackOff() time.Duration {
	d := s.settings.delay(s.n)
	s.n++
	return d
}

func (s *scheduleBackOff) Reset() {
	s.n = 0
}

// InProcessBackend drains a buffered channel with a single goroutine. Tasks
// still buffered at shutdown are written to the failure ledger.
type InProcessBackend struct {
	tasks    chan *model.UploadTask
	settings Settings
	exec     *Executor
	ledger   *Ledger

	inFlight atomic.Int32
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
}

func NewInProcessBackend(bufferSize int, exec *Executor, ledger *Ledger, settings Settings) *InProcessBackend {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &InProcessBackend{
		tasks:    make(chan *model.UploadTask, bufferSize),
		settings: settings.withDefaults(),
		exec:     exec,
		ledger:   ledger,
	}
}

func (p *InProcessBackend) Name() string {
	return inProcessBackendName
}

// Enqueue never blocks. A full buffer returns ErrQueueFull.
func (p *InProcessBackend) Enqueue(_ context.Context, task *model.UploadTask) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *InProcessBackend) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-p.tasks:
				p.run(ctx, task)
			}
		}
	}()
	return nil
}

func (p *InProcessBackend) Stop() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for {
			select {
			case task := <-p.tasks:
				task.ErrorKind = KindInterrupted
				if err := p.ledger.Record(ctx, task, context.Canceled); err != nil {
					logrus.WithField("task_id", task.ID).WithError(err).Error("upload task lost on shutdown")
				}
			default:
				return
			}
		}
	})
}

func (p *InProcessBackend) run(ctx context.Context, task *model.UploadTask) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	task.Status = model.UploadInFlight
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&scheduleBackOff{settings: p.settings}, uint64(p.settings.MaxAttempts-1)),
		ctx,
	)

	operation := func() error {
		task.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.settings.Timeout)
		defer cancel()

		start := time.Now()
		err := p.exec.Execute(attemptCtx, task)
		metrics.UploadDuration.WithLabelValues(inProcessBackendName).Observe(time.Since(start).Seconds())
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.UploadTasks.WithLabelValues(inProcessBackendName, "retried").Inc()
		logrus.WithFields(logrus.Fields{
			"task_id": task.ID,
			"attempt": task.Attempts,
			"wait":    wait.String(),
		}).WithError(err).Warn("upload attempt failed, will retry")
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		metrics.UploadTasks.WithLabelValues(inProcessBackendName, "succeeded").Inc()
		return
	}

	metrics.UploadTasks.WithLabelValues(inProcessBackendName, "failed").Inc()
	if ctx.Err() != nil {
		task.ErrorKind = KindInterrupted
	}
	if lerr := p.ledger.Record(context.WithoutCancel(ctx), task, err); lerr != nil {
		logrus.WithField("task_id", task.ID).WithError(lerr).Error("failed to write upload failure ledger")
		return
	}
	notification.NotifyError(err, map[string]string{
		"task_id":    task.ID,
		"tenant_id":  task.TenantID,
		"user_id":    task.UserID,
		"error_kind": task.ErrorKind,
	})
}

func (p *InProcessBackend) Status(_ context.Context) (Status, error) {
	return Status{
		Backend:  inProcessBackendName,
		Pending:  len(p.tasks),
		InFlight: int(p.inFlight.Load()),
	}, nil
}
