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

// Package upload attaches card images to persisted records in the
// background. Tasks are retried on a fixed schedule and parked in a failure
// ledger once attempts run out, where an operator can replay them.
package upload

import (
	"context"
	"errors"
	"time"

	"github.com/blnkfinance/namecard/internal/docstore"
	"github.com/blnkfinance/namecard/internal/imagehost"
	"github.com/blnkfinance/namecard/internal/tenant"
	"github.com/blnkfinance/namecard/model"
)

const (
	// TypeUploadImage is the asynq task type for image uploads.
	TypeUploadImage = "upload:image"

	KindInternal    = "internal"
	KindTenant      = "tenant-unavailable"
	KindEnqueue     = "enqueue-failed"
	KindInterrupted = "interrupted"
)

var (
	ErrQueueFull    = errors.New("upload queue is full")
	ErrTaskNotFound = errors.New("failed upload task not found")
)

// Backend moves tasks from Submit to the Executor. One backend is selected
// at startup and used for the life of the process.
type Backend interface {
	Name() string
	Enqueue(ctx context.Context, task *model.UploadTask) error
	Start(ctx context.Context) error
	Stop()
	Status(ctx context.Context) (Status, error)
}

// Status is a point-in-time view of the active backend.
type Status struct {
	Backend  string `json:"backend"`
	Pending  int    `json:"pending"`
	InFlight int    `json:"in_flight"`
	Retrying int    `json:"retrying"`
}

// RetrySummary reports the outcome of RetryAll.
type RetrySummary struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Settings shared by both backends.
type Settings struct {
	MaxAttempts int
	RetryDelays []time.Duration
	Timeout     time.Duration
	LedgerTTL   time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MaxAttempts: 3,
		RetryDelays: []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
		Timeout:     5 * time.Minute,
		LedgerTTL:   7 * 24 * time.Hour,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = d.MaxAttempts
	}
	if len(s.RetryDelays) == 0 {
		s.RetryDelays = d.RetryDelays
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if s.LedgerTTL <= 0 {
		s.LedgerTTL = d.LedgerTTL
	}
	return s
}

// delay returns the wait before retry n, counting from zero. The last
// configured delay repeats.
func (s Settings) delay(n int) time.Duration {
	if len(s.RetryDelays) == 0 {
		return 0
	}
	if n < 0 {
		n = 0
	}
	if n >= len(s.RetryDelays) {
		n = len(s.RetryDelays) - 1
	}
	return s.RetryDelays[n]
}

// ErrorKind names the collaborator failure behind err for the ledger.
func ErrorKind(err error) string {
	if k := imagehost.KindOf(err); k != "" {
		return string(k)
	}
	if k := docstore.KindOf(err); k != "" {
		return string(k)
	}
	if errors.Is(err, tenant.ErrTenantNotFound) || errors.Is(err, tenant.ErrTenantLookup) {
		return KindTenant
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(imagehost.KindTimeout)
	}
	return KindInternal
}

// Retryable reports whether another attempt could succeed.
func Retryable(err error) bool {
	var herr *imagehost.Error
	if errors.As(err, &herr) {
		return herr.Temporary()
	}
	var derr *docstore.Error
	if errors.As(err, &derr) {
		return derr.Temporary()
	}
	return !errors.Is(err, tenant.ErrTenantNotFound)
}
