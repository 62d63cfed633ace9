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

package model

import "time"

type SessionMode string

const (
	SessionIdle  SessionMode = "idle"
	SessionBatch SessionMode = "batch"
)

// SessionState is the per-user blob kept by the session manager.
type SessionState struct {
	TenantID       string      `json:"tenant_id"`
	UserID         string      `json:"user_id"`
	Mode           SessionMode `json:"mode"`
	DailyProcessed int         `json:"daily_processed"`
	PeriodStart    time.Time   `json:"period_start"`
	BatchCount     int         `json:"batch_count"`
	BatchItems     []string    `json:"batch_items,omitempty"`
	BatchStartedAt *time.Time  `json:"batch_started_at,omitempty"`
	LastActivity   time.Time   `json:"last_activity"`

	// LostBatchItems is set once, on the first interaction after a batch
	// expired through inactivity. It is never persisted.
	LostBatchItems int `json:"-"`
}

func (s *SessionState) InBatch() bool {
	return s.Mode == SessionBatch
}

type BlockReason string

const (
	BlockReasonRateLimit BlockReason = "rate_limit"
	BlockReasonManual    BlockReason = "manual"
)

type BlockEntry struct {
	TenantID     string      `json:"tenant_id"`
	UserID       string      `json:"user_id"`
	BlockedUntil time.Time   `json:"blocked_until"`
	Reason       BlockReason `json:"reason"`
}
