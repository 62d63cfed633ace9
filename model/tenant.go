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

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type TenantStatus string

const (
	TenantPending  TenantStatus = "pending"
	TenantActive   TenantStatus = "active"
	TenantInactive TenantStatus = "inactive"
)

// Cadence is the period over which a tenant's card quota resets.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

const (
	DefaultDailyCardLimit = 50
	DefaultBatchSizeLimit = 10

	// MaxMonthlyResetDay keeps monthly resets away from month-end dates that
	// do not exist in every month.
	MaxMonthlyResetDay = 28
)

// TenantLimits holds the per-tenant quota settings. ResetDay is a weekday
// (0 = Sunday ... 6 = Saturday) for weekly cadence, a day of month (1-28) for
// monthly cadence and is ignored for daily cadence.
type TenantLimits struct {
	DailyCardLimit int     `json:"daily_card_limit"`
	BatchSizeLimit int     `json:"batch_size_limit"`
	ResetCadence   Cadence `json:"reset_cadence"`
	ResetDay       int     `json:"reset_day"`
}

// TenantCredentials are references, not secrets. They are resolved by the
// credentials package when a collaborator needs them.
type TenantCredentials struct {
	ChannelSecretRef   string `json:"channel_secret_ref"`
	ChannelTokenRef    string `json:"channel_token_ref"`
	DocumentStoreRef   string `json:"document_store_ref"`
	DocumentStoreTable string `json:"document_store_table"`
	RecognizerRef      string `json:"recognizer_ref"`
}

type Tenant struct {
	TenantID    string            `json:"tenant_id"`
	Name        string            `json:"name"`
	RoutingKey  string            `json:"routing_key"`
	Status      TenantStatus      `json:"status"`
	Limits      TenantLimits      `json:"limits"`
	Credentials TenantCredentials `json:"credentials"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// DefaultLimits returns the limits applied when a tenant record leaves them unset.
func DefaultLimits() TenantLimits {
	return TenantLimits{
		DailyCardLimit: DefaultDailyCardLimit,
		BatchSizeLimit: DefaultBatchSizeLimit,
		ResetCadence:   CadenceDaily,
	}
}

func (l TenantLimits) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.DailyCardLimit, validation.Required, validation.Min(1)),
		validation.Field(&l.BatchSizeLimit, validation.Required, validation.Min(1)),
		validation.Field(&l.ResetCadence, validation.Required, validation.In(CadenceDaily, CadenceWeekly, CadenceMonthly)),
		validation.Field(&l.ResetDay,
			validation.When(l.ResetCadence == CadenceWeekly, validation.Min(0), validation.Max(6)),
			validation.When(l.ResetCadence == CadenceMonthly, validation.Required, validation.Min(1), validation.Max(MaxMonthlyResetDay)),
		),
	)
}

// Validate checks a tenant record at load time. Request handling relies on
// every cached tenant having passed it.
func (t *Tenant) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.TenantID, validation.Required),
		validation.Field(&t.RoutingKey, validation.Required),
		validation.Field(&t.Status, validation.Required, validation.In(TenantPending, TenantActive, TenantInactive)),
		validation.Field(&t.Limits),
	)
}

// ApplyDefaults fills unset limits with the defaults.
func (t *Tenant) ApplyDefaults() {
	defaults := DefaultLimits()
	if t.Status == "" {
		t.Status = TenantPending
	}
	if t.Limits.DailyCardLimit == 0 {
		t.Limits.DailyCardLimit = defaults.DailyCardLimit
	}
	if t.Limits.BatchSizeLimit == 0 {
		t.Limits.BatchSizeLimit = defaults.BatchSizeLimit
	}
	if t.Limits.ResetCadence == "" {
		t.Limits.ResetCadence = defaults.ResetCadence
	}
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantActive
}
