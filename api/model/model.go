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
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/namecard/model"
)

type CreateTenant struct {
	TenantID    string                  `json:"tenant_id"`
	Name        string                  `json:"name"`
	RoutingKey  string                  `json:"routing_key"`
	Status      model.TenantStatus      `json:"status"`
	Limits      model.TenantLimits      `json:"limits"`
	Credentials model.TenantCredentials `json:"credentials"`
}

// BlockUser blocks a user for DurationMinutes.
type BlockUser struct {
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason"`
}

type UpdateTenantStatus struct {
	Status model.TenantStatus `json:"status"`
}

// FailedUpload is a failure ledger entry without the image bytes.
type FailedUpload struct {
	ID         string               `json:"id"`
	TenantID   string               `json:"tenant_id"`
	UserID     string               `json:"user_id"`
	Handles    []model.RecordHandle `json:"handles"`
	Error      string               `json:"error"`
	ErrorKind  string               `json:"error_kind"`
	Attempts   int                  `json:"attempts"`
	ImageBytes int                  `json:"image_bytes"`
	EnqueuedAt time.Time            `json:"enqueued_at"`
	FailedAt   *time.Time           `json:"failed_at,omitempty"`
}

func credentialsValidation(value interface{}) error {
	c, ok := value.(model.TenantCredentials)
	if !ok {
		return errors.New("invalid credentials")
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.ChannelSecretRef, validation.Required),
		validation.Field(&c.ChannelTokenRef, validation.Required),
		validation.Field(&c.DocumentStoreRef, validation.Required),
		validation.Field(&c.DocumentStoreTable, validation.Required),
	)
}

func (t *CreateTenant) ValidateCreateTenant() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Name, validation.Required),
		validation.Field(&t.RoutingKey, validation.Required),
		validation.Field(&t.Status, validation.In(model.TenantPending, model.TenantActive, model.TenantInactive)),
		validation.Field(&t.Credentials, validation.By(credentialsValidation)),
	)
}

func (b *BlockUser) ValidateBlockUser() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.DurationMinutes, validation.Required, validation.Min(1)),
		validation.Field(&b.Reason, validation.In(string(model.BlockReasonManual), string(model.BlockReasonRateLimit))),
	)
}

func (s *UpdateTenantStatus) ValidateUpdateTenantStatus() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Status, validation.Required, validation.In(model.TenantPending, model.TenantActive, model.TenantInactive)),
	)
}

func (t *CreateTenant) ToTenant() model.Tenant {
	return model.Tenant{
		TenantID:    t.TenantID,
		Name:        t.Name,
		RoutingKey:  t.RoutingKey,
		Status:      t.Status,
		Limits:      t.Limits,
		Credentials: t.Credentials,
	}
}

func ToFailedUploads(tasks []model.UploadTask) []FailedUpload {
	out := make([]FailedUpload, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FailedUpload{
			ID:         task.ID,
			TenantID:   task.TenantID,
			UserID:     task.UserID,
			Handles:    task.Handles,
			Error:      task.Error,
			ErrorKind:  task.ErrorKind,
			Attempts:   task.Attempts,
			ImageBytes: len(task.Image),
			EnqueuedAt: task.EnqueuedAt,
			FailedAt:   task.FailedAt,
		})
	}
	return out
}
