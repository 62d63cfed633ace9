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

type UploadStatus string

const (
	UploadQueued   UploadStatus = "queued"
	UploadInFlight UploadStatus = "in-flight"
	UploadFailed   UploadStatus = "failed"
)

// RecordHandle points at a persisted card record in the document store.
type RecordHandle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// UploadTask carries everything needed to replay an image attachment
// without running recognition again. Image is base64 encoded in JSON.
type UploadTask struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	UserID     string         `json:"user_id"`
	Handles    []RecordHandle `json:"handles"`
	Image      []byte         `json:"image"`
	Status     UploadStatus   `json:"status"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	FailedAt   *time.Time     `json:"failed_at,omitempty"`
	Attempts   int            `json:"attempts"`
}

// CardRecord is the structured contact data extracted from a card image.
type CardRecord struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Department  string `json:"department,omitempty"`
	Company     string `json:"company,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Mobile      string `json:"mobile,omitempty"`
	Address     string `json:"address,omitempty"`
	Website     string `json:"website,omitempty"`
	LineID      string `json:"line_id,omitempty"`
	Notes       string `json:"notes,omitempty"`
	SubmittedBy string `json:"submitted_by,omitempty"`
}
