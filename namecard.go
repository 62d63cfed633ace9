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

package namecard

import (
	"context"
	"embed"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/namecard/internal/blocklist"
	"github.com/blnkfinance/namecard/internal/credentials"
	"github.com/blnkfinance/namecard/internal/docstore"
	"github.com/blnkfinance/namecard/internal/messaging"
	"github.com/blnkfinance/namecard/internal/quota"
	"github.com/blnkfinance/namecard/internal/recognizer"
	"github.com/blnkfinance/namecard/internal/session"
	"github.com/blnkfinance/namecard/internal/tenant"
	"github.com/blnkfinance/namecard/model"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("namecard.pipeline")

// Uploader accepts an image for background attachment to persisted records.
type Uploader interface {
	Submit(ctx context.Context, image []byte, handles []model.RecordHandle, tenantID, userID string) (string, error)
}

// Deps is everything the pipeline talks to. All fields except
// Credentials and MaxImageBytes are required.
type Deps struct {
	Tenants    *tenant.Resolver
	Quota      *quota.Limiter
	Sessions   *session.Manager
	Blocks     *blocklist.BlockList
	Recognizer recognizer.Recognizer
	Documents  docstore.Client
	Messaging  messaging.Client
	Uploads    Uploader

	Credentials     credentials.Resolver
	VerifySignature bool
	MaxImageBytes   int
}

// Namecard is the ingestion pipeline between webhook ingress and the
// recognizer, document store and upload worker.
type Namecard struct {
	tenants    *tenant.Resolver
	quota      *quota.Limiter
	sessions   *session.Manager
	blocks     *blocklist.BlockList
	recognizer recognizer.Recognizer
	documents  docstore.Client
	messaging  messaging.Client
	uploads    Uploader

	credentials     credentials.Resolver
	verifySignature bool
	maxImageBytes   int

	inflight sync.WaitGroup
}

func New(d Deps) (*Namecard, error) {
	switch {
	case d.Tenants == nil:
		return nil, errors.New("namecard: tenant resolver is required")
	case d.Quota == nil:
		return nil, errors.New("namecard: quota limiter is required")
	case d.Sessions == nil:
		return nil, errors.New("namecard: session manager is required")
	case d.Blocks == nil:
		return nil, errors.New("namecard: block list is required")
	case d.Recognizer == nil, d.Documents == nil, d.Messaging == nil:
		return nil, errors.New("namecard: recognizer, document store and messaging clients are required")
	case d.Uploads == nil:
		return nil, errors.New("namecard: uploader is required")
	}

	creds := d.Credentials
	if creds == nil {
		creds = credentials.NewEnvResolver()
	}
	maxImage := d.MaxImageBytes
	if maxImage <= 0 {
		maxImage = DefaultMaxImageBytes
	}

	return &Namecard{
		tenants:         d.Tenants,
		quota:           d.Quota,
		sessions:        d.Sessions,
		blocks:          d.Blocks,
		recognizer:      d.Recognizer,
		documents:       d.Documents,
		messaging:       d.Messaging,
		uploads:         d.Uploads,
		credentials:     creds,
		verifySignature: d.VerifySignature,
		maxImageBytes:   maxImage,
	}, nil
}
