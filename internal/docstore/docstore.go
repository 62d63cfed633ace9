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

// Package docstore is the contract with the document database that keeps
// recognized cards.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/blnkfinance/namecard/model"
)

type Kind string

const (
	KindPermissionDenied Kind = "permission-denied"
	KindNotFound         Kind = "not-found"
	KindSchemaMismatch   Kind = "schema-mismatch"
	KindRateLimited      Kind = "rate-limited"
	KindNetwork          Kind = "network"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document store (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("document store (%s): %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether the call may succeed when retried.
func (e *Error) Temporary() bool {
	return e.Kind == KindRateLimited || e.Kind == KindNetwork
}

func KindOf(err error) Kind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return ""
}

// Client persists card records. PatchImage replaces the image of a record,
// so calling it twice with the same URL leaves one image attached.
type Client interface {
	Create(ctx context.Context, tenant *model.Tenant, card model.CardRecord) (model.RecordHandle, error)
	PatchImage(ctx context.Context, tenant *model.Tenant, handle model.RecordHandle, imageURL string) error
	Ping(ctx context.Context, tenant *model.Tenant) error
}
