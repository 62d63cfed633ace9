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

// Package recognizer is the contract with the AI service that reads
// business cards, plus a JSON-over-HTTP adapter.
package recognizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/blnkfinance/namecard/model"
)

type Kind string

const (
	KindInvalidCredentials Kind = "invalid-credentials"
	KindQuotaExhausted     Kind = "quota-exhausted"
	KindSafetyBlocked      Kind = "safety-blocked"
	KindLowQuality         Kind = "low-quality"
	KindIncomplete         Kind = "incomplete"
	KindLowResolution      Kind = "low-resolution"
	KindParseError         Kind = "parse-error"
	KindNoCardFound        Kind = "no-card-found"
	KindTimeout            Kind = "timeout"
)

var knownKinds = map[Kind]bool{
	KindInvalidCredentials: true,
	KindQuotaExhausted:     true,
	KindSafetyBlocked:      true,
	KindLowQuality:         true,
	KindIncomplete:         true,
	KindLowResolution:      true,
	KindParseError:         true,
	KindNoCardFound:        true,
	KindTimeout:            true,
}

// Error is a classified recognition failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recognition failed (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("recognition failed (%s): %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same image may succeed.
func (e *Error) Temporary() bool {
	return e.Kind == KindTimeout
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of a recognition error, or "" for other errors.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}

// Result is what a successful recognition returns. Cards is never empty.
type Result struct {
	Cards      []model.CardRecord `json:"cards"`
	Confidence float64            `json:"confidence"`
}

type Recognizer interface {
	Recognize(ctx context.Context, tenant *model.Tenant, image []byte) (*Result, error)
}
