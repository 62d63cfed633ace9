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

// Package imagehost uploads card images and returns public URLs.
package imagehost

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindRejected Kind = "upload-rejected"
	KindTimeout  Kind = "upload-timeout"
	KindNetwork  Kind = "upload-network"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("image upload failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Temporary() bool {
	return e.Kind != KindRejected
}

func KindOf(err error) Kind {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Kind
	}
	return ""
}

// Host stores an image and returns the URL it is served from. name is a
// stable object name; uploading the same name twice overwrites.
type Host interface {
	Upload(ctx context.Context, name string, image []byte) (string, error)
}

// ContentType sniffs the image type for object metadata.
func ContentType(image []byte) string {
	return http.DetectContentType(image)
}

func wrap(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return &Error{Kind: KindTimeout, Err: errors.Wrap(err, msg)}
	}
	return &Error{Kind: KindNetwork, Err: errors.Wrap(err, msg)}
}
