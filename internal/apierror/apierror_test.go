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

package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blnkfinance/namecard/internal/apierror"
)

func TestNewAPIError(t *testing.T) {
	details := "Some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Something went wrong", details)

	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "INTERNAL_SERVER_ERROR: Something went wrong", apiErr.Error())
}

func TestIsNotFound(t *testing.T) {
	notFound := apierror.NewAPIError(apierror.ErrNotFound, "tenant not found", nil)

	assert.True(t, apierror.IsNotFound(notFound))
	assert.True(t, apierror.IsNotFound(fmt.Errorf("lookup: %w", notFound)))
	assert.False(t, apierror.IsNotFound(errors.New("boom")))
	assert.False(t, apierror.IsNotFound(nil))
	assert.True(t, apierror.IsConflict(apierror.NewAPIError(apierror.ErrConflict, "dup", nil)))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"NotFound Error", apierror.NewAPIError(apierror.ErrNotFound, "Resource not found", nil), http.StatusNotFound},
		{"Conflict Error", apierror.NewAPIError(apierror.ErrConflict, "Conflict occurred", nil), http.StatusConflict},
		{"InvalidInput Error", apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid input", nil), http.StatusBadRequest},
		{"Unauthorized Error", apierror.NewAPIError(apierror.ErrUnauthorized, "bad signature", nil), http.StatusUnauthorized},
		{"TooManyRequests Error", apierror.NewAPIError(apierror.ErrTooManyRequests, "slow down", nil), http.StatusTooManyRequests},
		{"Unavailable Error", apierror.NewAPIError(apierror.ErrUnavailable, "queue offline", nil), http.StatusServiceUnavailable},
		{"Wrapped Error", fmt.Errorf("ctx: %w", apierror.NewAPIError(apierror.ErrNotFound, "gone", nil)), http.StatusNotFound},
		{"InternalServerError", apierror.NewAPIError(apierror.ErrInternalServer, "Internal server error", nil), http.StatusInternalServerError},
		{"Unknown Error", errors.New("Unknown error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToHTTPStatus(tt.err))
		})
	}
}
