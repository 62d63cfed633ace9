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

package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/namecard/internal/credentials"
	"github.com/blnkfinance/namecard/model"
)

const tableURL = "http://docs.local/tables/cards"

func testTenant() *model.Tenant {
	return &model.Tenant{
		TenantID: "tnt_1",
		Credentials: model.TenantCredentials{
			DocumentStoreRef:   "docs",
			DocumentStoreTable: "cards",
		},
	}
}

func newTestClient() *HTTPClient {
	return NewHTTPClient("http://docs.local", credentials.Static{"docs": "tok"}, time.Second)
}

func TestHTTPClient_Create(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	card := model.CardRecord{Name: gofakeit.Name(), Company: gofakeit.Company(), Email: gofakeit.Email()}
	httpmock.RegisterResponder("POST", tableURL+"/records", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		var body createRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, card, body.Fields)
		return httpmock.NewStringResponse(201, `{"id":"rec_1","url":"http://docs.local/rec_1"}`), nil
	})

	handle, err := newTestClient().Create(context.Background(), testTenant(), card)
	require.NoError(t, err)
	assert.Equal(t, model.RecordHandle{ID: "rec_1", URL: "http://docs.local/rec_1"}, handle)
}

func TestHTTPClient_PatchImage(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("PATCH", tableURL+"/records/rec_1", func(req *http.Request) (*http.Response, error) {
		var body patchRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "https://img.local/a.jpg", body.ImageURL)
		return httpmock.NewStringResponse(200, `{}`), nil
	})

	err := newTestClient().PatchImage(context.Background(), testTenant(), model.RecordHandle{ID: "rec_1"}, "https://img.local/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestHTTPClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		kind      Kind
		temporary bool
	}{
		{"forbidden", httpmock.NewStringResponder(403, `no`), KindPermissionDenied, false},
		{"missing table", httpmock.NewStringResponder(404, `no`), KindNotFound, false},
		{"schema", httpmock.NewStringResponder(400, `bad property`), KindSchemaMismatch, false},
		{"rate limited", httpmock.NewStringResponder(429, `slow`), KindRateLimited, true},
		{"server error", httpmock.NewStringResponder(502, `bad gateway`), KindNetwork, true},
		{"network", httpmock.NewErrorResponder(errors.New("no route to host")), KindNetwork, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Activate()
			defer httpmock.DeactivateAndReset()
			httpmock.RegisterResponder("POST", tableURL+"/records", tt.responder)

			_, err := newTestClient().Create(context.Background(), testTenant(), model.CardRecord{Name: "A"})
			require.Error(t, err)
			var derr *Error
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, tt.kind, derr.Kind)
			assert.Equal(t, tt.temporary, derr.Temporary())
		})
	}
}

func TestHTTPClient_Ping(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("GET", tableURL, httpmock.NewStringResponder(200, `{"id":"cards"}`))

	assert.NoError(t, newTestClient().Ping(context.Background(), testTenant()))

	tenant := testTenant()
	tenant.Credentials.DocumentStoreTable = ""
	assert.Equal(t, KindNotFound, KindOf(newTestClient().Ping(context.Background(), tenant)))

	tenant = testTenant()
	tenant.Credentials.DocumentStoreRef = "other"
	assert.Equal(t, KindPermissionDenied, KindOf(newTestClient().Ping(context.Background(), tenant)))
}
