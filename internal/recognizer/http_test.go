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

package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/namecard/internal/credentials"
	"github.com/blnkfinance/namecard/model"
)

const recognizeURL = "http://recognizer.local/recognize"

func testTenant() *model.Tenant {
	return &model.Tenant{
		TenantID:    "tnt_1",
		Credentials: model.TenantCredentials{RecognizerRef: "ai"},
	}
}

func newTestRecognizer() *HTTPRecognizer {
	return NewHTTPRecognizer("http://recognizer.local/", credentials.Static{"ai": "key-123"}, time.Second)
}

func TestHTTPRecognizer_Success(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", recognizeURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer key-123", req.Header.Get("Authorization"))
		var body recognizeRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "aW1n", body.Image)
		return httpmock.NewJsonResponse(200, Result{
			Cards:      []model.CardRecord{{Name: "Ada Lovelace", Company: "Analytical Engines"}},
			Confidence: 0.92,
		})
	})

	res, err := newTestRecognizer().Recognize(context.Background(), testTenant(), []byte("img"))
	require.NoError(t, err)
	require.Len(t, res.Cards, 1)
	assert.Equal(t, "Ada Lovelace", res.Cards[0].Name)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestHTTPRecognizer_ErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		kind      Kind
	}{
		{"unauthorized", httpmock.NewStringResponder(401, `denied`), KindInvalidCredentials},
		{"quota", httpmock.NewStringResponder(429, `too many`), KindQuotaExhausted},
		{"typed body", httpmock.NewStringResponder(422, `{"error":{"kind":"safety-blocked","message":"blocked"}}`), KindSafetyBlocked},
		{"low resolution", httpmock.NewStringResponder(422, `{"error":{"kind":"low-resolution","message":"too small"}}`), KindLowResolution},
		{"malformed", httpmock.NewStringResponder(200, `{"cards": [`), KindParseError},
		{"no cards", httpmock.NewStringResponder(200, `{"cards": [], "confidence": 0.9}`), KindNoCardFound},
		{"low confidence", httpmock.NewStringResponder(200, `{"cards": [{"name":"A"}], "confidence": 0.1}`), KindLowQuality},
		{"incomplete", httpmock.NewStringResponder(200, `{"cards": [{"email":"a@b.c"}], "confidence": 0.8}`), KindIncomplete},
		{"network", httpmock.NewErrorResponder(errors.New("connection reset")), KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Activate()
			defer httpmock.DeactivateAndReset()
			httpmock.RegisterResponder("POST", recognizeURL, tt.responder)

			_, err := newTestRecognizer().Recognize(context.Background(), testTenant(), []byte("img"))
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestHTTPRecognizer_MissingCredential(t *testing.T) {
	tenant := testTenant()
	tenant.Credentials.RecognizerRef = "unknown"

	_, err := newTestRecognizer().Recognize(context.Background(), tenant, []byte("img"))
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
}

func TestError_Temporary(t *testing.T) {
	assert.True(t, (&Error{Kind: KindTimeout}).Temporary())
	assert.False(t, (&Error{Kind: KindSafetyBlocked}).Temporary())
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
