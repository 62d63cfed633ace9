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

package imagehost

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func TestHTTPHost_Upload(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://img.local/1/upload", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "k-1", req.URL.Query().Get("key"))
		var body httpUploadRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "upl_1.jpg", body.Name)
		return httpmock.NewStringResponse(200, `{"success":true,"data":{"url":"https://i.img.local/upl_1.jpg"}}`), nil
	})

	h := NewHTTPHost("http://img.local/1/upload", "k-1", time.Second)
	url, err := h.Upload(context.Background(), "upl_1.jpg", jpeg)
	require.NoError(t, err)
	assert.Equal(t, "https://i.img.local/upl_1.jpg", url)
}

func TestHTTPHost_Errors(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	h := NewHTTPHost("http://img.local/1/upload", "k-1", time.Second)

	httpmock.RegisterResponder("POST", "http://img.local/1/upload", httpmock.NewStringResponder(400, `bad image`))
	_, err := h.Upload(context.Background(), "a.jpg", jpeg)
	assert.Equal(t, KindRejected, KindOf(err))
	assert.False(t, err.(*Error).Temporary())

	httpmock.RegisterResponder("POST", "http://img.local/1/upload", httpmock.NewStringResponder(503, `down`))
	_, err = h.Upload(context.Background(), "a.jpg", jpeg)
	assert.Equal(t, KindNetwork, KindOf(err))

	httpmock.RegisterResponder("POST", "http://img.local/1/upload", httpmock.NewStringResponder(200, `{"success":false}`))
	_, err = h.Upload(context.Background(), "a.jpg", jpeg)
	assert.Equal(t, KindRejected, KindOf(err))
}

func TestS3Host_Upload(t *testing.T) {
	var gotPath, gotType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h, err := NewS3Host(S3Config{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Endpoint:        server.URL,
		Bucket:          "cards",
		Prefix:          "tnt_1",
	})
	require.NoError(t, err)

	url, err := h.Upload(context.Background(), "upl_1.jpg", jpeg)
	require.NoError(t, err)
	assert.Equal(t, "/cards/tnt_1/upl_1.jpg", gotPath)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, jpeg, gotBody)
	assert.Equal(t, server.URL+"/cards/tnt_1/upl_1.jpg", url)

	h.cfg.PublicBaseURL = "https://cdn.local/"
	url, err = h.Upload(context.Background(), "upl_1.jpg", jpeg)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.local/tnt_1/upl_1.jpg", url)
}

func TestNewS3Host_RequiresBucket(t *testing.T) {
	_, err := NewS3Host(S3Config{})
	assert.Error(t, err)
}
