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
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/blnkfinance/namecard/internal/request"
)

type httpUploadRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type httpUploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
}

// HTTPHost posts base64 images to an image hosting API that answers with
// {"success": true, "data": {"url": "..."}}.
type HTTPHost struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPHost(endpoint, apiKey string, timeout time.Duration) *HTTPHost {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPHost{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (h *HTTPHost) Upload(ctx context.Context, name string, image []byte) (string, error) {
	target, err := url.Parse(h.endpoint)
	if err != nil {
		return "", &Error{Kind: KindRejected, Err: errors.Wrap(err, "invalid image host endpoint")}
	}
	q := target.Query()
	q.Set("key", h.apiKey)
	target.RawQuery = q.Encode()

	var resp httpUploadResponse
	_, err = request.Do(ctx, h.client, http.MethodPost, target.String(), nil,
		httpUploadRequest{Name: name, Image: base64.StdEncoding.EncodeToString(image)}, &resp)
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests {
			return "", &Error{Kind: KindRejected, Err: errors.Wrap(err, "image host rejected the upload")}
		}
		return "", wrap(ctx, err, "image host request failed")
	}

	if !resp.Success || resp.Data.URL == "" {
		return "", &Error{Kind: KindRejected, Err: errors.New("image host returned no url")}
	}
	return resp.Data.URL, nil
}
