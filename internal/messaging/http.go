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

package messaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blnkfinance/namecard/internal/credentials"
	"github.com/blnkfinance/namecard/internal/request"
	"github.com/blnkfinance/namecard/model"
)

// maxContentBytes bounds image downloads.
const maxContentBytes = 20 << 20

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// HTTPClient talks to a LINE style messaging API.
type HTTPClient struct {
	apiURL  string
	dataURL string
	client  *http.Client
	creds   credentials.Resolver
	timeout time.Duration
}

func NewHTTPClient(apiURL, dataURL string, creds credentials.Resolver, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if dataURL == "" {
		dataURL = apiURL
	}
	return &HTTPClient{
		apiURL:  strings.TrimRight(apiURL, "/"),
		dataURL: strings.TrimRight(dataURL, "/"),
		client:  &http.Client{},
		creds:   creds,
		timeout: timeout,
	}
}

func toText(messages []Message) []textMessage {
	out := make([]textMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, textMessage{Type: "text", Text: m.Text})
	}
	return out
}

func (c *HTTPClient) auth(tenant *model.Tenant) (map[string]string, error) {
	token, err := c.creds.Resolve(tenant.Credentials.ChannelTokenRef)
	if err != nil {
		return nil, fmt.Errorf("resolve channel token for %s: %w", tenant.TenantID, err)
	}
	return map[string]string{"Authorization": request.BearerAuth(token)}, nil
}

func (c *HTTPClient) Reply(ctx context.Context, tenant *model.Tenant, replyToken string, messages ...Message) error {
	headers, err := c.auth(tenant)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err = request.Do(ctx, c.client, http.MethodPost, c.apiURL+"/v2/bot/message/reply", headers,
		replyRequest{ReplyToken: replyToken, Messages: toText(messages)}, nil)
	return err
}

func (c *HTTPClient) Push(ctx context.Context, tenant *model.Tenant, userID string, messages ...Message) error {
	headers, err := c.auth(tenant)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err = request.Do(ctx, c.client, http.MethodPost, c.apiURL+"/v2/bot/message/push", headers,
		pushRequest{To: userID, Messages: toText(messages)}, nil)
	return err
}

func (c *HTTPClient) FetchContent(ctx context.Context, tenant *model.Tenant, messageID string) ([]byte, error) {
	headers, err := c.auth(tenant)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := fmt.Sprintf("%s/v2/bot/message/%s/content", c.dataURL, url.PathEscape(messageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, &request.StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxContentBytes+1))
}
