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
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/namecard/internal/credentials"
	"github.com/blnkfinance/namecard/model"
)

const webhook = `{
  "destination": "Uchannel1",
  "events": [
    {"type": "message", "replyToken": "r1", "source": {"userId": "U1"}, "message": {"id": "m1", "type": "text", "text": "batch"}},
    {"type": "message", "replyToken": "r2", "source": {"userId": "U1"}, "message": {"id": "m2", "type": "image"}},
    {"type": "follow", "replyToken": "r3", "source": {"userId": "U2"}},
    {"type": "message", "replyToken": "r4", "source": {"userId": "U1"}, "message": {"id": "m4", "type": "sticker"}}
  ]
}`

func TestParseWebhook(t *testing.T) {
	dest, events, err := ParseWebhook([]byte(webhook))
	require.NoError(t, err)
	assert.Equal(t, "Uchannel1", dest)
	require.Len(t, events, 3)

	assert.Equal(t, Event{RoutingKey: "Uchannel1", UserID: "U1", ReplyToken: "r1", Type: EventText, Text: "batch", MessageID: "m1"}, events[0])
	assert.Equal(t, EventImage, events[1].Type)
	assert.Equal(t, EventOther, events[2].Type)

	_, _, err = ParseWebhook([]byte(`{`))
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(webhook)
	sig := Sign("channel-secret", body)

	assert.True(t, VerifySignature("channel-secret", body, sig))
	assert.False(t, VerifySignature("other-secret", body, sig))
	assert.False(t, VerifySignature("channel-secret", append(body, ' '), sig))
	assert.False(t, VerifySignature("", body, sig))
}

func testTenant() *model.Tenant {
	return &model.Tenant{TenantID: "tnt_1", Credentials: model.TenantCredentials{ChannelTokenRef: "line"}}
}

func TestHTTPClient_ReplyAndPush(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var reply replyRequest
	httpmock.RegisterResponder("POST", "http://api.local/v2/bot/message/reply", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&reply))
		return httpmock.NewStringResponse(200, `{}`), nil
	})
	var push pushRequest
	httpmock.RegisterResponder("POST", "http://api.local/v2/bot/message/push", func(req *http.Request) (*http.Response, error) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&push))
		return httpmock.NewStringResponse(200, `{}`), nil
	})

	c := NewHTTPClient("http://api.local", "", credentials.Static{"line": "tok"}, time.Second)
	require.NoError(t, c.Reply(context.Background(), testTenant(), "r1", Message{Kind: "help", Text: "hello"}))
	require.NoError(t, c.Push(context.Background(), testTenant(), "U1", Message{Text: "done"}))

	assert.Equal(t, "r1", reply.ReplyToken)
	assert.Equal(t, []textMessage{{Type: "text", Text: "hello"}}, reply.Messages)
	assert.Equal(t, "U1", push.To)
}

func TestHTTPClient_FetchContent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "http://data.local/v2/bot/message/m2/content", httpmock.NewBytesResponder(200, []byte{0xFF, 0xD8, 0xFF}))
	httpmock.RegisterResponder("GET", "http://data.local/v2/bot/message/gone/content", httpmock.NewStringResponder(404, `not found`))

	c := NewHTTPClient("http://api.local", "http://data.local", credentials.Static{"line": "tok"}, time.Second)
	content, err := c.FetchContent(context.Background(), testTenant(), "m2")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, content)

	_, err = c.FetchContent(context.Background(), testTenant(), "gone")
	assert.Error(t, err)

	tenant := testTenant()
	tenant.Credentials.ChannelTokenRef = "missing"
	_, err = c.FetchContent(context.Background(), tenant, "m2")
	assert.Error(t, err)
}
