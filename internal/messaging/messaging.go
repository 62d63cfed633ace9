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

// Package messaging is the contract with the chat platform that delivers
// webhook events and accepts replies.
package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/blnkfinance/namecard/model"
)

type EventType string

const (
	EventText  EventType = "text"
	EventImage EventType = "image"
	EventOther EventType = "other"
)

// Event is one inbound user message. RoutingKey identifies the channel and
// therefore the tenant.
type Event struct {
	RoutingKey string
	UserID     string
	ReplyToken string
	Type       EventType
	Text       string
	MessageID  string
}

// Message is an outbound text reply. Kind tags what the reply is about so
// adapters and tests can tell replies apart without parsing text.
type Message struct {
	Kind string `json:"-"`
	Text string `json:"text"`
}

type Client interface {
	Reply(ctx context.Context, tenant *model.Tenant, replyToken string, messages ...Message) error
	Push(ctx context.Context, tenant *model.Tenant, userID string, messages ...Message) error
	FetchContent(ctx context.Context, tenant *model.Tenant, messageID string) ([]byte, error)
}

type webhookBody struct {
	Destination string `json:"destination"`
	Events      []struct {
		Type       string `json:"type"`
		ReplyToken string `json:"replyToken"`
		Source     struct {
			UserID string `json:"userId"`
		} `json:"source"`
		Message struct {
			ID   string `json:"id"`
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"message"`
	} `json:"events"`
}

// ParseWebhook extracts message events from a webhook body. Non-message
// events are skipped.
func ParseWebhook(body []byte) (string, []Event, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return "", nil, err
	}

	events := make([]Event, 0, len(wb.Events))
	for _, e := range wb.Events {
		if e.Type != "message" {
			continue
		}
		ev := Event{
			RoutingKey: wb.Destination,
			UserID:     e.Source.UserID,
			ReplyToken: e.ReplyToken,
			MessageID:  e.Message.ID,
		}
		switch e.Message.Type {
		case "text":
			ev.Type = EventText
			ev.Text = e.Message.Text
		case "image":
			ev.Type = EventImage
		default:
			ev.Type = EventOther
		}
		events = append(events, ev)
	}
	return wb.Destination, events, nil
}

// Sign returns the base64 HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature header in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
