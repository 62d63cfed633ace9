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

package notification

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/config"
	"github.com/blnkfinance/namecard/internal/request"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildSlackMessage(systemError error, fields map[string]string, at time.Time) slackMessage {
	msg := slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: "Error From Namecard 🐞", Emoji: true}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%v", systemError)}}},
	}}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		block := slackBlock{Type: "section"}
		for _, k := range keys {
			block.Fields = append(block.Fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", k, fields[k])})
		}
		msg.Blocks = append(msg.Blocks, block)
	}

	msg.Blocks = append(msg.Blocks, slackBlock{
		Type:   "section",
		Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))}},
	})
	return msg
}

// SlackNotification posts systemError and its context fields to webhookURL.
func SlackNotification(ctx context.Context, webhookURL string, systemError error, fields map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := request.Do(ctx, nil, http.MethodPost, webhookURL, nil, buildSlackMessage(systemError, fields, time.Now()), nil)
	return err
}

// NotifyError logs systemError and, when a Slack webhook is configured,
// forwards it in the background. fields are added to the log entry and the
// Slack message.
func NotifyError(systemError error, fields map[string]string) {
	go func() {
		logFields := logrus.Fields{}
		for k, v := range fields {
			logFields[k] = v
		}
		logrus.WithFields(logFields).Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.WithError(err).Debug("notification skipped, config not loaded")
			return
		}
		if conf.Notification.Slack.WebhookUrl == "" {
			return
		}
		if err := SlackNotification(context.Background(), conf.Notification.Slack.WebhookUrl, systemError, fields); err != nil {
			logrus.WithError(err).Warn("failed to send slack notification")
		}
	}()
}
