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
	"time"

	"github.com/blnkfinance/pledge/config"
	"github.com/blnkfinance/pledge/internal/request"
	"github.com/sirupsen/logrus"
)

// Event is the envelope delivered to the configured webhook.
type Event struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier posts lifecycle events to a webhook and operator errors to Slack.
// Either target may be empty, in which case that channel is a no-op.
type Notifier struct {
	slackURL       string
	webhookURL     string
	webhookHeaders map[string]string
}

func New(cfg config.Notification) *Notifier {
	return &Notifier{
		slackURL:       cfg.Slack.WebhookUrl,
		webhookURL:     cfg.Webhook.Url,
		webhookHeaders: cfg.Webhook.Headers,
	}
}

// WebhookEnabled reports whether lifecycle events have somewhere to go.
func (n *Notifier) WebhookEnabled() bool {
	return n != nil && n.webhookURL != ""
}

// SendWebhook delivers one event synchronously so queue workers can retry on
// failure.
func (n *Notifier) SendWebhook(ctx context.Context, event string, data interface{}) error {
	if !n.WebhookEnabled() {
		return nil
	}
	return request.PostJSON(ctx, n.webhookURL, n.webhookHeaders, Event{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func slackPayload(err error, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"blocks": []interface{}{
			map[string]interface{}{
				"type": "header",
				"text": map[string]interface{}{"type": "plain_text", "text": "Error From Pledge", "emoji": true},
			},
			map[string]interface{}{
				"type": "section",
				"fields": []interface{}{
					map[string]string{"type": "mrkdwn", "text": fmt.Sprintf("*Error:*\n%v", err)},
				},
			},
			map[string]interface{}{
				"type": "section",
				"fields": []interface{}{
					map[string]string{"type": "mrkdwn", "text": fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))},
				},
			},
		},
	}
}

// NotifyError logs systemError and forwards it to Slack in the background.
func (n *Notifier) NotifyError(systemError error) {
	logrus.Error(systemError)
	if n == nil || n.slackURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := request.PostJSON(ctx, n.slackURL, nil, slackPayload(systemError, time.Now())); err != nil {
			logrus.Errorf("slack notification failed: %v", err)
		}
	}()
}
