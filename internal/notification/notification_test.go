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
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/blnkfinance/pledge/config"
	"github.com/blnkfinance/pledge/internal/request"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWebhook_Disabled(t *testing.T) {
	n := New(config.Notification{})
	assert.False(t, n.WebhookEnabled())
	assert.NoError(t, n.SendWebhook(context.Background(), "milestone.released", nil))
}

func TestSendWebhook_Delivers(t *testing.T) {
	httpmock.ActivateNonDefault(request.DefaultClient)
	defer httpmock.DeactivateAndReset()

	var got Event
	var header string
	httpmock.RegisterResponder(http.MethodPost, "http://hooks.example.com",
		func(req *http.Request) (*http.Response, error) {
			header = req.Header.Get("X-Pledge-Key")
			_ = json.NewDecoder(req.Body).Decode(&got)
			return httpmock.NewStringResponse(204, ""), nil
		})

	n := New(config.Notification{Webhook: config.WebhookConfig{
		Url:     "http://hooks.example.com",
		Headers: map[string]string{"X-Pledge-Key": "secret"},
	}})
	err := n.SendWebhook(context.Background(), "project.reconciled", map[string]string{"project_id": "prj_1"})
	require.NoError(t, err)
	assert.Equal(t, "project.reconciled", got.Event)
	assert.Equal(t, "secret", header)
	assert.False(t, got.Timestamp.IsZero())
}

func TestSendWebhook_FailureIsReturned(t *testing.T) {
	httpmock.ActivateNonDefault(request.DefaultClient)
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodPost, "http://hooks.example.com", httpmock.NewStringResponder(502, "bad gateway"))

	n := New(config.Notification{Webhook: config.WebhookConfig{Url: "http://hooks.example.com"}})
	assert.Error(t, n.SendWebhook(context.Background(), "x", nil))
}

func TestNotifyError_PostsToSlack(t *testing.T) {
	httpmock.ActivateNonDefault(request.DefaultClient)
	defer httpmock.DeactivateAndReset()

	done := make(chan string, 1)
	httpmock.RegisterResponder(http.MethodPost, "http://slack.example.com",
		func(req *http.Request) (*http.Response, error) {
			var body map[string]interface{}
			_ = json.NewDecoder(req.Body).Decode(&body)
			raw, _ := json.Marshal(body)
			done <- string(raw)
			return httpmock.NewStringResponse(200, "ok"), nil
		})

	n := New(config.Notification{Slack: config.SlackWebhook{WebhookUrl: "http://slack.example.com"}})
	n.NotifyError(errors.New("ledger unreachable"))

	select {
	case body := <-done:
		assert.Contains(t, body, "ledger unreachable")
	case <-time.After(2 * time.Second):
		t.Fatal("slack notification was not sent")
	}
}

func TestNotifyError_NilNotifier(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.NotifyError(errors.New("x")) })
}
