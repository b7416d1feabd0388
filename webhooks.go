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

package pledge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	EventProjectCreated    = "project.created"
	EventProjectUpdated    = "project.updated"
	EventProjectSynced     = "project.synced"
	EventMilestoneProposed = "milestone.proposed"
	EventMilestoneUpdated  = "milestone.updated"
	EventMultisigProposed  = "multisig.proposed"
	EventMultisigSynced    = "multisig.synced"
)

// sendWebhook queues an event for delivery. Delivery problems never fail the
// operation that produced the event.
func (p *Pledge) sendWebhook(ctx context.Context, event string, data interface{}) {
	if p.opts.Queue == nil || !p.opts.Notifier.WebhookEnabled() {
		return
	}
	if err := p.opts.Queue.EnqueueWebhook(ctx, event, data); err != nil {
		logrus.Errorf("failed to enqueue webhook %s: %v", event, err)
	}
}

// ProcessWebhook is the worker handler for WebhookTask.
func (p *Pledge) ProcessWebhook(ctx context.Context, t *asynq.Task) error {
	var task WebhookTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		logrus.Errorf("error unmarshaling webhook task: %v", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logrus.Infof("Processing webhook: %s", task.Event)
	return p.opts.Notifier.SendWebhook(ctx, task.Event, task.Data)
}
