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
	"errors"
	"fmt"

	"github.com/blnkfinance/pledge/config"
	"github.com/blnkfinance/pledge/internal/apierror"
	redis_db "github.com/blnkfinance/pledge/internal/redis-db"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Queue enqueues background reconciliation and webhook delivery.
type Queue struct {
	Client         *asynq.Client
	Inspector      *asynq.Inspector
	reconcileQueue string
	webhookQueue   string
	maxRetry       int
}

// SyncTask asks a worker to reconcile a project after txHash is mined.
type SyncTask struct {
	ProjectID      string `json:"project_id"`
	TxHash         string `json:"tx_hash"`
	Kind           string `json:"kind,omitempty"`
	MilestoneIndex *int   `json:"milestone_index,omitempty"`
}

// WebhookTask is one lifecycle event waiting for delivery.
type WebhookTask struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// RedisClientOpt turns the configured redis DSN into asynq connection options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue connects the asynq client and inspector to the configured redis.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:         asynq.NewClient(opt),
		Inspector:      asynq.NewInspector(opt),
		reconcileQueue: conf.Queue.ReconcileQueue,
		webhookQueue:   conf.Queue.WebhookQueue,
		maxRetry:       conf.Queue.MaxRetryAttempts,
	}, nil
}

// ReconcileQueue and WebhookQueue name the queues the worker must serve.
func (q *Queue) ReconcileQueue() string { return q.reconcileQueue }
func (q *Queue) WebhookQueue() string   { return q.webhookQueue }

func (q *Queue) Close() error {
	if err := q.Client.Close(); err != nil {
		return err
	}
	return q.Inspector.Close()
}

// EnqueueSync schedules a reconciliation. The same project and hash are only
// queued once.
func (q *Queue) EnqueueSync(ctx context.Context, task SyncTask) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("sync:%s:%s", task.ProjectID, task.TxHash)),
		asynq.Queue(q.reconcileQueue),
		asynq.MaxRetry(q.maxRetry),
	}
	info, err := q.Client.EnqueueContext(ctx, asynq.NewTask(q.reconcileQueue, payload, opts...))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "a sync for this transaction is already queued", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to enqueue sync", err)
	}
	logrus.Infof(" [*] Successfully enqueued sync of project %s for %s", task.ProjectID, task.TxHash)
	return info, nil
}

// EnqueueWebhook queues a webhook delivery on the webhook queue.
func (q *Queue) EnqueueWebhook(ctx context.Context, event string, data interface{}) error {
	payload, err := json.Marshal(WebhookTask{Event: event, Data: data})
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(q.webhookQueue), asynq.MaxRetry(q.maxRetry)}
	if _, err := q.Client.EnqueueContext(ctx, asynq.NewTask(q.webhookQueue, payload, opts...)); err != nil {
		return err
	}
	return nil
}

// ProcessSyncTask is the worker handler for SyncTask. Ledger outages are
// retried by asynq; anything else is final.
func (p *Pledge) ProcessSyncTask(ctx context.Context, t *asynq.Task) error {
	var task SyncTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		logrus.Errorf("error unmarshaling sync task: %v", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	_, err := p.SyncProject(ctx, task.ProjectID, task.TxHash, SyncOptions{Kind: task.Kind, MilestoneIndex: task.MilestoneIndex})
	if err == nil {
		return nil
	}
	if apierror.Retryable(err) {
		return err
	}
	p.opts.Notifier.NotifyError(err)
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}
