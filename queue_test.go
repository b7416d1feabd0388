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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/pledge/config"
	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	q, err := NewQueue(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{
			ReconcileQueue:   config.DEFAULT_RECONCILE_QUEUE,
			WebhookQueue:     config.DEFAULT_WEBHOOK_QUEUE,
			MaxRetryAttempts: 3,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueueSync(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	idx := 2
	task := SyncTask{ProjectID: "prj_1", TxHash: txHash(1), Kind: SyncKindRelease, MilestoneIndex: &idx}

	info, err := q.EnqueueSync(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, "sync:prj_1:"+txHash(1), info.ID)
	assert.Equal(t, q.ReconcileQueue(), info.Queue)

	stored, err := q.Inspector.GetTaskInfo(q.ReconcileQueue(), info.ID)
	require.NoError(t, err)
	var decoded SyncTask
	require.NoError(t, json.Unmarshal(stored.Payload, &decoded))
	assert.Equal(t, task.ProjectID, decoded.ProjectID)
	require.NotNil(t, decoded.MilestoneIndex)
	assert.Equal(t, 2, *decoded.MilestoneIndex)

	_, err = q.EnqueueSync(ctx, task)
	requireCode(t, err, apierror.ErrConflict)
}

func TestRedisClientOpt_InvalidURL(t *testing.T) {
	_, err := RedisClientOpt(&config.Configuration{Redis: config.RedisConfig{Dns: "redis://user:pa ss@host:6379/0"}})
	assert.Error(t, err)
}

func syncTask(t *testing.T, task SyncTask) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(task)
	require.NoError(t, err)
	return asynq.NewTask(config.DEFAULT_RECONCILE_QUEUE, payload)
}

func TestProcessSyncTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := createProject(t, h)
	h.ledger.put(p.ProjectID, 1, pendingMilestones("0.5", "0.3", "0.2")...)
	h.ledger.mine(txHash(1), true)

	err := h.pledge.ProcessSyncTask(ctx, syncTask(t, SyncTask{ProjectID: p.ProjectID, TxHash: txHash(1), Kind: SyncKindCreate}))
	require.NoError(t, err)
	stored, err := h.store.GetProject(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.True(t, stored.OnLedger())

	err = h.pledge.ProcessSyncTask(ctx, asynq.NewTask(config.DEFAULT_RECONCILE_QUEUE, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	h.ledger.mine(txHash(2), false)
	err = h.pledge.ProcessSyncTask(ctx, syncTask(t, SyncTask{ProjectID: p.ProjectID, TxHash: txHash(2)}))
	assert.True(t, errors.Is(err, asynq.SkipRetry), "reverted transactions are final")

	h.ledger.milestoneErrs[0] = ledgerDown("getMilestone")
	h.ledger.mine(txHash(3), true)
	err = h.pledge.ProcessSyncTask(ctx, syncTask(t, SyncTask{ProjectID: p.ProjectID, TxHash: txHash(3)}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "ledger outages are retried")
	assert.True(t, apierror.Retryable(err))
}
