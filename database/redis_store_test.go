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

package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, "test")
}

func sampleProject(id, ngo string, createdAt time.Time) *model.Project {
	return &model.Project{
		ProjectID:       id,
		NGOID:           ngo,
		NGOWallet:       "0x1111111111111111111111111111111111111111",
		Title:           "Clean water",
		TotalRequired:   decimal.NewFromInt(1),
		TotalFunded:     decimal.Zero,
		EscrowAddress:   "0x2222222222222222222222222222222222222222",
		MultisigAddress: "0x3333333333333333333333333333333333333333",
		Active:          true,
		Milestones: []model.Milestone{
			{Index: 0, Title: "Drill", RequiredAmount: decimal.RequireFromString("0.5"), LocalStatus: model.LocalStatusPending, LedgerState: model.LedgerStatePending},
			{Index: 1, Title: "Pipe", RequiredAmount: decimal.RequireFromString("0.5"), LocalStatus: model.LocalStatusPending, LedgerState: model.LedgerStatePending},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestRedisStore_CreateAndGetProject(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	p := sampleProject("prj_1", "ngo_1", time.Now().UTC())

	require.NoError(t, store.CreateProject(ctx, p))

	got, err := store.GetProject(ctx, "prj_1")
	require.NoError(t, err)
	assert.Equal(t, "Clean water", got.Title)
	require.Len(t, got.Milestones, 2)
	assert.True(t, got.Milestones[1].RequiredAmount.Equal(decimal.RequireFromString("0.5")))

	err = store.CreateProject(ctx, p)
	assert.Equal(t, apierror.ErrConflict, apierror.CodeOf(err))
}

func TestRedisStore_GetProject_NotFound(t *testing.T) {
	store := newTestRedisStore(t)

	_, err := store.GetProject(context.Background(), "missing")
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
}

func TestRedisStore_ListProjects(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateProject(ctx, sampleProject("prj_a", "ngo_1", base)))
	require.NoError(t, store.CreateProject(ctx, sampleProject("prj_b", "ngo_2", base.Add(time.Hour))))
	require.NoError(t, store.CreateProject(ctx, sampleProject("prj_c", "ngo_1", base.Add(2*time.Hour))))

	all, err := store.ListProjects(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "prj_c", all[0].ProjectID)
	assert.Equal(t, "prj_a", all[2].ProjectID)

	mine, err := store.ListProjects(ctx, "ngo_1", 10, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "prj_c", mine[0].ProjectID)

	page, err := store.ListProjects(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "prj_b", page[0].ProjectID)

	none, err := store.ListProjects(ctx, "ngo_unknown", 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRedisStore_UpdateProject(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	p := sampleProject("prj_1", "ngo_1", time.Now().UTC())
	require.NoError(t, store.CreateProject(ctx, p))

	idx := uint64(4)
	p.OnChainIndex = &idx
	p.Milestones[0].LedgerState = model.LedgerStateSubmitted
	require.NoError(t, store.UpdateProject(ctx, p))

	got, err := store.GetProject(ctx, "prj_1")
	require.NoError(t, err)
	require.NotNil(t, got.OnChainIndex)
	assert.Equal(t, uint64(4), *got.OnChainIndex)
	assert.Equal(t, model.LedgerStateSubmitted, got.Milestones[0].LedgerState)

	err = store.UpdateProject(ctx, sampleProject("prj_missing", "ngo_1", time.Now()))
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
}

func TestRedisStore_Wallets(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	w := &model.MultisigWallet{
		Address:           "0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD",
		Owners:            []string{"0xA", "0xB", "0xC"},
		RequiredApprovals: 2,
		SyncedAt:          time.Now().UTC(),
	}
	require.NoError(t, store.SaveWallet(ctx, w))

	got, err := store.GetWallet(ctx, "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.RequiredApprovals)
	assert.Len(t, got.Owners, 3)

	_, err = store.GetWallet(ctx, "0x0")
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
}

func TestRedisStore_MultisigTransactions(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	tx := &model.MultisigTransaction{
		TransactionID:     "mtx_1",
		WalletAddress:     "0xABCD",
		Proposer:          "0xA",
		To:                "0xD",
		Value:             decimal.NewFromInt(1),
		RequiredApprovals: 2,
		OwnerCount:        3,
	}
	require.NoError(t, store.CreateMultisigTransaction(ctx, tx))
	assert.Equal(t, apierror.ErrConflict, apierror.CodeOf(store.CreateMultisigTransaction(ctx, tx)))

	ledgerID := uint64(0)
	tx.LedgerTxID = &ledgerID
	tx.AddApproval("0xB")
	require.NoError(t, store.UpdateMultisigTransaction(ctx, tx))

	got, err := store.GetMultisigTransaction(ctx, "0xabcd", "mtx_1")
	require.NoError(t, err)
	require.NotNil(t, got.LedgerTxID)
	assert.Equal(t, uint64(0), *got.LedgerTxID)
	assert.Equal(t, []string{"0xB"}, got.Approvals)

	_, err = store.GetMultisigTransaction(ctx, "0xother", "mtx_1")
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))

	missing := *tx
	missing.TransactionID = "mtx_2"
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(store.UpdateMultisigTransaction(ctx, &missing)))
}
