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
	"testing"
	"time"

	"github.com/blnkfinance/pledge/database/mocks"
	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func createProject(t *testing.T, h *harness) *model.Project {
	t.Helper()
	proposal, err := h.pledge.CreateProject(context.Background(), ngo, threeMilestoneInput())
	require.NoError(t, err)
	return proposal.Project
}

func TestSyncProject_AssignsIndexAndLedgerState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := createProject(t, h)

	ms := pendingMilestones("0.5", "0.3", "0.2")
	ms[0].FundedAmount = dec("0.5")
	ms[1].FundedAmount = dec("0.1")
	h.ledger.put(p.ProjectID, 4, ms...)
	h.ledger.mine(txHash(1), true)

	result, err := h.pledge.SyncProject(ctx, p.ProjectID, txHash(1), SyncOptions{Kind: SyncKindDeposit})
	require.NoError(t, err)
	require.NotNil(t, result.Project.OnChainIndex)
	assert.Equal(t, uint64(4), *result.Project.OnChainIndex)
	assert.True(t, result.Project.TotalFunded.Equal(dec("0.6")))
	assert.True(t, result.Project.Active)
	assert.True(t, result.Project.Milestones[1].FundedAmount.Equal(dec("0.1")))
	assert.Equal(t, txHash(1), result.Project.LastSyncTxHash)
	require.NotNil(t, result.Project.LastSyncedAt)
	assert.Equal(t, uint64(100), result.Receipt.BlockNumber)
	assert.Len(t, result.Milestones, 3)

	stored, err := h.store.GetProject(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), *stored.OnChainIndex)
}

func TestSyncProject_FailedReceiptLeavesMirror(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onLedgerProject(t)
	before, err := h.store.GetProject(ctx, p.ProjectID)
	require.NoError(t, err)

	h.ledger.setMilestone(1, 0, model.OnChainMilestone{Amount: dec("0.5"), State: model.LedgerStateSubmitted})
	h.ledger.mine(txHash(2), false)
	idx := 0
	_, err = h.pledge.SyncProject(ctx, p.ProjectID, txHash(2), SyncOptions{Kind: SyncKindSubmit, MilestoneIndex: &idx})
	requireCode(t, err, apierror.ErrTransactionFailed)

	after, err := h.store.GetProject(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, model.LedgerStatePending, after.Milestones[0].LedgerState)
}

func TestSyncProject_NotOnLedger(t *testing.T) {
	h := newHarness(t)
	p := createProject(t, h)
	h.ledger.mine(txHash(1), true)

	_, err := h.pledge.SyncProject(context.Background(), p.ProjectID, txHash(1), SyncOptions{Kind: SyncKindCreate})
	requireReason(t, err, apierror.ReasonProjectNotOnLedger)
}

func TestSyncProject_InputValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := createProject(t, h)

	_, err := h.pledge.SyncProject(ctx, p.ProjectID, "0x1234", SyncOptions{})
	requireCode(t, err, apierror.ErrValidation)

	_, err = h.pledge.SyncProject(ctx, p.ProjectID, txHash(1), SyncOptions{Kind: SyncKindApprove})
	requireCode(t, err, apierror.ErrValidation)

	_, err = h.pledge.SyncProject(ctx, p.ProjectID, txHash(1), SyncOptions{Kind: "refund"})
	requireCode(t, err, apierror.ErrValidation)

	idx := 7
	_, err = h.pledge.SyncProject(ctx, p.ProjectID, txHash(1), SyncOptions{Kind: SyncKindRelease, MilestoneIndex: &idx})
	requireCode(t, err, apierror.ErrNotFound)

	_, err = h.pledge.SyncProject(ctx, "prj_missing", txHash(1), SyncOptions{})
	requireCode(t, err, apierror.ErrNotFound)

	_, err = h.pledge.SyncProject(ctx, p.ProjectID, txHash(99), SyncOptions{})
	requireReason(t, err, apierror.ReasonTransactionNotFound)
}

func TestSyncProject_CancelledWhileWaiting(t *testing.T) {
	h := newHarness(t)
	p := createProject(t, h)
	h.ledger.put(p.ProjectID, 1, pendingMilestones("0.5", "0.3", "0.2")...)
	h.ledger.hang[txHash(3)] = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.pledge.SyncProject(ctx, p.ProjectID, txHash(3), SyncOptions{Kind: SyncKindCreate})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	stored, err := h.store.GetProject(context.Background(), p.ProjectID)
	require.NoError(t, err)
	assert.Nil(t, stored.OnChainIndex)
	assert.Empty(t, stored.LastSyncTxHash)
}

func TestSyncProject_LedgerReadFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onLedgerProject(t)

	h.ledger.setMilestone(1, 0, model.OnChainMilestone{Amount: dec("0.5"), State: model.LedgerStateApproved})
	h.ledger.milestoneErrs[2] = ledgerDown("getMilestone")
	h.ledger.mine(txHash(4), true)

	_, err := h.pledge.SyncProject(ctx, p.ProjectID, txHash(4), SyncOptions{})
	requireCode(t, err, apierror.ErrLedgerUnavailable)
	assert.True(t, apierror.Retryable(err))

	stored, err := h.store.GetProject(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerStatePending, stored.Milestones[0].LedgerState)
	assert.Equal(t, txHash(1), stored.LastSyncTxHash)
}

func TestSyncProject_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onLedgerProject(t)

	end := h.clock.Now().Add(72 * time.Hour)
	h.ledger.setMilestone(1, 1, model.OnChainMilestone{
		Amount:           dec("0.3"),
		FundedAmount:     dec("0.3"),
		State:            model.LedgerStateApproved,
		ProofHash:        "QmDrill",
		DisputeWindowEnd: &end,
	})
	h.ledger.mine(txHash(5), true)
	idx := 1
	opts := SyncOptions{Kind: SyncKindApprove, MilestoneIndex: &idx}

	first, err := h.pledge.SyncProject(ctx, p.ProjectID, txHash(5), opts)
	require.NoError(t, err)
	second, err := h.pledge.SyncProject(ctx, p.ProjectID, txHash(5), opts)
	require.NoError(t, err)

	assert.Equal(t, first.Project.Milestones, second.Project.Milestones)
	m := second.Project.Milestones[1]
	assert.Equal(t, model.LedgerStateApproved, m.LedgerState)
	assert.Equal(t, txHash(5), m.ApprovalTxHash)
	assert.Empty(t, m.SubmissionTxHash)
	require.NotNil(t, m.ProofHash)
	assert.Equal(t, "QmDrill", *m.ProofHash)
	assert.True(t, end.Equal(*m.DisputeWindowEnd))
}

func TestSyncProject_MilestoneCountMismatch(t *testing.T) {
	h := newHarness(t)
	p := createProject(t, h)
	h.ledger.put(p.ProjectID, 2, pendingMilestones("0.5", "0.3")...)
	h.ledger.mine(txHash(1), true)

	result, err := h.pledge.SyncProject(context.Background(), p.ProjectID, txHash(1), SyncOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Milestones, 2)
	assert.Len(t, result.Project.Milestones, 3)
}

func TestSyncProject_RevertedReceiptNeverWrites(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	gw := newFakeGateway()
	gw.mine(txHash(8), false)
	p := New(mockDS, gw, nil, Options{EscrowAddress: escrowAddr})

	index := uint64(1)
	project := &model.Project{ProjectID: "prj_1", OnChainIndex: &index, Milestones: []model.Milestone{{Index: 0}}}
	mockDS.On("GetProject", mock.Anything, "prj_1").Return(project, nil)

	_, err := p.SyncProject(context.Background(), "prj_1", txHash(8), SyncOptions{})
	requireCode(t, err, apierror.ErrTransactionFailed)
	mockDS.AssertNotCalled(t, "UpdateProject", mock.Anything, mock.Anything)
}

func TestGetProjectState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	offLedger := createProject(t, h)
	state, err := h.pledge.GetProjectState(ctx, offLedger.ProjectID)
	require.NoError(t, err)
	assert.Nil(t, state.OnChainState)
	assert.Empty(t, state.Milestones)

	p := h.onLedgerProject(t)
	h.ledger.milestoneErrs[1] = ledgerDown("getMilestone")
	state, err = h.pledge.GetProjectState(ctx, p.ProjectID)
	require.NoError(t, err)
	require.NotNil(t, state.OnChainState)
	require.Len(t, state.Milestones, 3)
	assert.NotNil(t, state.Milestones[0].OnChain)
	assert.Nil(t, state.Milestones[1].OnChain)
	assert.Contains(t, state.Milestones[1].Error, "connection refused")
	assert.NotNil(t, state.Milestones[2].OnChain)

	_, err = h.pledge.GetProjectState(ctx, "prj_missing")
	requireCode(t, err, apierror.ErrNotFound)
}
