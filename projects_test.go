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

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProject_Success(t *testing.T) {
	h := newHarness(t)

	proposal, err := h.pledge.CreateProject(context.Background(), ngo, threeMilestoneInput())
	require.NoError(t, err)

	p := proposal.Project
	assert.Contains(t, p.ProjectID, "prj_")
	assert.Nil(t, p.OnChainIndex)
	assert.False(t, p.OnLedger())
	assert.Equal(t, ngo.ID, p.NGOID)
	assert.Equal(t, escrowAddr, p.EscrowAddress)
	require.Len(t, p.Milestones, 3)
	for i, m := range p.Milestones {
		assert.Equal(t, i, m.Index)
		assert.Equal(t, model.LedgerStatePending, m.LedgerState)
		assert.Equal(t, model.LocalStatusPending, m.LocalStatus)
	}

	assert.Equal(t, common.HexToAddress(escrowAddr).Hex(), proposal.Transaction.To)
	expected, err := h.ledger.Client.EncodeCreateProject(escrowAddr, p.ProjectID, ngoWallet, walletAddr, p.MilestoneAmounts())
	require.NoError(t, err)
	assert.Equal(t, expected, proposal.Transaction)

	stored, err := h.store.GetProject(context.Background(), p.ProjectID)
	require.NoError(t, err)
	assert.Nil(t, stored.OnChainIndex)
}

func TestCreateProject_MilestoneSumTolerance(t *testing.T) {
	tests := []struct {
		name  string
		total string
		ok    bool
	}{
		{"exact", "1.0", true},
		{"within tolerance above", "1.0001", true},
		{"within tolerance below", "0.99995", true},
		{"just outside", "1.00011", false},
		{"far off", "2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := threeMilestoneInput()
			in.TotalRequired = dec(tt.total)

			_, err := h.pledge.CreateProject(context.Background(), ngo, in)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			requireReason(t, err, apierror.ReasonInvalidMilestoneSum)
			requireCode(t, err, apierror.ErrValidation)
		})
	}
}

func TestCreateProject_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := threeMilestoneInput()
	in.MultisigAddress = " "
	_, err := h.pledge.CreateProject(ctx, ngo, in)
	requireReason(t, err, apierror.ReasonMissingMultisig)

	in = threeMilestoneInput()
	in.Milestones = nil
	_, err = h.pledge.CreateProject(ctx, ngo, in)
	requireCode(t, err, apierror.ErrValidation)

	in = threeMilestoneInput()
	in.Milestones[1].RequiredAmount = dec("-0.3")
	_, err = h.pledge.CreateProject(ctx, ngo, in)
	requireCode(t, err, apierror.ErrValidation)

	_, err = h.pledge.CreateProject(ctx, funder, threeMilestoneInput())
	requireCode(t, err, apierror.ErrAuthorization)

	projects, err := h.pledge.ListProjects(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestListProjects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.pledge.CreateProject(ctx, ngo, threeMilestoneInput())
		require.NoError(t, err)
	}
	_, err := h.pledge.CreateProject(ctx, otherNGO, threeMilestoneInput())
	require.NoError(t, err)

	all, err := h.pledge.ListProjects(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	mine, err := h.pledge.ListProjects(ctx, ngo.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestUpdateMilestoneStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onLedgerProject(t)

	doc := "ipfs://report.pdf"
	updated, err := h.pledge.UpdateMilestoneStatus(ctx, ngo, p.ProjectID, 2, model.LocalStatusCompleted, &doc)
	require.NoError(t, err)
	m := updated.Milestones[2]
	assert.Equal(t, model.LocalStatusCompleted, m.LocalStatus)
	require.NotNil(t, m.CompletedAt)
	require.NotNil(t, m.ProofDocument)
	assert.Equal(t, doc, *m.ProofDocument)
	assert.Equal(t, model.LedgerStatePending, m.LedgerState)
	assert.False(t, m.Released)

	_, err = h.pledge.UpdateMilestoneStatus(ctx, otherNGO, p.ProjectID, 2, model.LocalStatusInProgress, nil)
	requireReason(t, err, apierror.ReasonNotProjectOwner)

	_, err = h.pledge.UpdateMilestoneStatus(ctx, ngo, p.ProjectID, 9, model.LocalStatusInProgress, nil)
	requireCode(t, err, apierror.ErrNotFound)

	_, err = h.pledge.UpdateMilestoneStatus(ctx, ngo, p.ProjectID, 0, model.LocalStatus("done"), nil)
	requireCode(t, err, apierror.ErrValidation)
}

func TestUpdateProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onLedgerProject(t)

	title, category := "Clean water for Kisumu County", "water"
	updated, err := h.pledge.UpdateProject(ctx, ngo, p.ProjectID, UpdateProjectInput{Title: &title, Category: &category})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, category, updated.Category)
	assert.Equal(t, p.Description, updated.Description)

	stored, err := h.pledge.GetProject(ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, title, stored.Title)
	assert.Equal(t, p.OnChainIndex, stored.OnChainIndex)
	assert.True(t, p.TotalFunded.Equal(stored.TotalFunded))
	assert.Equal(t, p.Active, stored.Active)
	assert.Equal(t, p.LastSyncTxHash, stored.LastSyncTxHash)
	assert.Equal(t, p.Milestones, stored.Milestones)

	_, err = h.pledge.UpdateProject(ctx, otherNGO, p.ProjectID, UpdateProjectInput{Title: &title})
	requireReason(t, err, apierror.ReasonNotProjectOwner)

	blank := "  "
	_, err = h.pledge.UpdateProject(ctx, ngo, p.ProjectID, UpdateProjectInput{Title: &blank})
	requireCode(t, err, apierror.ErrValidation)

	_, err = h.pledge.UpdateProject(ctx, ngo, "prj_missing", UpdateProjectInput{Title: &title})
	requireCode(t, err, apierror.ErrNotFound)
}

func TestProposeDeposit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	proposal, err := h.pledge.CreateProject(ctx, ngo, threeMilestoneInput())
	require.NoError(t, err)
	_, err = h.pledge.ProposeDeposit(ctx, proposal.Project.ProjectID, dec("0.25"))
	requireReason(t, err, apierror.ReasonProjectNotOnLedger)

	p := h.onLedgerProject(t)
	deposit, err := h.pledge.ProposeDeposit(ctx, p.ProjectID, dec("0.25"))
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000", deposit.Transaction.Value)
	assert.Equal(t, common.HexToAddress(escrowAddr).Hex(), deposit.Transaction.To)

	_, err = h.pledge.ProposeDeposit(ctx, p.ProjectID, dec("0"))
	requireCode(t, err, apierror.ErrValidation)
}
