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
	"fmt"
	"time"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/ledger"
	"github.com/blnkfinance/pledge/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Sync kinds name the transaction a reconciled hash belongs to.
const (
	SyncKindCreate  = "create"
	SyncKindDeposit = "deposit"
	SyncKindSubmit  = "submit"
	SyncKindApprove = "approve"
	SyncKindRelease = "release"
)

// maxParallelReads bounds concurrent milestone reads against the ledger.
const maxParallelReads = 8

type SyncOptions struct {
	Kind           string `json:"kind,omitempty"`
	MilestoneIndex *int   `json:"milestone_index,omitempty"`
}

func (o SyncOptions) validate() error {
	switch o.Kind {
	case "", SyncKindCreate, SyncKindDeposit:
		return nil
	case SyncKindSubmit, SyncKindApprove, SyncKindRelease:
		if o.MilestoneIndex == nil {
			return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("milestone_index is required for a %s sync", o.Kind), nil)
		}
		return nil
	}
	return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unknown sync kind %q", o.Kind), nil)
}

// SyncResult is the refreshed mirror plus the ledger reads and receipt it was
// built from.
type SyncResult struct {
	Project      *model.Project           `json:"project"`
	OnChainState *model.OnChainProject    `json:"on_chain_state"`
	Milestones   []model.OnChainMilestone `json:"on_chain_milestones"`
	Receipt      *model.Receipt           `json:"receipt"`
}

// SyncProject reconciles the mirror of a project with the ledger after txHash
// is mined. A reverted transaction or any failed read leaves the mirror
// untouched. Re-running with the same inputs converges on the same mirror.
func (p *Pledge) SyncProject(ctx context.Context, projectID, txHash string, opts SyncOptions) (result *SyncResult, err error) {
	ctx, span := tracer.Start(ctx, "SyncProject")
	defer span.End()
	started := time.Now()
	defer func() { recordReconciliation("project", started, err) }()
	span.SetAttributes(attribute.String("project.id", projectID), attribute.String("tx.hash", txHash))

	if !ledger.ValidTxHash(txHash) {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("%q is not a transaction hash", txHash), nil)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	project, err := p.datasource.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if opts.MilestoneIndex != nil {
		if _, ok := project.Milestone(*opts.MilestoneIndex); !ok {
			return nil, milestoneNotFound(projectID, *opts.MilestoneIndex)
		}
	}

	receipt, err := p.gateway.VerifyReceipt(ctx, txHash, p.opts.ReceiptTimeout)
	if err != nil {
		return nil, logAndRecordError(span, "receipt verification failed: ", err)
	}
	if !receipt.Success {
		return nil, apierror.NewAPIError(apierror.ErrTransactionFailed,
			fmt.Sprintf("transaction %s reverted on the ledger", txHash), nil)
	}

	project, release, err := p.lockProject(ctx, span, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	index := uint64(0)
	if project.OnChainIndex != nil {
		index = *project.OnChainIndex
	}
	if index == 0 {
		index, err = p.gateway.ResolveProjectIndex(ctx, project.EscrowAddress, project.ProjectID)
		if err != nil {
			return nil, logAndRecordError(span, "failed to resolve project index: ", err)
		}
		if index == 0 {
			return nil, apierror.New(apierror.ErrStateConflict, apierror.ReasonProjectNotOnLedger,
				fmt.Sprintf("project %s not found on the ledger", projectID), nil)
		}
	}

	onChain, milestones, err := p.readLedgerProject(ctx, project, index)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read ledger state: ", err)
	}

	candidate := project.Clone()
	now := p.now()
	candidate.OnChainIndex = &index
	candidate.TotalFunded = onChain.TotalFunded
	candidate.Active = onChain.Active
	for i := range milestones {
		candidate.Milestones[i].ApplyLedger(&milestones[i], now)
	}
	recordTxHash(candidate, opts, txHash)
	candidate.LastSyncTxHash = txHash
	candidate.LastSyncedAt = &now
	candidate.UpdatedAt = now

	if err := p.datasource.UpdateProject(ctx, candidate); err != nil {
		return nil, logAndRecordError(span, "failed to write reconciled project: ", err)
	}

	logrus.WithFields(logrus.Fields{
		"project_id": projectID,
		"index":      index,
		"tx_hash":    txHash,
		"block":      receipt.BlockNumber,
	}).Info("project reconciled with ledger")
	result = &SyncResult{Project: candidate, OnChainState: onChain, Milestones: milestones, Receipt: receipt}
	p.sendWebhook(ctx, EventProjectSynced, result)
	return result, nil
}

// readLedgerProject reads the project and every mirrored milestone. Milestone
// reads run concurrently; any failure fails the whole read.
func (p *Pledge) readLedgerProject(ctx context.Context, project *model.Project, index uint64) (*model.OnChainProject, []model.OnChainMilestone, error) {
	onChain, err := p.gateway.ReadProject(ctx, project.EscrowAddress, index)
	if err != nil {
		return nil, nil, err
	}

	count := len(project.Milestones)
	if onChain.MilestoneCount != uint64(count) {
		logrus.Warnf("project %s has %d milestones on the ledger, %d mirrored", project.ProjectID, onChain.MilestoneCount, count)
		if onChain.MilestoneCount < uint64(count) {
			count = int(onChain.MilestoneCount)
		}
	}

	milestones := make([]model.OnChainMilestone, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			m, err := p.gateway.ReadMilestone(gctx, project.EscrowAddress, index, i)
			if err != nil {
				return err
			}
			milestones[i] = *m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return onChain, milestones, nil
}

func recordTxHash(project *model.Project, opts SyncOptions, txHash string) {
	if opts.MilestoneIndex == nil {
		return
	}
	m, ok := project.Milestone(*opts.MilestoneIndex)
	if !ok {
		return
	}
	switch opts.Kind {
	case SyncKindSubmit:
		m.SubmissionTxHash = txHash
	case SyncKindApprove:
		m.ApprovalTxHash = txHash
	case SyncKindRelease:
		m.ReleaseTxHash = txHash
	}
}
