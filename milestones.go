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
	"strings"
	"time"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// MilestoneProposal is the unsigned call for one milestone transition plus the
// state it was validated against.
type MilestoneProposal struct {
	Project     *model.Project          `json:"project"`
	Milestone   *model.Milestone        `json:"milestone"`
	OnChain     *model.OnChainMilestone `json:"on_chain_state,omitempty"`
	Transaction model.UnsignedTx        `json:"transaction"`
}

type SubmitMilestoneInput struct {
	ProofHash     string  `json:"proof_hash"`
	ProofDocument *string `json:"proof_document"`
}

// terminalConflict rejects proposals for milestones the ledger has already
// released or disputed. Both are permanent on the ledger so the mirror alone is
// enough to decide.
func terminalConflict(m *model.Milestone) error {
	if m.Released {
		return apierror.New(apierror.ErrStateConflict, apierror.ReasonAlreadyReleased,
			fmt.Sprintf("funds already released for milestone %d", m.Index), nil)
	}
	if m.LedgerState == model.LedgerStateDisputed {
		return disputed(m.Index)
	}
	return nil
}

func disputed(index int) error {
	return apierror.New(apierror.ErrStateConflict, apierror.ReasonMilestoneDisputed,
		fmt.Sprintf("milestone %d is disputed on the ledger", index), nil)
}

// checkOnChain applies the terminal checks to a fresh ledger read.
func checkOnChain(index int, onChain *model.OnChainMilestone) error {
	if onChain.Released {
		return apierror.New(apierror.ErrStateConflict, apierror.ReasonAlreadyReleased,
			fmt.Sprintf("funds already released for milestone %d", index), nil)
	}
	if onChain.State == model.LedgerStateDisputed {
		return disputed(index)
	}
	return nil
}

// ProposeMilestoneSubmission records the proof on the mirror and encodes
// submitMilestone. The milestone's ledger state stays PENDING until
// reconciliation observes the mined submission.
func (p *Pledge) ProposeMilestoneSubmission(ctx context.Context, caller model.Caller, projectID string, index int, in SubmitMilestoneInput) (result *MilestoneProposal, err error) {
	ctx, span := tracer.Start(ctx, "ProposeMilestoneSubmission")
	defer span.End()
	defer func() { recordProposal("submit_milestone", err) }()
	span.SetAttributes(attribute.String("project.id", projectID), attribute.Int("milestone.index", index))

	proofHash := strings.TrimSpace(in.ProofHash)
	if proofHash == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "proof_hash is required", nil)
	}
	if !caller.Is(model.RoleNGO) {
		return nil, apierror.NewAPIError(apierror.ErrAuthorization, "NGO role required", nil)
	}

	project, release, err := p.lockProject(ctx, span, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := requireProjectOwner(caller, project); err != nil {
		return nil, err
	}
	m, ok := project.Milestone(index)
	if !ok {
		return nil, milestoneNotFound(projectID, index)
	}
	if err := terminalConflict(m); err != nil {
		return nil, err
	}
	// Ledger state never moves back to PENDING, so the mirror alone can reject.
	if m.LedgerState == model.LedgerStateSubmitted || m.LedgerState == model.LedgerStateApproved {
		return nil, apierror.New(apierror.ErrStateConflict, apierror.ReasonAlreadySubmitted,
			fmt.Sprintf("milestone %d already submitted", index), nil)
	}
	if !project.OnLedger() {
		return nil, notOnLedger(projectID)
	}

	onChain, err := p.gateway.ReadMilestone(ctx, project.EscrowAddress, *project.OnChainIndex, index)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read milestone from ledger: ", err)
	}
	if err := checkOnChain(index, onChain); err != nil {
		return nil, err
	}
	if onChain.State != model.LedgerStatePending {
		return nil, apierror.New(apierror.ErrStateConflict, apierror.ReasonAlreadySubmitted,
			fmt.Sprintf("milestone %d is %s on the ledger", index, onChain.State), nil)
	}

	tx, err := p.gateway.EncodeSubmitMilestone(project.EscrowAddress, *project.OnChainIndex, index, proofHash)
	if err != nil {
		return nil, logAndRecordError(span, "failed to encode submitMilestone: ", err)
	}

	candidate := project.Clone()
	cm, _ := candidate.Milestone(index)
	cm.ProofHash = &proofHash
	cm.ProofDocument = nil
	if in.ProofDocument != nil {
		doc := *in.ProofDocument
		cm.ProofDocument = &doc
	}
	cm.LocalStatus = model.LocalStatusInProgress
	candidate.UpdatedAt = p.now()
	if err := p.datasource.UpdateProject(ctx, candidate); err != nil {
		return nil, logAndRecordError(span, "failed to record milestone proof: ", err)
	}

	logrus.WithFields(logrus.Fields{"project_id": projectID, "milestone": index}).Info("milestone submission proposed")
	p.sendWebhook(ctx, EventMilestoneProposed, map[string]interface{}{"project_id": projectID, "milestone": index, "action": "submit"})
	return &MilestoneProposal{Project: candidate, Milestone: cm, OnChain: onChain, Transaction: tx}, nil
}

// ProposeMilestoneApproval encodes approveMilestone once a fresh ledger read
// shows the milestone SUBMITTED. The approval policy decides who may ask.
func (p *Pledge) ProposeMilestoneApproval(ctx context.Context, caller model.Caller, projectID string, index int) (result *MilestoneProposal, err error) {
	ctx, span := tracer.Start(ctx, "ProposeMilestoneApproval")
	defer span.End()
	defer func() { recordProposal("approve_milestone", err) }()
	span.SetAttributes(attribute.String("project.id", projectID), attribute.Int("milestone.index", index))

	if !p.opts.ApprovalPolicy(caller) {
		return nil, apierror.New(apierror.ErrAuthorization, apierror.ReasonApproverNotAllowed,
			"caller is not allowed to approve milestones", nil)
	}

	project, m, onChain, err := p.freshMilestone(ctx, projectID, index)
	if err != nil {
		return nil, logAndRecordError(span, "approval rejected: ", err)
	}
	if onChain.State != model.LedgerStateSubmitted {
		return nil, apierror.New(apierror.ErrStateConflict, apierror.ReasonNotSubmitted,
			fmt.Sprintf("milestone %d is not SUBMITTED on the ledger (current state: %s)", index, onChain.State), nil)
	}

	tx, err := p.gateway.EncodeApproveMilestone(project.EscrowAddress, *project.OnChainIndex, index)
	if err != nil {
		return nil, logAndRecordError(span, "failed to encode approveMilestone: ", err)
	}
	p.sendWebhook(ctx, EventMilestoneProposed, map[string]interface{}{"project_id": projectID, "milestone": index, "action": "approve"})
	return &MilestoneProposal{Project: project, Milestone: m, OnChain: onChain, Transaction: tx}, nil
}

// ProposeMilestoneRelease encodes releaseFunds for an APPROVED milestone whose
// dispute window has ended.
func (p *Pledge) ProposeMilestoneRelease(ctx context.Context, projectID string, index int) (result *MilestoneProposal, err error) {
	ctx, span := tracer.Start(ctx, "ProposeMilestoneRelease")
	defer span.End()
	defer func() { recordProposal("release_funds", err) }()
	span.SetAttributes(attribute.String("project.id", projectID), attribute.Int("milestone.index", index))

	project, m, onChain, err := p.freshMilestone(ctx, projectID, index)
	if err != nil {
		return nil, logAndRecordError(span, "release rejected: ", err)
	}
	if onChain.State != model.LedgerStateApproved {
		return nil, apierror.New(apierror.ErrStateConflict, apierror.ReasonNotApproved,
			fmt.Sprintf("milestone %d is not APPROVED on the ledger (current state: %s)", index, onChain.State), nil)
	}
	if err := disputeWindowOpen(p.now(), onChain.DisputeWindowEnd); err != nil {
		return nil, err
	}

	tx, err := p.gateway.EncodeReleaseFunds(project.EscrowAddress, *project.OnChainIndex, index)
	if err != nil {
		return nil, logAndRecordError(span, "failed to encode releaseFunds: ", err)
	}
	p.sendWebhook(ctx, EventMilestoneProposed, map[string]interface{}{"project_id": projectID, "milestone": index, "action": "release"})
	return &MilestoneProposal{Project: project, Milestone: m, OnChain: onChain, Transaction: tx}, nil
}

// freshMilestone loads the mirror, applies the terminal checks, and re-reads
// the milestone from the ledger.
func (p *Pledge) freshMilestone(ctx context.Context, projectID string, index int) (*model.Project, *model.Milestone, *model.OnChainMilestone, error) {
	project, err := p.datasource.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	m, ok := project.Milestone(index)
	if !ok {
		return nil, nil, nil, milestoneNotFound(projectID, index)
	}
	if err := terminalConflict(m); err != nil {
		return nil, nil, nil, err
	}
	if !project.OnLedger() {
		return nil, nil, nil, notOnLedger(projectID)
	}

	onChain, err := p.gateway.ReadMilestone(ctx, project.EscrowAddress, *project.OnChainIndex, index)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkOnChain(index, onChain); err != nil {
		return nil, nil, nil, err
	}
	return project, m, onChain, nil
}

// disputeWindowOpen fails while now is before end, reporting the remaining
// time rounded up to whole days.
func disputeWindowOpen(now time.Time, end *time.Time) error {
	if end == nil || !now.Before(*end) {
		return nil
	}
	remaining := end.Sub(now)
	days := int64(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return apierror.New(apierror.ErrStateConflict, apierror.ReasonDisputeWindowActive,
		fmt.Sprintf("dispute window has not elapsed. %d day(s) remaining", days),
		apierror.DisputeWindow{DaysRemaining: days, EndsAt: end.UTC().Format(time.RFC3339)})
}
