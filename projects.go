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

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type MilestoneInput struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	RequiredAmount decimal.Decimal `json:"required_amount"`
}

type CreateProjectInput struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Category        string           `json:"category"`
	TotalRequired   decimal.Decimal  `json:"total_required"`
	Milestones      []MilestoneInput `json:"milestones"`
	MultisigAddress string           `json:"multisig_address"`
}

// UpdateProjectInput carries the descriptive fields an owner may edit. Nil
// fields are left as they are.
type UpdateProjectInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

// ProjectProposal is a mirrored project plus the creation call the NGO signs.
type ProjectProposal struct {
	Project     *model.Project   `json:"project"`
	Transaction model.UnsignedTx `json:"transaction"`
}

// DepositProposal is a funding call a funder signs. Transaction.Value is in
// wei.
type DepositProposal struct {
	Project     *model.Project   `json:"project"`
	Amount      decimal.Decimal  `json:"amount"`
	Transaction model.UnsignedTx `json:"transaction"`
}

func validateCreateProject(in CreateProjectInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return apierror.NewAPIError(apierror.ErrValidation, "title is required", nil)
	}
	if !in.TotalRequired.IsPositive() {
		return apierror.NewAPIError(apierror.ErrValidation, "total_required must be positive", nil)
	}
	if len(in.Milestones) == 0 {
		return apierror.NewAPIError(apierror.ErrValidation, "at least one milestone is required", nil)
	}
	if strings.TrimSpace(in.MultisigAddress) == "" {
		return apierror.New(apierror.ErrValidation, apierror.ReasonMissingMultisig, "multisig wallet address is required", nil)
	}

	amounts := make([]decimal.Decimal, len(in.Milestones))
	for i, m := range in.Milestones {
		if !m.RequiredAmount.IsPositive() {
			return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("milestone %d: required_amount must be positive", i), nil)
		}
		amounts[i] = m.RequiredAmount
	}
	if !model.MilestonesMatchTotal(in.TotalRequired, amounts) {
		return apierror.New(apierror.ErrValidation, apierror.ReasonInvalidMilestoneSum,
			fmt.Sprintf("milestone amounts sum to %s, expected %s", model.SumAmounts(amounts), in.TotalRequired), nil)
	}
	return nil
}

// CreateProject stores a project with no ledger index and returns the
// createProject call that puts it on the ledger. SyncProject with the mined
// hash assigns the index.
func (p *Pledge) CreateProject(ctx context.Context, caller model.Caller, in CreateProjectInput) (result *ProjectProposal, err error) {
	ctx, span := tracer.Start(ctx, "CreateProject")
	defer span.End()
	defer func() { recordProposal("create_project", err) }()

	if !caller.Is(model.RoleNGO) {
		return nil, apierror.NewAPIError(apierror.ErrAuthorization, "only an NGO can create projects", nil)
	}
	if err := validateCreateProject(in); err != nil {
		return nil, err
	}
	if p.opts.EscrowAddress == "" {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "escrow contract address not configured", nil)
	}

	now := p.now()
	project := &model.Project{
		ProjectID:       model.GenerateUUIDWithSuffix("prj"),
		NGOID:           caller.ID,
		NGOWallet:       caller.Wallet,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Category:        in.Category,
		TotalRequired:   in.TotalRequired,
		TotalFunded:     decimal.Zero,
		EscrowAddress:   p.opts.EscrowAddress,
		MultisigAddress: strings.TrimSpace(in.MultisigAddress),
		Active:          true,
		Milestones:      make([]model.Milestone, len(in.Milestones)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, m := range in.Milestones {
		project.Milestones[i] = model.Milestone{
			Index:          i,
			Title:          m.Title,
			Description:    m.Description,
			RequiredAmount: m.RequiredAmount,
			FundedAmount:   decimal.Zero,
			LocalStatus:    model.LocalStatusPending,
			LedgerState:    model.LedgerStatePending,
		}
	}
	span.SetAttributes(attribute.String("project.id", project.ProjectID))

	tx, err := p.gateway.EncodeCreateProject(project.EscrowAddress, project.ProjectID, project.NGOWallet,
		project.MultisigAddress, project.MilestoneAmounts())
	if err != nil {
		return nil, logAndRecordError(span, "failed to encode createProject: ", err)
	}

	if err := p.datasource.CreateProject(ctx, project); err != nil {
		return nil, logAndRecordError(span, "failed to store project: ", err)
	}

	logrus.WithFields(logrus.Fields{"project_id": project.ProjectID, "ngo_id": project.NGOID}).Info("project created, awaiting ledger confirmation")
	p.sendWebhook(ctx, EventProjectCreated, project)
	return &ProjectProposal{Project: project, Transaction: tx}, nil
}

// GetProject returns the mirrored project. It does not consult the ledger.
func (p *Pledge) GetProject(ctx context.Context, id string) (*model.Project, error) {
	ctx, span := tracer.Start(ctx, "GetProject")
	defer span.End()

	project, err := p.datasource.GetProject(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return project, nil
}

// ListProjects lists newest first. An empty ngoID lists every project.
func (p *Pledge) ListProjects(ctx context.Context, ngoID string, limit, offset int) ([]*model.Project, error) {
	ctx, span := tracer.Start(ctx, "ListProjects")
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return p.datasource.ListProjects(ctx, ngoID, limit, offset)
}

func requireProjectOwner(caller model.Caller, project *model.Project) error {
	if !caller.Is(model.RoleNGO) {
		return apierror.NewAPIError(apierror.ErrAuthorization, "NGO role required", nil)
	}
	if project.NGOID != caller.ID {
		return apierror.New(apierror.ErrAuthorization, apierror.ReasonNotProjectOwner,
			fmt.Sprintf("caller does not own project %s", project.ProjectID), nil)
	}
	return nil
}

func milestoneNotFound(projectID string, index int) error {
	return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("milestone %d not found on project %s", index, projectID), nil)
}

// lockProject takes the per-project lock and reloads the mirror under it.
func (p *Pledge) lockProject(ctx context.Context, span trace.Span, id string) (*model.Project, func(), error) {
	release, err := p.locker.Acquire(ctx, projectLockKey(id))
	if err != nil {
		return nil, nil, logAndRecordError(span, "failed to lock project: ", err)
	}
	project, err := p.datasource.GetProject(ctx, id)
	if err != nil {
		release()
		return nil, nil, err
	}
	return project, release, nil
}

// UpdateMilestoneStatus changes the display-only progress of a milestone. It
// never touches ledger-governed fields.
func (p *Pledge) UpdateMilestoneStatus(ctx context.Context, caller model.Caller, projectID string, index int, status model.LocalStatus, proofDocument *string) (*model.Project, error) {
	ctx, span := tracer.Start(ctx, "UpdateMilestoneStatus")
	defer span.End()

	if !status.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("unknown milestone status %q", status), nil)
	}

	project, release, err := p.lockProject(ctx, span, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := requireProjectOwner(caller, project); err != nil {
		return nil, err
	}
	candidate := project.Clone()
	m, ok := candidate.Milestone(index)
	if !ok {
		return nil, milestoneNotFound(projectID, index)
	}

	now := p.now()
	m.LocalStatus = status
	if status == model.LocalStatusCompleted && m.CompletedAt == nil {
		m.CompletedAt = &now
	}
	if proofDocument != nil {
		doc := *proofDocument
		m.ProofDocument = &doc
	}
	candidate.UpdatedAt = now

	if err := p.datasource.UpdateProject(ctx, candidate); err != nil {
		return nil, logAndRecordError(span, "failed to update milestone status: ", err)
	}
	p.sendWebhook(ctx, EventMilestoneUpdated, candidate)
	return candidate, nil
}

// UpdateProject edits the title, description and category of a project. Only
// the owning NGO may edit it, and ledger-governed fields are never touched.
func (p *Pledge) UpdateProject(ctx context.Context, caller model.Caller, id string, in UpdateProjectInput) (*model.Project, error) {
	ctx, span := tracer.Start(ctx, "UpdateProject")
	defer span.End()

	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "title cannot be empty", nil)
	}

	project, release, err := p.lockProject(ctx, span, id)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := requireProjectOwner(caller, project); err != nil {
		return nil, err
	}
	candidate := project.Clone()
	if in.Title != nil {
		candidate.Title = *in.Title
	}
	if in.Description != nil {
		candidate.Description = *in.Description
	}
	if in.Category != nil {
		candidate.Category = *in.Category
	}
	candidate.UpdatedAt = p.now()

	if err := p.datasource.UpdateProject(ctx, candidate); err != nil {
		return nil, logAndRecordError(span, "failed to update project: ", err)
	}
	p.sendWebhook(ctx, EventProjectUpdated, candidate)
	return candidate, nil
}

// ProposeDeposit encodes a payable depositFunds call for amount.
func (p *Pledge) ProposeDeposit(ctx context.Context, projectID string, amount decimal.Decimal) (result *DepositProposal, err error) {
	ctx, span := tracer.Start(ctx, "ProposeDeposit")
	defer span.End()
	defer func() { recordProposal("deposit", err) }()

	if !amount.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "amount must be positive", nil)
	}
	project, err := p.datasource.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.OnLedger() {
		return nil, notOnLedger(project.ProjectID)
	}
	if !project.Active {
		return nil, apierror.NewAPIError(apierror.ErrStateConflict, "project is not active", nil)
	}

	tx, err := p.gateway.EncodeDeposit(project.EscrowAddress, *project.OnChainIndex, amount)
	if err != nil {
		return nil, logAndRecordError(span, "failed to encode deposit: ", err)
	}
	return &DepositProposal{Project: project, Amount: amount, Transaction: tx}, nil
}

func notOnLedger(projectID string) error {
	return apierror.New(apierror.ErrStateConflict, apierror.ReasonProjectNotOnLedger,
		fmt.Sprintf("project %s is not yet created on the ledger; sync it first", projectID), nil)
}
