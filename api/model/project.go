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
package model

import (
	"github.com/blnkfinance/pledge"
	"github.com/blnkfinance/pledge/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

type CreateMilestone struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	RequiredAmount decimal.Decimal `json:"required_amount"`
}

func (m CreateMilestone) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Required),
		validation.Field(&m.RequiredAmount, validation.By(positiveAmount)),
	)
}

type CreateProject struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	TotalRequired   decimal.Decimal   `json:"total_required"`
	Milestones      []CreateMilestone `json:"milestones"`
	MultisigAddress string            `json:"multisig_address"`
}

func (p *CreateProject) ValidateCreateProject() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.TotalRequired, validation.By(positiveAmount)),
		validation.Field(&p.Milestones, validation.Required),
		validation.Field(&p.MultisigAddress, validation.By(ledgerAddress)),
	)
}

func (p *CreateProject) ToInput() pledge.CreateProjectInput {
	milestones := make([]pledge.MilestoneInput, len(p.Milestones))
	for i, m := range p.Milestones {
		milestones[i] = pledge.MilestoneInput{Title: m.Title, Description: m.Description, RequiredAmount: m.RequiredAmount}
	}
	return pledge.CreateProjectInput{
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category,
		TotalRequired:   p.TotalRequired,
		Milestones:      milestones,
		MultisigAddress: p.MultisigAddress,
	}
}

type UpdateProject struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

func (u *UpdateProject) ValidateUpdateProject() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
	)
}

func (u *UpdateProject) ToInput() pledge.UpdateProjectInput {
	return pledge.UpdateProjectInput{Title: u.Title, Description: u.Description, Category: u.Category}
}

type SyncProject struct {
	TxHash         string `json:"tx_hash"`
	Kind           string `json:"kind"`
	MilestoneIndex *int   `json:"milestone_index"`
	// Async queues the reconciliation instead of waiting for the receipt.
	Async bool `json:"async"`
}

func (s *SyncProject) ValidateSyncProject() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.TxHash, validation.Required, txHashRule),
		validation.Field(&s.Kind, validation.In(pledge.SyncKindCreate, pledge.SyncKindDeposit,
			pledge.SyncKindSubmit, pledge.SyncKindApprove, pledge.SyncKindRelease)),
		validation.Field(&s.MilestoneIndex, validation.Min(0)),
	)
}

func (s *SyncProject) ToOptions() pledge.SyncOptions {
	return pledge.SyncOptions{Kind: s.Kind, MilestoneIndex: s.MilestoneIndex}
}

func (s *SyncProject) ToTask(projectID string) pledge.SyncTask {
	return pledge.SyncTask{ProjectID: projectID, TxHash: s.TxHash, Kind: s.Kind, MilestoneIndex: s.MilestoneIndex}
}

type Deposit struct {
	Amount decimal.Decimal `json:"amount"`
}

func (d *Deposit) ValidateDeposit() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Amount, validation.By(positiveAmount)),
	)
}

type UpdateMilestone struct {
	Status        string  `json:"status"`
	ProofDocument *string `json:"proof_document"`
}

func (u *UpdateMilestone) ValidateUpdateMilestone() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Status, validation.Required, validation.In(
			string(model.LocalStatusPending), string(model.LocalStatusInProgress), string(model.LocalStatusCompleted))),
	)
}

type SubmitMilestone struct {
	ProofHash     string  `json:"proof_hash"`
	ProofDocument *string `json:"proof_document"`
}

func (s *SubmitMilestone) ValidateSubmitMilestone() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.ProofHash, validation.Required, validation.Length(1, 256)),
	)
}

func (s *SubmitMilestone) ToInput() pledge.SubmitMilestoneInput {
	return pledge.SubmitMilestoneInput{ProofHash: s.ProofHash, ProofDocument: s.ProofDocument}
}
