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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerState mirrors the escrow contract's milestone state. Only reconciliation
// writes it.
type LedgerState string

const (
	LedgerStatePending   LedgerState = "PENDING"
	LedgerStateSubmitted LedgerState = "SUBMITTED"
	LedgerStateApproved  LedgerState = "APPROVED"
	LedgerStateDisputed  LedgerState = "DISPUTED"
)

// LedgerStateFromUint8 maps the contract's enum ordinal to a LedgerState.
func LedgerStateFromUint8(v uint8) (LedgerState, error) {
	switch v {
	case 0:
		return LedgerStatePending, nil
	case 1:
		return LedgerStateSubmitted, nil
	case 2:
		return LedgerStateApproved, nil
	case 3:
		return LedgerStateDisputed, nil
	}
	return "", fmt.Errorf("unknown milestone state %d", v)
}

// Ordinal returns the contract enum value for the state.
func (s LedgerState) Ordinal() uint8 {
	switch s {
	case LedgerStateSubmitted:
		return 1
	case LedgerStateApproved:
		return 2
	case LedgerStateDisputed:
		return 3
	}
	return 0
}

// LocalStatus is display-only progress reported by the NGO. It has no authority
// over fund movement.
type LocalStatus string

const (
	LocalStatusPending    LocalStatus = "pending"
	LocalStatusInProgress LocalStatus = "in-progress"
	LocalStatusCompleted  LocalStatus = "completed"
)

// Valid reports whether s is one of the known local statuses.
func (s LocalStatus) Valid() bool {
	switch s {
	case LocalStatusPending, LocalStatusInProgress, LocalStatusCompleted:
		return true
	}
	return false
}

type Milestone struct {
	Index            int             `json:"index"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	RequiredAmount   decimal.Decimal `json:"required_amount"`
	FundedAmount     decimal.Decimal `json:"funded_amount"`
	LocalStatus      LocalStatus     `json:"status"`
	LedgerState      LedgerState     `json:"on_chain_state"`
	ProofHash        *string         `json:"proof_hash"`
	ProofDocument    *string         `json:"proof_document"`
	DisputeWindowEnd *time.Time      `json:"dispute_window_end"`
	Released         bool            `json:"released"`
	SubmissionTxHash string          `json:"submission_tx_hash,omitempty"`
	ApprovalTxHash   string          `json:"approval_tx_hash,omitempty"`
	ReleaseTxHash    string          `json:"release_tx_hash,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at"`
}

// Project is the local mirror of an escrow project plus the metadata the ledger
// does not hold.
type Project struct {
	ProjectID       string          `json:"project_id"`
	NGOID           string          `json:"ngo_id"`
	NGOWallet       string          `json:"ngo_wallet"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	TotalRequired   decimal.Decimal `json:"total_required"`
	TotalFunded     decimal.Decimal `json:"total_funded"`
	EscrowAddress   string          `json:"escrow_address"`
	MultisigAddress string          `json:"multisig_address"`
	OnChainIndex    *uint64         `json:"on_chain_index"`
	Active          bool            `json:"active"`
	Milestones      []Milestone     `json:"milestones"`
	LastSyncTxHash  string          `json:"last_sync_tx_hash,omitempty"`
	LastSyncedAt    *time.Time      `json:"last_synced_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OnLedger reports whether the creation transaction has been reconciled.
func (p *Project) OnLedger() bool {
	return p.OnChainIndex != nil && *p.OnChainIndex != 0
}

// Milestone returns a pointer to the milestone at index, or false when the
// index is out of range.
func (p *Project) Milestone(index int) (*Milestone, bool) {
	if index < 0 || index >= len(p.Milestones) {
		return nil, false
	}
	return &p.Milestones[index], true
}

// MilestoneAmounts returns the required amounts in milestone order.
func (p *Project) MilestoneAmounts() []decimal.Decimal {
	amounts := make([]decimal.Decimal, len(p.Milestones))
	for i, m := range p.Milestones {
		amounts[i] = m.RequiredAmount
	}
	return amounts
}

// Clone returns a deep copy so callers can mutate a candidate without touching
// the original.
func (p *Project) Clone() *Project {
	c := *p
	if p.OnChainIndex != nil {
		idx := *p.OnChainIndex
		c.OnChainIndex = &idx
	}
	c.Milestones = make([]Milestone, len(p.Milestones))
	copy(c.Milestones, p.Milestones)
	return &c
}

// ApplyLedger overwrites the ledger-governed fields of the milestone with a
// fresh ledger read. Display fields are only touched when the ledger reports a
// release.
func (m *Milestone) ApplyLedger(onChain *OnChainMilestone, now time.Time) {
	m.LedgerState = onChain.State
	m.Released = onChain.Released
	m.FundedAmount = onChain.FundedAmount
	m.DisputeWindowEnd = onChain.DisputeWindowEnd
	if onChain.ProofHash != "" {
		proof := onChain.ProofHash
		m.ProofHash = &proof
	}
	if onChain.Released && m.LocalStatus != LocalStatusCompleted {
		m.LocalStatus = LocalStatusCompleted
		completed := now
		m.CompletedAt = &completed
	}
}
