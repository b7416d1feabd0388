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
	"time"

	"github.com/shopspring/decimal"
)

type MultisigStatus string

const (
	MultisigStatusProposed          MultisigStatus = "PROPOSED"
	MultisigStatusPartiallyApproved MultisigStatus = "PARTIALLY_APPROVED"
	MultisigStatusExecutable        MultisigStatus = "EXECUTABLE"
	MultisigStatusExecuted          MultisigStatus = "EXECUTED"
)

// MultisigWallet is the mirrored owner set of a treasury wallet. M and N are
// fixed per wallet.
type MultisigWallet struct {
	Address           string    `json:"address"`
	Owners            []string  `json:"owners"`
	RequiredApprovals uint64    `json:"required_approvals"`
	SyncedAt          time.Time `json:"synced_at"`
}

// IsOwner reports whether addr belongs to the owner set.
func (w *MultisigWallet) IsOwner(addr string) bool {
	for _, o := range w.Owners {
		if SameAddress(o, addr) {
			return true
		}
	}
	return false
}

// OwnerCount is N.
func (w *MultisigWallet) OwnerCount() int {
	return len(w.Owners)
}

// WalletInfo is the ledger view of a wallet returned to callers.
type WalletInfo struct {
	Address           string          `json:"address"`
	Owners            []string        `json:"owners"`
	OwnerCount        int             `json:"owner_count"`
	RequiredApprovals uint64          `json:"required_approvals"`
	TransactionCount  uint64          `json:"transaction_count"`
	Balance           decimal.Decimal `json:"balance"`
}

// MultisigTransaction mirrors one value-moving proposal against a wallet.
// LedgerTxID stays nil until the proposal transaction has been reconciled.
type MultisigTransaction struct {
	TransactionID     string          `json:"transaction_id"`
	WalletAddress     string          `json:"wallet_address"`
	LedgerTxID        *uint64         `json:"ledger_tx_id"`
	Proposer          string          `json:"proposer"`
	To                string          `json:"to"`
	Value             decimal.Decimal `json:"value"`
	Data              string          `json:"data"`
	Approvals         []string        `json:"approvals"`
	RequiredApprovals uint64          `json:"required_approvals"`
	OwnerCount        int             `json:"owner_count"`
	Executed          bool            `json:"executed"`
	ProposeTxHash     string          `json:"propose_tx_hash,omitempty"`
	ExecuteTxHash     string          `json:"execute_tx_hash,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ApprovalCount is |approvals|.
func (t *MultisigTransaction) ApprovalCount() int {
	return len(t.Approvals)
}

// HasApproved reports whether owner already approved.
func (t *MultisigTransaction) HasApproved(owner string) bool {
	for _, a := range t.Approvals {
		if SameAddress(a, owner) {
			return true
		}
	}
	return false
}

// AddApproval records owner's approval. It returns false when the owner had
// already approved, leaving the set unchanged.
func (t *MultisigTransaction) AddApproval(owner string) bool {
	if t.HasApproved(owner) {
		return false
	}
	t.Approvals = append(t.Approvals, owner)
	return true
}

// IsExecutable is approvalCount >= requiredApprovals and not executed.
func (t *MultisigTransaction) IsExecutable() bool {
	return !t.Executed && uint64(t.ApprovalCount()) >= t.RequiredApprovals
}

// OnLedger reports whether the proposal has a ledger-assigned id.
func (t *MultisigTransaction) OnLedger() bool {
	return t.LedgerTxID != nil
}

func (t *MultisigTransaction) Status() MultisigStatus {
	switch {
	case t.Executed:
		return MultisigStatusExecuted
	case t.IsExecutable():
		return MultisigStatusExecutable
	case t.ApprovalCount() > 0:
		return MultisigStatusPartiallyApproved
	}
	return MultisigStatusProposed
}
