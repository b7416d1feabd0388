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

// UnsignedTx is a call for an external actor to sign and broadcast.
type UnsignedTx struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

type OnChainProject struct {
	Index          uint64          `json:"index"`
	NGOAddress     string          `json:"ngo_address"`
	ProjectID      string          `json:"project_id"`
	MultisigWallet string          `json:"multisig_wallet"`
	TotalFunded    decimal.Decimal `json:"total_funded"`
	MilestoneCount uint64          `json:"milestone_count"`
	Active         bool            `json:"active"`
}

type OnChainMilestone struct {
	Amount           decimal.Decimal `json:"amount"`
	FundedAmount     decimal.Decimal `json:"funded_amount"`
	State            LedgerState     `json:"state"`
	ProofHash        string          `json:"proof_hash"`
	SubmissionTime   *time.Time      `json:"submission_time"`
	ApprovalTime     *time.Time      `json:"approval_time"`
	DisputeWindowEnd *time.Time      `json:"dispute_window_end"`
	Released         bool            `json:"released"`
}

type OnChainTransaction struct {
	TxID          uint64          `json:"tx_id"`
	To            string          `json:"to"`
	Value         decimal.Decimal `json:"value"`
	Data          string          `json:"data"`
	Executed      bool            `json:"executed"`
	ApprovalCount uint64          `json:"approval_count"`
}

// LogRecord is a raw event emitted inside a mined transaction.
type LogRecord struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    []byte   `json:"data"`
}

type Receipt struct {
	TxHash      string      `json:"transaction_hash"`
	Success     bool        `json:"success"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
	Logs        []LogRecord `json:"-"`
}

type ProposedEvent struct {
	TxID            uint64          `json:"tx_id"`
	Proposer        string          `json:"proposer"`
	To              string          `json:"to"`
	Value           decimal.Decimal `json:"value"`
	Data            string          `json:"data"`
	BlockNumber     uint64          `json:"block_number"`
	TransactionHash string          `json:"transaction_hash"`
}

type ApprovedEvent struct {
	TxID              uint64 `json:"tx_id"`
	Approver          string `json:"approver"`
	ApprovalCount     uint64 `json:"approval_count"`
	RequiredApprovals uint64 `json:"required_approvals"`
	BlockNumber       uint64 `json:"block_number"`
	TransactionHash   string `json:"transaction_hash"`
}

type ExecutedEvent struct {
	TxID            uint64          `json:"tx_id"`
	Executor        string          `json:"executor"`
	To              string          `json:"to"`
	Value           decimal.Decimal `json:"value"`
	BlockNumber     uint64          `json:"block_number"`
	TransactionHash string          `json:"transaction_hash"`
}

type DepositEvent struct {
	Sender          string          `json:"sender"`
	Value           decimal.Decimal `json:"value"`
	Balance         decimal.Decimal `json:"balance"`
	BlockNumber     uint64          `json:"block_number"`
	TransactionHash string          `json:"transaction_hash"`
}

// AuditTrail is a read-only projection of a wallet's event log over a block
// range.
type AuditTrail struct {
	Wallet    string          `json:"wallet"`
	FromBlock uint64          `json:"from_block"`
	ToBlock   uint64          `json:"to_block"`
	Proposed  []ProposedEvent `json:"proposed"`
	Approved  []ApprovedEvent `json:"approved"`
	Executed  []ExecutedEvent `json:"executed"`
	Deposits  []DepositEvent  `json:"deposits"`
}
