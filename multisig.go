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
	"github.com/blnkfinance/pledge/ledger"
	"github.com/blnkfinance/pledge/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type ProposeTransactionInput struct {
	To    string          `json:"to"`
	Value decimal.Decimal `json:"value"`
	Data  string          `json:"data"`
}

// MultisigProposal is a mirrored wallet transaction and the call an owner
// signs next. Call is nil when there is nothing to sign.
type MultisigProposal struct {
	Transaction *model.MultisigTransaction `json:"transaction"`
	Status      model.MultisigStatus       `json:"status"`
	Executable  bool                       `json:"executable"`
	Duplicate   bool                       `json:"duplicate,omitempty"`
	Call        *model.UnsignedTx          `json:"call,omitempty"`
}

type MultisigSyncResult struct {
	Transaction *model.MultisigTransaction `json:"transaction"`
	Status      model.MultisigStatus       `json:"status"`
	OnChain     *model.OnChainTransaction  `json:"on_chain"`
	Receipt     *model.Receipt             `json:"receipt,omitempty"`
}

func newMultisigProposal(tx *model.MultisigTransaction, call *model.UnsignedTx) *MultisigProposal {
	return &MultisigProposal{Transaction: tx, Status: tx.Status(), Executable: tx.IsExecutable(), Call: call}
}

// walletOrDefault falls back to the configured treasury wallet.
func (p *Pledge) walletOrDefault(wallet string) (string, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		wallet = p.opts.MultisigAddress
	}
	if wallet == "" {
		return "", apierror.New(apierror.ErrValidation, apierror.ReasonMissingMultisig, "multisig wallet address is required", nil)
	}
	return wallet, nil
}

// loadWallet reads the owner set and threshold from the ledger and refreshes
// the wallet mirror.
func (p *Pledge) loadWallet(ctx context.Context, wallet string) (*model.MultisigWallet, error) {
	var (
		owners   []string
		required uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owners, err = p.gateway.ReadOwners(gctx, wallet)
		return err
	})
	g.Go(func() error {
		var err error
		required, err = p.gateway.ReadRequiredApprovals(gctx, wallet)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	w := &model.MultisigWallet{Address: wallet, Owners: owners, RequiredApprovals: required, SyncedAt: p.now()}
	if err := p.datasource.SaveWallet(ctx, w); err != nil {
		logrus.Errorf("failed to mirror wallet %s: %v", wallet, err)
	}
	return w, nil
}

// requireOwner loads the wallet and checks the caller's address is one of its
// owners.
func (p *Pledge) requireOwner(ctx context.Context, caller model.Caller, wallet string) (*model.MultisigWallet, error) {
	if strings.TrimSpace(caller.Wallet) == "" {
		return nil, apierror.New(apierror.ErrAuthorization, apierror.ReasonNotOwner, "caller has no wallet address", nil)
	}
	w, err := p.loadWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if !w.IsOwner(caller.Wallet) {
		return nil, apierror.New(apierror.ErrAuthorization, apierror.ReasonNotOwner,
			fmt.Sprintf("%s is not an owner of wallet %s", caller.Wallet, wallet), nil)
	}
	return w, nil
}

// lockTransaction takes the per-transaction lock and reloads the mirror under
// it.
func (p *Pledge) lockTransaction(ctx context.Context, span trace.Span, wallet, id string) (*model.MultisigTransaction, func(), error) {
	release, err := p.locker.Acquire(ctx, multisigLockKey(wallet, id))
	if err != nil {
		return nil, nil, logAndRecordError(span, "failed to lock multisig transaction: ", err)
	}
	tx, err := p.datasource.GetMultisigTransaction(ctx, wallet, id)
	if err != nil {
		release()
		return nil, nil, err
	}
	return tx, release, nil
}

func alreadyExecuted(id string) error {
	return apierror.New(apierror.ErrStateConflict, apierror.ReasonTransactionAlreadyExecuted,
		fmt.Sprintf("transaction %s has already been executed", id), nil)
}

func transactionNotOnLedger(id string) error {
	return apierror.New(apierror.ErrStateConflict, apierror.ReasonTransactionNotOnLedger,
		fmt.Sprintf("transaction %s has no ledger id yet; sync it with the proposal hash first", id), nil)
}

// refreshExecuted re-reads the ledger copy and records an execution the
// mirror missed.
func (p *Pledge) refreshExecuted(ctx context.Context, tx *model.MultisigTransaction) (*model.OnChainTransaction, error) {
	onChain, err := p.gateway.ReadTransaction(ctx, tx.WalletAddress, *tx.LedgerTxID)
	if err != nil {
		return nil, err
	}
	if onChain.Executed && !tx.Executed {
		tx.Executed = true
		tx.UpdatedAt = p.now()
		if err := p.datasource.UpdateMultisigTransaction(ctx, tx); err != nil {
			return nil, err
		}
	}
	return onChain, nil
}

// ProposeTransaction mirrors a new wallet transaction and encodes the
// proposeTransaction call. Proposing does not count as approving.
func (p *Pledge) ProposeTransaction(ctx context.Context, caller model.Caller, wallet string, in ProposeTransactionInput) (result *MultisigProposal, err error) {
	ctx, span := tracer.Start(ctx, "ProposeTransaction")
	defer span.End()
	defer func() { recordProposal("multisig_propose", err) }()

	wallet, err = p.walletOrDefault(wallet)
	if err != nil {
		return nil, err
	}
	if in.Value.IsNegative() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "value must not be negative", nil)
	}
	call, err := p.gateway.EncodePropose(wallet, in.To, in.Value, in.Data)
	if err != nil {
		return nil, err
	}

	w, err := p.requireOwner(ctx, caller, wallet)
	if err != nil {
		return nil, logAndRecordError(span, "propose rejected: ", err)
	}

	now := p.now()
	tx := &model.MultisigTransaction{
		TransactionID:     model.GenerateUUIDWithSuffix("mtx"),
		WalletAddress:     wallet,
		Proposer:          caller.Wallet,
		To:                in.To,
		Value:             in.Value,
		Data:              in.Data,
		Approvals:         []string{},
		RequiredApprovals: w.RequiredApprovals,
		OwnerCount:        w.OwnerCount(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	span.SetAttributes(attribute.String("multisig.id", tx.TransactionID))
	if err := p.datasource.CreateMultisigTransaction(ctx, tx); err != nil {
		return nil, logAndRecordError(span, "failed to store multisig transaction: ", err)
	}

	p.sendWebhook(ctx, EventMultisigProposed, tx)
	return newMultisigProposal(tx, &call), nil
}

// ApproveTransaction records the caller's approval and encodes the approve
// call. Approving twice returns the unchanged transaction with Duplicate set
// and the same call.
func (p *Pledge) ApproveTransaction(ctx context.Context, caller model.Caller, wallet, id string) (result *MultisigProposal, err error) {
	ctx, span := tracer.Start(ctx, "ApproveTransaction")
	defer span.End()
	defer func() { recordProposal("multisig_approve", err) }()
	span.SetAttributes(attribute.String("multisig.id", id))

	wallet, err = p.walletOrDefault(wallet)
	if err != nil {
		return nil, err
	}
	w, err := p.requireOwner(ctx, caller, wallet)
	if err != nil {
		return nil, logAndRecordError(span, "approve rejected: ", err)
	}

	tx, release, err := p.lockTransaction(ctx, span, wallet, id)
	if err != nil {
		return nil, err
	}
	defer release()

	if tx.Executed {
		return nil, alreadyExecuted(id)
	}
	if !tx.OnLedger() {
		return nil, transactionNotOnLedger(id)
	}
	if _, err := p.refreshExecuted(ctx, tx); err != nil {
		return nil, logAndRecordError(span, "failed to read transaction from ledger: ", err)
	}
	if tx.Executed {
		return nil, alreadyExecuted(id)
	}

	call, err := p.gateway.EncodeApprove(wallet, *tx.LedgerTxID)
	if err != nil {
		return nil, err
	}
	// A retry gets the same call back so a lost payload can still be signed.
	if tx.HasApproved(caller.Wallet) {
		result = newMultisigProposal(tx, &call)
		result.Duplicate = true
		return result, nil
	}

	tx.AddApproval(caller.Wallet)
	tx.RequiredApprovals = w.RequiredApprovals
	tx.OwnerCount = w.OwnerCount()
	tx.UpdatedAt = p.now()
	if err := p.datasource.UpdateMultisigTransaction(ctx, tx); err != nil {
		return nil, logAndRecordError(span, "failed to record approval: ", err)
	}

	logrus.WithFields(logrus.Fields{"transaction_id": id, "approvals": tx.ApprovalCount(), "required": tx.RequiredApprovals}).Info("multisig approval recorded")
	return newMultisigProposal(tx, &call), nil
}

// ExecuteTransaction encodes the execute call once the ledger reports enough
// approvals. The executed flag only changes through SyncTransaction.
func (p *Pledge) ExecuteTransaction(ctx context.Context, caller model.Caller, wallet, id string) (result *MultisigProposal, err error) {
	ctx, span := tracer.Start(ctx, "ExecuteTransaction")
	defer span.End()
	defer func() { recordProposal("multisig_execute", err) }()
	span.SetAttributes(attribute.String("multisig.id", id))

	wallet, err = p.walletOrDefault(wallet)
	if err != nil {
		return nil, err
	}
	w, err := p.requireOwner(ctx, caller, wallet)
	if err != nil {
		return nil, logAndRecordError(span, "execute rejected: ", err)
	}

	tx, release, err := p.lockTransaction(ctx, span, wallet, id)
	if err != nil {
		return nil, err
	}
	defer release()

	if tx.Executed {
		return nil, alreadyExecuted(id)
	}
	if !tx.OnLedger() {
		return nil, transactionNotOnLedger(id)
	}
	onChain, err := p.refreshExecuted(ctx, tx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read transaction from ledger: ", err)
	}
	if tx.Executed {
		return nil, alreadyExecuted(id)
	}
	if onChain.ApprovalCount < w.RequiredApprovals {
		return nil, apierror.New(apierror.ErrStateConflict, apierror.ReasonNotExecutable,
			fmt.Sprintf("transaction %s has %d of %d required approvals on the ledger", id, onChain.ApprovalCount, w.RequiredApprovals),
			map[string]uint64{"approval_count": onChain.ApprovalCount, "required_approvals": w.RequiredApprovals})
	}

	call, err := p.gateway.EncodeExecute(wallet, *tx.LedgerTxID)
	if err != nil {
		return nil, err
	}
	result = newMultisigProposal(tx, &call)
	result.Executable = true
	return result, nil
}

// GetTransaction returns the mirrored transaction with no call attached. It
// reads the store only; SyncTransaction refreshes it from the ledger.
func (p *Pledge) GetTransaction(ctx context.Context, wallet, id string) (*MultisigProposal, error) {
	ctx, span := tracer.Start(ctx, "GetTransaction")
	defer span.End()

	wallet, err := p.walletOrDefault(wallet)
	if err != nil {
		return nil, err
	}
	tx, err := p.datasource.GetMultisigTransaction(ctx, wallet, id)
	if err != nil {
		return nil, err
	}
	return newMultisigProposal(tx, nil), nil
}

// IsExecutable reports approvalCount >= requiredApprovals and not executed
// for the mirrored transaction.
func (p *Pledge) IsExecutable(ctx context.Context, wallet, id string) (bool, error) {
	result, err := p.GetTransaction(ctx, wallet, id)
	if err != nil {
		return false, err
	}
	return result.Executable, nil
}

// SyncTransaction overwrites the mirrored approvals and executed flag with the
// ledger's. txHash is required until the proposal has a ledger id; it is how
// that id is found.
func (p *Pledge) SyncTransaction(ctx context.Context, wallet, id, txHash string) (result *MultisigSyncResult, err error) {
	ctx, span := tracer.Start(ctx, "SyncTransaction")
	defer span.End()
	started := time.Now()
	defer func() { recordReconciliation("multisig", started, err) }()
	span.SetAttributes(attribute.String("multisig.id", id))

	wallet, err = p.walletOrDefault(wallet)
	if err != nil {
		return nil, err
	}
	if txHash != "" && !ledger.ValidTxHash(txHash) {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("%q is not a transaction hash", txHash), nil)
	}
	tx, err := p.datasource.GetMultisigTransaction(ctx, wallet, id)
	if err != nil {
		return nil, err
	}
	if txHash == "" && !tx.OnLedger() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "tx_hash is required until the proposal is on the ledger", nil)
	}

	var receipt *model.Receipt
	if txHash != "" {
		receipt, err = p.gateway.VerifyReceipt(ctx, txHash, p.opts.ReceiptTimeout)
		if err != nil {
			return nil, logAndRecordError(span, "receipt verification failed: ", err)
		}
		if !receipt.Success {
			return nil, apierror.NewAPIError(apierror.ErrTransactionFailed,
				fmt.Sprintf("transaction %s reverted on the ledger", txHash), nil)
		}
	}

	tx, release, err := p.lockTransaction(ctx, span, wallet, id)
	if err != nil {
		return nil, err
	}
	defer release()

	candidate := *tx
	if !candidate.OnLedger() {
		ledgerID, ok := p.gateway.ProposedTransactionID(wallet, receipt)
		if !ok {
			return nil, transactionNotOnLedger(id)
		}
		candidate.LedgerTxID = &ledgerID
		candidate.ProposeTxHash = txHash
	}

	onChain, err := p.gateway.ReadTransaction(ctx, wallet, *candidate.LedgerTxID)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read transaction from ledger: ", err)
	}
	w, err := p.loadWallet(ctx, wallet)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read wallet from ledger: ", err)
	}
	approvals, err := p.ledgerApprovals(ctx, wallet, *candidate.LedgerTxID, w.Owners)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read approvals from ledger: ", err)
	}
	if !model.SameAddress(onChain.To, candidate.To) || !onChain.Value.Equal(candidate.Value) {
		logrus.Warnf("ledger transaction %d does not match mirrored proposal %s", *candidate.LedgerTxID, id)
	}

	candidate.Approvals = approvals
	candidate.RequiredApprovals = w.RequiredApprovals
	candidate.OwnerCount = w.OwnerCount()
	if onChain.Executed && !candidate.Executed {
		candidate.Executed = true
		if txHash != "" && txHash != candidate.ProposeTxHash {
			candidate.ExecuteTxHash = txHash
		}
	}
	candidate.UpdatedAt = p.now()

	if err := p.datasource.UpdateMultisigTransaction(ctx, &candidate); err != nil {
		return nil, logAndRecordError(span, "failed to write reconciled transaction: ", err)
	}
	p.sendWebhook(ctx, EventMultisigSynced, &candidate)
	return &MultisigSyncResult{Transaction: &candidate, Status: candidate.Status(), OnChain: onChain, Receipt: receipt}, nil
}

// ledgerApprovals asks the wallet which owners have approved txID, keeping
// owner order.
func (p *Pledge) ledgerApprovals(ctx context.Context, wallet string, txID uint64, owners []string) ([]string, error) {
	approved := make([]bool, len(owners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, owner := range owners {
		i, owner := i, owner
		g.Go(func() error {
			ok, err := p.gateway.IsApprovedBy(gctx, wallet, txID, owner)
			if err != nil {
				return err
			}
			approved[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	approvals := []string{}
	for i, ok := range approved {
		if ok {
			approvals = append(approvals, owners[i])
		}
	}
	return approvals, nil
}
