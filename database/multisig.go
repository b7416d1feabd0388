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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/lib/pq"
)

func (d *Datasource) SaveWallet(ctx context.Context, w *model.MultisigWallet) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO pledge.multisig_wallets (address, owners, required_approvals, synced_at)
		VALUES (LOWER($1), $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			owners = EXCLUDED.owners,
			required_approvals = EXCLUDED.required_approvals,
			synced_at = EXCLUDED.synced_at
	`, w.Address, pq.Array(w.Owners), w.RequiredApprovals, w.SyncedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to save multisig wallet", err)
	}
	return nil
}

func (d *Datasource) GetWallet(ctx context.Context, address string) (*model.MultisigWallet, error) {
	w := &model.MultisigWallet{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT address, owners, required_approvals, synced_at
		FROM pledge.multisig_wallets
		WHERE address = LOWER($1)
	`, address).Scan(&w.Address, pq.Array(&w.Owners), &w.RequiredApprovals, &w.SyncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("multisig wallet '%s' not found", address), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve multisig wallet", err)
	}
	return w, nil
}

func (d *Datasource) CreateMultisigTransaction(ctx context.Context, tx *model.MultisigTransaction) error {
	approvals := tx.Approvals
	if approvals == nil {
		approvals = []string{}
	}
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO pledge.multisig_transactions (
			transaction_id, wallet_address, ledger_tx_id, proposer, to_address, value, data, approvals,
			required_approvals, owner_count, executed, propose_tx_hash, execute_tx_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, tx.TransactionID, tx.WalletAddress, nullIndex(tx.LedgerTxID), tx.Proposer, tx.To, tx.Value, tx.Data,
		pq.Array(approvals), tx.RequiredApprovals, tx.OwnerCount, tx.Executed, emptyAsNull(tx.ProposeTxHash),
		emptyAsNull(tx.ExecuteTxHash), tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "multisig transaction")
	}
	return nil
}

func (d *Datasource) GetMultisigTransaction(ctx context.Context, wallet, id string) (*model.MultisigTransaction, error) {
	tx := &model.MultisigTransaction{}
	var (
		ledgerTxID                  sql.NullInt64
		data, proposeHash, execHash sql.NullString
	)
	err := d.Conn.QueryRowContext(ctx, `
		SELECT transaction_id, wallet_address, ledger_tx_id, proposer, to_address, value, data, approvals,
			required_approvals, owner_count, executed, propose_tx_hash, execute_tx_hash, created_at, updated_at
		FROM pledge.multisig_transactions
		WHERE transaction_id = $1 AND LOWER(wallet_address) = LOWER($2)
	`, id, wallet).Scan(&tx.TransactionID, &tx.WalletAddress, &ledgerTxID, &tx.Proposer, &tx.To, &tx.Value, &data,
		pq.Array(&tx.Approvals), &tx.RequiredApprovals, &tx.OwnerCount, &tx.Executed, &proposeHash, &execHash,
		&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("multisig transaction '%s' not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve multisig transaction", err)
	}
	if ledgerTxID.Valid {
		v := uint64(ledgerTxID.Int64)
		tx.LedgerTxID = &v
	}
	tx.Data = data.String
	tx.ProposeTxHash = proposeHash.String
	tx.ExecuteTxHash = execHash.String
	return tx, nil
}

func (d *Datasource) UpdateMultisigTransaction(ctx context.Context, tx *model.MultisigTransaction) error {
	approvals := tx.Approvals
	if approvals == nil {
		approvals = []string{}
	}
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE pledge.multisig_transactions SET
			ledger_tx_id = $2, approvals = $3, required_approvals = $4, owner_count = $5, executed = $6,
			propose_tx_hash = $7, execute_tx_hash = $8, updated_at = $9
		WHERE transaction_id = $1
	`, tx.TransactionID, nullIndex(tx.LedgerTxID), pq.Array(approvals), tx.RequiredApprovals, tx.OwnerCount, tx.Executed,
		emptyAsNull(tx.ProposeTxHash), emptyAsNull(tx.ExecuteTxHash), tx.UpdatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update multisig transaction", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("multisig transaction '%s' not found", tx.TransactionID), nil)
	}
	return nil
}
