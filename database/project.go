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

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func emptyAsNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIndex(i *uint64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func mapWriteError(err error, entity string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s already exists", entity), err)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("failed to write %s", entity), err)
}

func (d *Datasource) CreateProject(ctx context.Context, p *model.Project) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pledge.projects (
			project_id, ngo_id, ngo_wallet, title, description, category, total_required, total_funded,
			escrow_address, multisig_address, on_chain_index, active, last_sync_tx_hash, last_synced_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, p.ProjectID, p.NGOID, p.NGOWallet, p.Title, p.Description, p.Category, p.TotalRequired, p.TotalFunded,
		p.EscrowAddress, p.MultisigAddress, nullIndex(p.OnChainIndex), p.Active, emptyAsNull(p.LastSyncTxHash), p.LastSyncedAt,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "project")
	}

	for i := range p.Milestones {
		if err := insertMilestone(ctx, tx, p.ProjectID, &p.Milestones[i]); err != nil {
			return mapWriteError(err, "milestone")
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to commit project", err)
	}
	return nil
}

func insertMilestone(ctx context.Context, db execer, projectID string, m *model.Milestone) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO pledge.milestones (
			project_id, idx, title, description, required_amount, funded_amount, local_status, ledger_state,
			proof_hash, proof_document, dispute_window_end, released, submission_tx_hash, approval_tx_hash,
			release_tx_hash, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, projectID, m.Index, m.Title, m.Description, m.RequiredAmount, m.FundedAmount, string(m.LocalStatus), string(m.LedgerState),
		nullString(m.ProofHash), nullString(m.ProofDocument), m.DisputeWindowEnd, m.Released,
		emptyAsNull(m.SubmissionTxHash), emptyAsNull(m.ApprovalTxHash), emptyAsNull(m.ReleaseTxHash), m.CompletedAt)
	return err
}

const projectColumns = `project_id, ngo_id, ngo_wallet, title, description, category, total_required, total_funded,
	escrow_address, multisig_address, on_chain_index, active, last_sync_tx_hash, last_synced_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	p := &model.Project{}
	var (
		description, category, lastSync sql.NullString
		index                           sql.NullInt64
		lastSynced                      sql.NullTime
	)
	err := row.Scan(&p.ProjectID, &p.NGOID, &p.NGOWallet, &p.Title, &description, &category, &p.TotalRequired, &p.TotalFunded,
		&p.EscrowAddress, &p.MultisigAddress, &index, &p.Active, &lastSync, &lastSynced, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Category = category.String
	p.LastSyncTxHash = lastSync.String
	if index.Valid {
		v := uint64(index.Int64)
		p.OnChainIndex = &v
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		p.LastSyncedAt = &t
	}
	return p, nil
}

// snapshotRead makes the project row and its milestones one consistent
// snapshot, so a reconciliation committed between the two reads is never seen
// half-applied.
var snapshotRead = &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}

func (d *Datasource) GetProject(ctx context.Context, id string) (*model.Project, error) {
	tx, err := d.Conn.BeginTx(ctx, snapshotRead)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM pledge.projects WHERE project_id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("project with ID '%s' not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve project", err)
	}

	p.Milestones, err = getMilestones(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to read project", err)
	}
	return p, nil
}

func getMilestones(ctx context.Context, tx *sql.Tx, projectID string) ([]model.Milestone, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT idx, title, description, required_amount, funded_amount, local_status, ledger_state, proof_hash,
			proof_document, dispute_window_end, released, submission_tx_hash, approval_tx_hash, release_tx_hash, completed_at
		FROM pledge.milestones
		WHERE project_id = $1
		ORDER BY idx ASC
	`, projectID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve milestones", err)
	}
	defer rows.Close()

	milestones := []model.Milestone{}
	for rows.Next() {
		var (
			m                             model.Milestone
			title, description            sql.NullString
			localStatus, ledgerState      string
			proofHash, proofDocument      sql.NullString
			submission, approval, release sql.NullString
			disputeWindowEnd, completedAt sql.NullTime
		)
		err := rows.Scan(&m.Index, &title, &description, &m.RequiredAmount, &m.FundedAmount, &localStatus, &ledgerState,
			&proofHash, &proofDocument, &disputeWindowEnd, &m.Released, &submission, &approval, &release, &completedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan milestone", err)
		}
		m.Title = title.String
		m.Description = description.String
		m.LocalStatus = model.LocalStatus(localStatus)
		m.LedgerState = model.LedgerState(ledgerState)
		if proofHash.Valid {
			m.ProofHash = &proofHash.String
		}
		if proofDocument.Valid {
			m.ProofDocument = &proofDocument.String
		}
		if disputeWindowEnd.Valid {
			m.DisputeWindowEnd = &disputeWindowEnd.Time
		}
		if completedAt.Valid {
			m.CompletedAt = &completedAt.Time
		}
		m.SubmissionTxHash = submission.String
		m.ApprovalTxHash = approval.String
		m.ReleaseTxHash = release.String
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "error occurred while iterating over milestones", err)
	}
	return milestones, nil
}

func (d *Datasource) ListProjects(ctx context.Context, ngoID string, limit, offset int) ([]*model.Project, error) {
	tx, err := d.Conn.BeginTx(ctx, snapshotRead)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rows *sql.Rows
	if ngoID == "" {
		rows, err = tx.QueryContext(ctx, `SELECT `+projectColumns+` FROM pledge.projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = tx.QueryContext(ctx, `SELECT `+projectColumns+` FROM pledge.projects WHERE ngo_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ngoID, limit, offset)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to list projects", err)
	}

	projects := []*model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan project", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "error occurred while iterating over projects", err)
	}
	rows.Close()

	for _, p := range projects {
		if p.Milestones, err = getMilestones(ctx, tx, p.ProjectID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to read projects", err)
	}
	return projects, nil
}

// UpdateProject rewrites the project row and every milestone row in one
// transaction.
func (d *Datasource) UpdateProject(ctx context.Context, p *model.Project) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE pledge.projects SET
			title = $2, description = $3, category = $4, total_funded = $5, on_chain_index = $6, active = $7,
			last_sync_tx_hash = $8, last_synced_at = $9, updated_at = $10
		WHERE project_id = $1
	`, p.ProjectID, p.Title, p.Description, p.Category, p.TotalFunded, nullIndex(p.OnChainIndex), p.Active,
		emptyAsNull(p.LastSyncTxHash), p.LastSyncedAt, p.UpdatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update project", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("project with ID '%s' not found", p.ProjectID), nil)
	}

	for i := range p.Milestones {
		m := &p.Milestones[i]
		_, err := tx.ExecContext(ctx, `
			UPDATE pledge.milestones SET
				funded_amount = $3, local_status = $4, ledger_state = $5, proof_hash = $6, proof_document = $7,
				dispute_window_end = $8, released = $9, submission_tx_hash = $10, approval_tx_hash = $11,
				release_tx_hash = $12, completed_at = $13
			WHERE project_id = $1 AND idx = $2
		`, p.ProjectID, m.Index, m.FundedAmount, string(m.LocalStatus), string(m.LedgerState), nullString(m.ProofHash),
			nullString(m.ProofDocument), m.DisputeWindowEnd, m.Released, emptyAsNull(m.SubmissionTxHash),
			emptyAsNull(m.ApprovalTxHash), emptyAsNull(m.ReleaseTxHash), m.CompletedAt)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update milestone", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to commit project update", err)
	}
	return nil
}
