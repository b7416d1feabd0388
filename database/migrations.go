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
	"database/sql"

	migrate "github.com/rubenv/sql-migrate"
)

// MigrationSchema holds both the mirror tables and the migration ledger.
const MigrationSchema = "pledge"

// Migrations returns the mirror schema history, oldest first.
func Migrations() *migrate.MemoryMigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "0001_projects",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS pledge.projects (
						id SERIAL PRIMARY KEY,
						project_id TEXT NOT NULL UNIQUE,
						ngo_id TEXT NOT NULL,
						ngo_wallet TEXT NOT NULL,
						title TEXT NOT NULL,
						description TEXT,
						category TEXT,
						total_required NUMERIC NOT NULL,
						total_funded NUMERIC NOT NULL DEFAULT 0,
						escrow_address TEXT NOT NULL,
						multisig_address TEXT NOT NULL,
						on_chain_index BIGINT,
						active BOOLEAN NOT NULL DEFAULT TRUE,
						last_sync_tx_hash TEXT,
						last_synced_at TIMESTAMP,
						created_at TIMESTAMP NOT NULL DEFAULT NOW(),
						updated_at TIMESTAMP NOT NULL DEFAULT NOW()
					)`,
					`CREATE INDEX IF NOT EXISTS idx_projects_ngo_id ON pledge.projects (ngo_id)`,
				},
				Down: []string{`DROP TABLE IF EXISTS pledge.projects`},
			},
			{
				Id: "0002_milestones",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS pledge.milestones (
						project_id TEXT NOT NULL REFERENCES pledge.projects(project_id),
						idx INT NOT NULL,
						title TEXT,
						description TEXT,
						required_amount NUMERIC NOT NULL,
						funded_amount NUMERIC NOT NULL DEFAULT 0,
						local_status TEXT NOT NULL,
						ledger_state TEXT NOT NULL,
						proof_hash TEXT,
						proof_document TEXT,
						dispute_window_end TIMESTAMP,
						released BOOLEAN NOT NULL DEFAULT FALSE,
						submission_tx_hash TEXT,
						approval_tx_hash TEXT,
						release_tx_hash TEXT,
						completed_at TIMESTAMP,
						PRIMARY KEY (project_id, idx)
					)`,
				},
				Down: []string{`DROP TABLE IF EXISTS pledge.milestones`},
			},
			{
				Id: "0003_multisig",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS pledge.multisig_wallets (
						address TEXT PRIMARY KEY,
						owners TEXT[] NOT NULL,
						required_approvals BIGINT NOT NULL,
						synced_at TIMESTAMP NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS pledge.multisig_transactions (
						id SERIAL PRIMARY KEY,
						transaction_id TEXT NOT NULL UNIQUE,
						wallet_address TEXT NOT NULL,
						ledger_tx_id BIGINT,
						proposer TEXT NOT NULL,
						to_address TEXT NOT NULL,
						value NUMERIC NOT NULL,
						data TEXT,
						approvals TEXT[] NOT NULL DEFAULT '{}',
						required_approvals BIGINT NOT NULL,
						owner_count INT NOT NULL,
						executed BOOLEAN NOT NULL DEFAULT FALSE,
						propose_tx_hash TEXT,
						execute_tx_hash TEXT,
						created_at TIMESTAMP NOT NULL DEFAULT NOW(),
						updated_at TIMESTAMP NOT NULL DEFAULT NOW()
					)`,
					`CREATE INDEX IF NOT EXISTS idx_multisig_tx_wallet ON pledge.multisig_transactions (LOWER(wallet_address))`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS pledge.multisig_transactions`,
					`DROP TABLE IF EXISTS pledge.multisig_wallets`,
				},
			},
		},
	}
}

// Migrate applies (or rolls back) the mirror migrations and returns how many
// ran.
func Migrate(db *sql.DB, dir migrate.MigrationDirection) (int, error) {
	if _, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS ` + MigrationSchema); err != nil {
		return 0, err
	}
	migrate.SetSchema(MigrationSchema)
	return migrate.Exec(db, "postgres", Migrations(), dir)
}
