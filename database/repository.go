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

	"github.com/blnkfinance/pledge/model"
)

// IDataSource is the mirror store. Every write replaces a whole entity so
// readers never observe a half-applied update.
type IDataSource interface {
	project  // Project and milestone mirror
	multisig // Treasury wallets and their proposals
	Close() error
}

type project interface {
	CreateProject(ctx context.Context, p *model.Project) error                                   // Inserts a new project with its milestones
	GetProject(ctx context.Context, id string) (*model.Project, error)                           // Retrieves a project with milestones in index order
	ListProjects(ctx context.Context, ngoID string, limit, offset int) ([]*model.Project, error) // Lists projects, newest first; empty ngoID lists all
	UpdateProject(ctx context.Context, p *model.Project) error                                   // Atomically replaces the project and all its milestones
}

type multisig interface {
	SaveWallet(ctx context.Context, w *model.MultisigWallet) error                                   // Upserts a wallet's owner set
	GetWallet(ctx context.Context, address string) (*model.MultisigWallet, error)                    // Retrieves a wallet by address
	CreateMultisigTransaction(ctx context.Context, tx *model.MultisigTransaction) error              // Inserts a proposal
	GetMultisigTransaction(ctx context.Context, wallet, id string) (*model.MultisigTransaction, error) // Retrieves a proposal owned by wallet
	UpdateMultisigTransaction(ctx context.Context, tx *model.MultisigTransaction) error              // Atomically replaces a proposal
}
