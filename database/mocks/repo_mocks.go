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
package mocks

import (
	"context"

	"github.com/blnkfinance/pledge/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Project methods

func (m *MockDataSource) CreateProject(ctx context.Context, p *model.Project) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockDataSource) GetProject(ctx context.Context, id string) (*model.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Project), args.Error(1)
}

func (m *MockDataSource) ListProjects(ctx context.Context, ngoID string, limit, offset int) ([]*model.Project, error) {
	args := m.Called(ctx, ngoID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Project), args.Error(1)
}

func (m *MockDataSource) UpdateProject(ctx context.Context, p *model.Project) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

// Multisig methods

func (m *MockDataSource) SaveWallet(ctx context.Context, w *model.MultisigWallet) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockDataSource) GetWallet(ctx context.Context, address string) (*model.MultisigWallet, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MultisigWallet), args.Error(1)
}

func (m *MockDataSource) CreateMultisigTransaction(ctx context.Context, tx *model.MultisigTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockDataSource) GetMultisigTransaction(ctx context.Context, wallet, id string) (*model.MultisigTransaction, error) {
	args := m.Called(ctx, wallet, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MultisigTransaction), args.Error(1)
}

func (m *MockDataSource) UpdateMultisigTransaction(ctx context.Context, tx *model.MultisigTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockDataSource) Close() error {
	args := m.Called()
	return args.Error(0)
}
