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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each entity as one JSON document, so every write is a
// single atomic SET.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ IDataSource = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) projectKey(id string) string {
	return fmt.Sprintf("%s:project:%s", s.prefix, id)
}

func (s *RedisStore) projectIndexKey(ngoID string) string {
	if ngoID == "" {
		return s.prefix + ":projects"
	}
	return fmt.Sprintf("%s:ngo:%s:projects", s.prefix, ngoID)
}

func (s *RedisStore) walletKey(address string) string {
	return fmt.Sprintf("%s:wallet:%s", s.prefix, strings.ToLower(address))
}

func (s *RedisStore) multisigKey(wallet, id string) string {
	return fmt.Sprintf("%s:mtx:%s:%s", s.prefix, strings.ToLower(wallet), id)
}

func (s *RedisStore) CreateProject(ctx context.Context, p *model.Project) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to encode project", err)
	}
	created, err := s.client.SetNX(ctx, s.projectKey(p.ProjectID), doc, 0).Result()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to write project", err)
	}
	if !created {
		return apierror.NewAPIError(apierror.ErrConflict, "project already exists", nil)
	}

	score := float64(p.CreatedAt.UnixNano())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.projectIndexKey(""), redis.Z{Score: score, Member: p.ProjectID})
		pipe.ZAdd(ctx, s.projectIndexKey(p.NGOID), redis.Z{Score: score, Member: p.ProjectID})
		return nil
	})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to index project", err)
	}
	return nil
}

func (s *RedisStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	raw, err := s.client.Get(ctx, s.projectKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("project with ID '%s' not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve project", err)
	}
	p := &model.Project{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to decode project", err)
	}
	return p, nil
}

func (s *RedisStore) ListProjects(ctx context.Context, ngoID string, limit, offset int) ([]*model.Project, error) {
	if limit <= 0 {
		return []*model.Project{}, nil
	}
	ids, err := s.client.ZRevRange(ctx, s.projectIndexKey(ngoID), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to list projects", err)
	}
	projects := []*model.Project{}
	if len(ids) == 0 {
		return projects, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.projectKey(id)
	}
	docs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to list projects", err)
	}
	for _, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			continue
		}
		p := &model.Project{}
		if err := json.Unmarshal([]byte(raw), p); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to decode project", err)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// UpdateProject replaces the document only if it already exists.
func (s *RedisStore) UpdateProject(ctx context.Context, p *model.Project) error {
	return s.replace(ctx, s.projectKey(p.ProjectID), p, "project", p.ProjectID)
}

func (s *RedisStore) replace(ctx context.Context, key string, v interface{}, entity, id string) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("failed to encode %s", entity), err)
	}
	err = s.client.SetArgs(ctx, key, doc, redis.SetArgs{Mode: "XX"}).Err()
	if errors.Is(err, redis.Nil) {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("%s '%s' not found", entity, id), nil)
	}
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("failed to update %s", entity), err)
	}
	return nil
}

func (s *RedisStore) SaveWallet(ctx context.Context, w *model.MultisigWallet) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to encode multisig wallet", err)
	}
	if err := s.client.Set(ctx, s.walletKey(w.Address), doc, 0).Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to save multisig wallet", err)
	}
	return nil
}

func (s *RedisStore) GetWallet(ctx context.Context, address string) (*model.MultisigWallet, error) {
	raw, err := s.client.Get(ctx, s.walletKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("multisig wallet '%s' not found", address), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve multisig wallet", err)
	}
	w := &model.MultisigWallet{}
	if err := json.Unmarshal(raw, w); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to decode multisig wallet", err)
	}
	return w, nil
}

func (s *RedisStore) CreateMultisigTransaction(ctx context.Context, tx *model.MultisigTransaction) error {
	doc, err := json.Marshal(tx)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to encode multisig transaction", err)
	}
	created, err := s.client.SetNX(ctx, s.multisigKey(tx.WalletAddress, tx.TransactionID), doc, 0).Result()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to write multisig transaction", err)
	}
	if !created {
		return apierror.NewAPIError(apierror.ErrConflict, "multisig transaction already exists", nil)
	}
	return nil
}

func (s *RedisStore) GetMultisigTransaction(ctx context.Context, wallet, id string) (*model.MultisigTransaction, error) {
	raw, err := s.client.Get(ctx, s.multisigKey(wallet, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("multisig transaction '%s' not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve multisig transaction", err)
	}
	tx := &model.MultisigTransaction{}
	if err := json.Unmarshal(raw, tx); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to decode multisig transaction", err)
	}
	return tx, nil
}

func (s *RedisStore) UpdateMultisigTransaction(ctx context.Context, tx *model.MultisigTransaction) error {
	return s.replace(ctx, s.multisigKey(tx.WalletAddress, tx.TransactionID), tx, "multisig transaction", tx.TransactionID)
}
