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

	"github.com/blnkfinance/pledge/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// GetWalletInfo reads a wallet's owners, threshold, proposal count and balance
// straight from the ledger.
func (p *Pledge) GetWalletInfo(ctx context.Context, wallet string) (*model.WalletInfo, error) {
	ctx, span := tracer.Start(ctx, "GetWalletInfo")
	defer span.End()

	wallet, err := p.walletOrDefault(wallet)
	if err != nil {
		return nil, err
	}

	var (
		w       *model.MultisigWallet
		count   uint64
		balance decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		w, err = p.loadWallet(gctx, wallet)
		return err
	})
	g.Go(func() error {
		var err error
		count, err = p.gateway.ReadTransactionCount(gctx, wallet)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = p.gateway.ReadBalance(gctx, wallet)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, logAndRecordError(span, "failed to read wallet: ", err)
	}

	return &model.WalletInfo{
		Address:           wallet,
		Owners:            w.Owners,
		OwnerCount:        w.OwnerCount(),
		RequiredApprovals: w.RequiredApprovals,
		TransactionCount:  count,
		Balance:           balance,
	}, nil
}

func auditCacheKey(wallet string, from, to uint64) string {
	return fmt.Sprintf("audit:%s:%d:%d", model.NormalizeAddress(wallet), from, to)
}

// GetAuditTrail replays the wallet's event log over the last lookback blocks
// (the configured default when zero). It is a read-only projection and never
// touches the mirror.
func (p *Pledge) GetAuditTrail(ctx context.Context, wallet string, lookback uint64) (*model.AuditTrail, error) {
	ctx, span := tracer.Start(ctx, "GetAuditTrail")
	defer span.End()

	wallet, err := p.walletOrDefault(wallet)
	if err != nil {
		return nil, err
	}
	if lookback == 0 {
		lookback = p.opts.AuditLookbackBlocks
	}

	head, err := p.gateway.CurrentBlock(ctx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read current block: ", err)
	}
	from := uint64(0)
	if head > lookback {
		from = head - lookback
	}

	key := auditCacheKey(wallet, from, head)
	if p.opts.Cache != nil {
		cached := &model.AuditTrail{}
		found, err := p.opts.Cache.Get(ctx, key, cached)
		if err != nil {
			logrus.Warnf("audit cache read failed: %v", err)
		} else if found {
			return cached, nil
		}
	}

	trail, err := p.gateway.QueryWalletEvents(ctx, wallet, from, head)
	if err != nil {
		return nil, logAndRecordError(span, "failed to query wallet events: ", err)
	}

	if p.opts.Cache != nil {
		if err := p.opts.Cache.Set(ctx, key, trail, p.opts.AuditCacheTTL); err != nil {
			logrus.Warnf("audit cache write failed: %v", err)
		}
	}
	return trail, nil
}
