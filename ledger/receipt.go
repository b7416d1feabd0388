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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidTxHash reports whether s looks like a transaction hash.
func ValidTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}

var errPending = errors.New("transaction not mined yet")

// VerifyReceipt waits up to timeout for txHash to be mined and returns its
// receipt. An unknown hash fails immediately with TRANSACTION_NOT_FOUND. The
// wait ends early when ctx is cancelled; ctx.Err() is returned in that case.
func (c *Client) VerifyReceipt(ctx context.Context, txHash string, timeout time.Duration) (*model.Receipt, error) {
	if !ValidTxHash(txHash) {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("%q is not a valid transaction hash", txHash), nil)
	}
	if c.backend == nil {
		return nil, apierror.NewAPIError(apierror.ErrLedgerUnavailable, "ledger backend is not configured", nil)
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	hash := common.HexToHash(txHash)
	var receipt *types.Receipt
	operation := func() error {
		r, err := c.backend.TransactionReceipt(waitCtx, hash)
		if err == nil {
			receipt = r
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return rpcFailure(waitCtx, "transactionReceipt", err)
		}

		_, _, err = c.backend.TransactionByHash(waitCtx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return backoff.Permanent(apierror.New(apierror.ErrNotFound, apierror.ReasonTransactionNotFound,
				fmt.Sprintf("transaction %s is unknown to the ledger", txHash), nil))
		}
		if err != nil {
			return rpcFailure(waitCtx, "transactionByHash", err)
		}
		return errPending
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), waitCtx))
	if err == nil {
		return toReceipt(txHash, receipt), nil
	}
	if _, ok := apierror.As(err); ok {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, apierror.NewAPIError(apierror.ErrLedgerUnavailable,
		fmt.Sprintf("transaction %s was not mined within %s", txHash, timeout), nil)
}

// rpcFailure stops the poll on an RPC error. Only a pending transaction keeps
// it going; an error caused by the wait ending is left to backoff.
func rpcFailure(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return backoff.Permanent(unavailable(op, err))
}

func toReceipt(txHash string, r *types.Receipt) *model.Receipt {
	out := &model.Receipt{
		TxHash:  txHash,
		Success: r.Status == types.ReceiptStatusSuccessful,
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	for _, l := range r.Logs {
		if l == nil {
			continue
		}
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Hex()
		}
		out.Logs = append(out.Logs, model.LogRecord{Address: l.Address.Hex(), Topics: topics, Data: l.Data})
	}
	return out
}
