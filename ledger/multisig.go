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
	"fmt"
	"math/big"
	"strings"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// ReadTransaction reads a wallet transaction by its ledger id. Value is in
// whole units and Data is 0x-prefixed hex.
func (c *Client) ReadTransaction(ctx context.Context, wallet string, txID uint64) (*model.OnChainTransaction, error) {
	out, err := c.call(ctx, walletABI, wallet, "getTransaction", new(big.Int).SetUint64(txID))
	if err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, decodeFailed("getTransaction", fmt.Errorf("expected 5 outputs, got %d", len(out)))
	}

	to, ok1 := out[0].(common.Address)
	value, ok2 := out[1].(*big.Int)
	data, ok3 := out[2].([]byte)
	executed, ok4 := out[3].(bool)
	approvals, ok5 := out[4].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return nil, decodeFailed("getTransaction", fmt.Errorf("unexpected output types %T", out))
	}

	return &model.OnChainTransaction{
		TxID:          txID,
		To:            to.Hex(),
		Value:         FromWei(value),
		Data:          hexutil.Encode(data),
		Executed:      executed,
		ApprovalCount: approvals.Uint64(),
	}, nil
}

// ReadTransactionCount returns how many transactions the wallet has seen.
func (c *Client) ReadTransactionCount(ctx context.Context, wallet string) (uint64, error) {
	return c.readUint(ctx, wallet, "transactionCount")
}

// ReadRequiredApprovals returns the wallet threshold M.
func (c *Client) ReadRequiredApprovals(ctx context.Context, wallet string) (uint64, error) {
	return c.readUint(ctx, wallet, "requiredApprovals")
}

func (c *Client) readUint(ctx context.Context, wallet, method string) (uint64, error) {
	out, err := c.call(ctx, walletABI, wallet, method)
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(*big.Int)
	if !ok || !v.IsUint64() {
		return 0, decodeFailed(method, fmt.Errorf("unexpected output %v", out[0]))
	}
	return v.Uint64(), nil
}

// ReadOwners returns the wallet owners as checksummed addresses.
func (c *Client) ReadOwners(ctx context.Context, wallet string) ([]string, error) {
	out, err := c.call(ctx, walletABI, wallet, "getOwners")
	if err != nil {
		return nil, err
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, decodeFailed("getOwners", fmt.Errorf("unexpected output %T", out[0]))
	}
	owners := make([]string, len(addrs))
	for i, a := range addrs {
		owners[i] = a.Hex()
	}
	return owners, nil
}

// IsApprovedBy reports whether owner has approved txID on the ledger.
func (c *Client) IsApprovedBy(ctx context.Context, wallet string, txID uint64, owner string) (bool, error) {
	addr, err := parseAddress("owner", owner)
	if err != nil {
		return false, err
	}
	out, err := c.call(ctx, walletABI, wallet, "isApprovedBy", new(big.Int).SetUint64(txID), addr)
	if err != nil {
		return false, err
	}
	approved, ok := out[0].(bool)
	if !ok {
		return false, decodeFailed("isApprovedBy", fmt.Errorf("unexpected output %T", out[0]))
	}
	return approved, nil
}

// ReadBalance returns the wallet's native balance in base units.
func (c *Client) ReadBalance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	if c.backend == nil {
		return decimal.Zero, apierror.NewAPIError(apierror.ErrLedgerUnavailable, "ledger backend is not configured", nil)
	}
	addr, err := parseAddress("wallet", wallet)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return decimal.Zero, ctxErr
		}
		return decimal.Zero, unavailable("balanceAt", err)
	}
	return FromWei(wei), nil
}

// ProposedTransactionID finds the wallet-assigned id in a mined proposal
// receipt.
func (c *Client) ProposedTransactionID(wallet string, receipt *model.Receipt) (uint64, bool) {
	if receipt == nil {
		return 0, false
	}
	topic := walletABI.Events["TransactionProposed"].ID.Hex()
	for _, l := range receipt.Logs {
		if !model.SameAddress(l.Address, wallet) || len(l.Topics) < 2 {
			continue
		}
		if !strings.EqualFold(l.Topics[0], topic) {
			continue
		}
		id := new(big.Int).SetBytes(common.HexToHash(l.Topics[1]).Bytes())
		if !id.IsUint64() {
			return 0, false
		}
		return id.Uint64(), true
	}
	return 0, false
}

// EncodePropose builds proposeTransaction. data is 0x-prefixed hex; empty
// means a plain value transfer.
func (c *Client) EncodePropose(wallet, to string, value decimal.Decimal, data string) (model.UnsignedTx, error) {
	if _, err := parseAddress("wallet", wallet); err != nil {
		return model.UnsignedTx{}, err
	}
	recipient, err := parseAddress("to", to)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	wei, err := ToWei(value)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	payload, err := decodeCallData(data)
	if err != nil {
		return model.UnsignedTx{}, err
	}

	input, err := walletABI.Pack("proposeTransaction", recipient, wei, payload)
	if err != nil {
		return model.UnsignedTx{}, apierror.NewAPIError(apierror.ErrValidation, "cannot encode proposeTransaction", err.Error())
	}
	return encodeTx(wallet, input, nil), nil
}

// EncodeApprove builds approveTransaction for one owner to sign.
func (c *Client) EncodeApprove(wallet string, txID uint64) (model.UnsignedTx, error) {
	return c.encodeWalletCall(wallet, "approveTransaction", txID)
}

// EncodeExecute builds executeTransaction. The ledger rejects it until the
// threshold is met.
func (c *Client) EncodeExecute(wallet string, txID uint64) (model.UnsignedTx, error) {
	return c.encodeWalletCall(wallet, "executeTransaction", txID)
}

func (c *Client) encodeWalletCall(wallet, method string, txID uint64) (model.UnsignedTx, error) {
	if _, err := parseAddress("wallet", wallet); err != nil {
		return model.UnsignedTx{}, err
	}
	input, err := walletABI.Pack(method, new(big.Int).SetUint64(txID))
	if err != nil {
		return model.UnsignedTx{}, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("cannot encode %s", method), err.Error())
	}
	return encodeTx(wallet, input, nil), nil
}

func decodeCallData(data string) ([]byte, error) {
	if data == "" || data == "0x" {
		return []byte{}, nil
	}
	b, err := hexutil.Decode(data)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "data must be 0x-prefixed hex", nil)
	}
	return b, nil
}
