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
	"time"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Gateway is everything the engines need from the escrow and wallet
// contracts. Reads are idempotent; Encode* never touch the network.
type Gateway interface {
	ReadProject(ctx context.Context, escrow string, index uint64) (*model.OnChainProject, error)
	ReadMilestone(ctx context.Context, escrow string, projectIndex uint64, milestoneIndex int) (*model.OnChainMilestone, error)
	ResolveProjectIndex(ctx context.Context, escrow, projectID string) (uint64, error)
	VerifyReceipt(ctx context.Context, txHash string, timeout time.Duration) (*model.Receipt, error)
	CurrentBlock(ctx context.Context) (uint64, error)

	EncodeCreateProject(escrow, projectID, ngoWallet, multisig string, amounts []decimal.Decimal) (model.UnsignedTx, error)
	EncodeDeposit(escrow string, projectIndex uint64, amount decimal.Decimal) (model.UnsignedTx, error)
	EncodeSubmitMilestone(escrow string, projectIndex uint64, milestoneIndex int, proofHash string) (model.UnsignedTx, error)
	EncodeApproveMilestone(escrow string, projectIndex uint64, milestoneIndex int) (model.UnsignedTx, error)
	EncodeReleaseFunds(escrow string, projectIndex uint64, milestoneIndex int) (model.UnsignedTx, error)

	ReadTransaction(ctx context.Context, wallet string, txID uint64) (*model.OnChainTransaction, error)
	ReadTransactionCount(ctx context.Context, wallet string) (uint64, error)
	ReadOwners(ctx context.Context, wallet string) ([]string, error)
	ReadRequiredApprovals(ctx context.Context, wallet string) (uint64, error)
	IsApprovedBy(ctx context.Context, wallet string, txID uint64, owner string) (bool, error)
	ReadBalance(ctx context.Context, wallet string) (decimal.Decimal, error)
	QueryWalletEvents(ctx context.Context, wallet string, fromBlock, toBlock uint64) (*model.AuditTrail, error)
	ProposedTransactionID(wallet string, receipt *model.Receipt) (uint64, bool)

	EncodePropose(wallet, to string, value decimal.Decimal, data string) (model.UnsignedTx, error)
	EncodeApprove(wallet string, txID uint64) (model.UnsignedTx, error)
	EncodeExecute(wallet string, txID uint64) (model.UnsignedTx, error)
}

// Backend is the slice of an RPC client the gateway uses. *ethclient.Client
// satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

const defaultPollInterval = time.Second

// Client implements Gateway over a Backend. A Client with a nil backend can
// still encode.
type Client struct {
	backend      Backend
	pollInterval time.Duration
}

var _ Gateway = (*Client)(nil)

// NewClient wraps backend. A nil backend gives a Client that only encodes;
// every read reports the ledger as unavailable.
func NewClient(backend Backend) *Client {
	return &Client{backend: backend, pollInterval: defaultPollInterval}
}

// WithPollInterval sets how often VerifyReceipt asks for a receipt.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	if d > 0 {
		c.pollInterval = d
	}
	return c
}

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, unavailable("dial", err)
	}
	return NewClient(ec), nil
}

func unavailable(op string, err error) error {
	logrus.WithError(err).Warnf("ledger %s failed", op)
	return apierror.NewAPIError(apierror.ErrLedgerUnavailable, fmt.Sprintf("ledger %s failed: %v", op, err), nil)
}

func decodeFailed(method string, err error) error {
	return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("unexpected %s response from ledger", method), err.Error())
}

func invalidAddress(field, value string) error {
	return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("%s %q is not a valid ledger address", field, value), nil)
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, invalidAddress(field, value)
	}
	return common.HexToAddress(value), nil
}

// call packs method, executes it as a read against contract and unpacks the
// outputs.
func (c *Client) call(ctx context.Context, contract abi.ABI, address, method string, args ...interface{}) ([]interface{}, error) {
	if c.backend == nil {
		return nil, apierror.NewAPIError(apierror.ErrLedgerUnavailable, "ledger backend is not configured", nil)
	}
	to, err := parseAddress("contract", address)
	if err != nil {
		return nil, err
	}
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("cannot encode %s: %v", method, err), nil)
	}

	output, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, unavailable(method, err)
	}

	values, err := contract.Unpack(method, output)
	if err != nil {
		return nil, decodeFailed(method, err)
	}
	return values, nil
}

// CurrentBlock returns the head block number.
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	if c.backend == nil {
		return 0, apierror.NewAPIError(apierror.ErrLedgerUnavailable, "ledger backend is not configured", nil)
	}
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, unavailable("blockNumber", err)
	}
	return n, nil
}

// VerifyChain fails when the endpoint serves a chain other than expected.
// Zero skips the check.
func (c *Client) VerifyChain(ctx context.Context, expected int64) error {
	if expected == 0 {
		return nil
	}
	if c.backend == nil {
		return apierror.NewAPIError(apierror.ErrLedgerUnavailable, "ledger backend is not configured", nil)
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return unavailable("chainId", err)
	}
	if !id.IsInt64() || id.Int64() != expected {
		return fmt.Errorf("ledger endpoint serves chain %s, configured chain is %d", id, expected)
	}
	return nil
}

func unixOrNil(v *big.Int) *time.Time {
	if v == nil || v.Sign() == 0 {
		return nil
	}
	t := time.Unix(v.Int64(), 0).UTC()
	return &t
}

func encodeTx(to string, data []byte, value *big.Int) model.UnsignedTx {
	tx := model.UnsignedTx{To: common.HexToAddress(to).Hex(), Data: hexutil.Encode(data)}
	if value != nil {
		tx.Value = value.String()
	}
	return tx
}
