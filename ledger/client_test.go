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
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	escrowAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	walletAddr = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	ngoAddr    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	ownerA     = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	ownerB     = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

// fakeBackend answers contract reads from canned ABI-packed outputs.
type fakeBackend struct {
	mu        sync.Mutex
	outputs   map[string][]byte
	callErr   error
	receipts  map[common.Hash]*types.Receipt
	pending   map[common.Hash]bool
	logs      []types.Log
	block     uint64
	balance   *big.Int
	chainID   int64
	rpcErr    error
	rpcCalls  int
	lastQuery ethereum.FilterQuery
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		outputs:  map[string][]byte{},
		receipts: map[common.Hash]*types.Receipt{},
		pending:  map[common.Hash]bool{},
	}
}

func (f *fakeBackend) respond(t *testing.T, contract abi.ABI, method string, values ...interface{}) {
	t.Helper()
	packed, err := contract.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	f.mu.Lock()
	f.outputs[method] = packed
	f.mu.Unlock()
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	method, err := escrowABI.MethodById(call.Data[:4])
	if err != nil {
		if method, err = walletABI.MethodById(call.Data[:4]); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.outputs[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rpcCalls++
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending[hash] {
		return types.NewTx(&types.LegacyTx{}), true, nil
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.lastQuery = q
	return f.logs, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return f.block, nil }

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(f.chainID), nil
}

func (f *fakeBackend) mine(hash common.Hash, r *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = r
}

func eth(s string) *big.Int {
	v, err := ToWei(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return v
}

func TestToWei(t *testing.T) {
	v, err := ToWei(decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", v.String())

	v, err = ToWei(decimal.RequireFromString("0.0000000000000000019"))
	require.NoError(t, err)
	assert.Equal(t, "1", v.String(), "sub-wei remainder is truncated toward zero")

	_, err = ToWei(decimal.RequireFromString("-1"))
	assert.Equal(t, apierror.ErrValidation, apierror.CodeOf(err))

	assert.True(t, FromWei(big.NewInt(300000000000000000)).Equal(decimal.RequireFromString("0.3")))
	assert.True(t, FromWei(nil).IsZero())
}

func TestEncodeSubmitMilestone(t *testing.T) {
	c := NewClient(nil)

	tx, err := c.EncodeSubmitMilestone(escrowAddr, 3, 0, "Qm123")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(escrowAddr).Hex(), tx.To)
	assert.Empty(t, tx.Value)

	data, err := hexutil.Decode(tx.Data)
	require.NoError(t, err)
	method, err := escrowABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "submitMilestone", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(3), args[0].(*big.Int).Int64())
	assert.Equal(t, int64(0), args[1].(*big.Int).Int64())
	assert.Equal(t, "Qm123", args[2])
}

func TestEncodeIsDeterministic(t *testing.T) {
	c := NewClient(nil)
	a, err := c.EncodeReleaseFunds(escrowAddr, 1, 2)
	require.NoError(t, err)
	b, err := c.EncodeReleaseFunds(escrowAddr, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	approve, err := c.EncodeApproveMilestone(escrowAddr, 1, 2)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, approve.Data)
}

func TestEncodeCreateProject(t *testing.T) {
	c := NewClient(nil)
	amounts := []decimal.Decimal{
		decimal.RequireFromString("0.5"),
		decimal.RequireFromString("0.3"),
		decimal.RequireFromString("0.2"),
	}

	tx, err := c.EncodeCreateProject(escrowAddr, "prj_1", ngoAddr, walletAddr, amounts)
	require.NoError(t, err)

	data, err := hexutil.Decode(tx.Data)
	require.NoError(t, err)
	args, err := escrowABI.Methods["createProject"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, "prj_1", args[0])
	assert.Equal(t, common.HexToAddress(ngoAddr), args[1])
	assert.Equal(t, common.HexToAddress(walletAddr), args[2])
	amountsOut := args[3].([]*big.Int)
	require.Len(t, amountsOut, 3)
	for i, want := range []string{"0.5", "0.3", "0.2"} {
		assert.Zero(t, eth(want).Cmp(amountsOut[i]))
	}

	_, err = c.EncodeCreateProject(escrowAddr, "prj_1", "not-an-address", walletAddr, amounts)
	assert.Equal(t, apierror.ErrValidation, apierror.CodeOf(err))
}

func TestEncodeDeposit(t *testing.T) {
	c := NewClient(nil)
	tx, err := c.EncodeDeposit(escrowAddr, 4, decimal.RequireFromString("1.25"))
	require.NoError(t, err)
	assert.Equal(t, "1250000000000000000", tx.Value)

	_, err = c.EncodeDeposit(escrowAddr, 4, decimal.Zero)
	assert.Equal(t, apierror.ErrValidation, apierror.CodeOf(err))
}

func TestReadProject(t *testing.T) {
	backend := newFakeBackend()
	backend.respond(t, escrowABI, "getProject",
		common.HexToAddress(ngoAddr), "prj_1", common.HexToAddress(walletAddr), eth("0.75"), big.NewInt(3), true)

	p, err := NewClient(backend).ReadProject(context.Background(), escrowAddr, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Index)
	assert.Equal(t, "prj_1", p.ProjectID)
	assert.Equal(t, common.HexToAddress(ngoAddr).Hex(), p.NGOAddress)
	assert.True(t, p.TotalFunded.Equal(decimal.RequireFromString("0.75")))
	assert.Equal(t, uint64(3), p.MilestoneCount)
	assert.True(t, p.Active)
}

func TestReadProject_ZeroIndex(t *testing.T) {
	_, err := NewClient(newFakeBackend()).ReadProject(context.Background(), escrowAddr, 0)
	assert.True(t, apierror.Is(err, apierror.ReasonProjectNotOnLedger))
}

func TestReadMilestone(t *testing.T) {
	backend := newFakeBackend()
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backend.respond(t, escrowABI, "getMilestone", milestoneTuple{
		Amount:           eth("0.5"),
		FundedAmount:     eth("0.5"),
		State:            2,
		ProofHash:        "Qm123",
		SubmissionTime:   big.NewInt(end.Add(-48 * time.Hour).Unix()),
		ApprovalTime:     big.NewInt(end.Add(-24 * time.Hour).Unix()),
		DisputeWindowEnd: big.NewInt(end.Unix()),
		Released:         false,
	})

	m, err := NewClient(backend).ReadMilestone(context.Background(), escrowAddr, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerStateApproved, m.State)
	assert.Equal(t, "Qm123", m.ProofHash)
	require.NotNil(t, m.DisputeWindowEnd)
	assert.True(t, end.Equal(*m.DisputeWindowEnd))
	assert.True(t, m.Amount.Equal(decimal.RequireFromString("0.5")))
	assert.False(t, m.Released)
}

func TestReadMilestone_UnsetTimesAreNil(t *testing.T) {
	backend := newFakeBackend()
	backend.respond(t, escrowABI, "getMilestone", milestoneTuple{
		Amount: eth("0.2"), FundedAmount: big.NewInt(0),
		SubmissionTime: big.NewInt(0), ApprovalTime: big.NewInt(0), DisputeWindowEnd: big.NewInt(0),
	})

	m, err := NewClient(backend).ReadMilestone(context.Background(), escrowAddr, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerStatePending, m.State)
	assert.Nil(t, m.SubmissionTime)
	assert.Nil(t, m.DisputeWindowEnd)
}

func TestResolveProjectIndex(t *testing.T) {
	backend := newFakeBackend()
	backend.respond(t, escrowABI, "getProjectByProjectId", big.NewInt(0))

	idx, err := NewClient(backend).ResolveProjectIndex(context.Background(), escrowAddr, "prj_missing")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)

	backend.respond(t, escrowABI, "getProjectByProjectId", big.NewInt(7))
	idx, err = NewClient(backend).ResolveProjectIndex(context.Background(), escrowAddr, "prj_1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), idx)
}

func TestReadFailureIsLedgerUnavailable(t *testing.T) {
	backend := newFakeBackend()
	backend.callErr = errors.New("connection refused")

	_, err := NewClient(backend).ReadProject(context.Background(), escrowAddr, 1)
	assert.Equal(t, apierror.ErrLedgerUnavailable, apierror.CodeOf(err))
	assert.True(t, apierror.Retryable(err))

	_, err = NewClient(nil).ReadOwners(context.Background(), walletAddr)
	assert.Equal(t, apierror.ErrLedgerUnavailable, apierror.CodeOf(err))
}

func TestWalletReads(t *testing.T) {
	backend := newFakeBackend()
	backend.respond(t, walletABI, "getOwners", []common.Address{common.HexToAddress(ownerA), common.HexToAddress(ownerB)})
	backend.respond(t, walletABI, "requiredApprovals", big.NewInt(2))
	backend.respond(t, walletABI, "transactionCount", big.NewInt(5))
	backend.respond(t, walletABI, "isApprovedBy", true)
	backend.respond(t, walletABI, "getTransaction",
		common.HexToAddress(ngoAddr), eth("0.1"), []byte{}, false, big.NewInt(1))
	backend.balance = eth("2")
	c := NewClient(backend)
	ctx := context.Background()

	owners, err := c.ReadOwners(ctx, walletAddr)
	require.NoError(t, err)
	assert.Equal(t, []string{common.HexToAddress(ownerA).Hex(), common.HexToAddress(ownerB).Hex()}, owners)

	required, err := c.ReadRequiredApprovals(ctx, walletAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), required)

	count, err := c.ReadTransactionCount(ctx, walletAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)

	approved, err := c.IsApprovedBy(ctx, walletAddr, 4, ownerA)
	require.NoError(t, err)
	assert.True(t, approved)

	tx, err := c.ReadTransaction(ctx, walletAddr, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), tx.TxID)
	assert.Equal(t, uint64(1), tx.ApprovalCount)
	assert.False(t, tx.Executed)
	assert.Equal(t, "0x", tx.Data)

	balance, err := c.ReadBalance(ctx, walletAddr)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(2)))
}

func TestEncodeWalletCalls(t *testing.T) {
	c := NewClient(nil)

	propose, err := c.EncodePropose(walletAddr, ngoAddr, decimal.RequireFromString("0.1"), "")
	require.NoError(t, err)
	data, _ := hexutil.Decode(propose.Data)
	args, err := walletABI.Methods["proposeTransaction"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(ngoAddr), args[0])
	assert.Zero(t, eth("0.1").Cmp(args[1].(*big.Int)))

	_, err = c.EncodePropose(walletAddr, ngoAddr, decimal.NewFromInt(1), "zz")
	assert.Equal(t, apierror.ErrValidation, apierror.CodeOf(err))

	exec, err := c.EncodeExecute(walletAddr, 9)
	require.NoError(t, err)
	data, _ = hexutil.Decode(exec.Data)
	method, err := walletABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "executeTransaction", method.Name)
}

func proposedLog(t *testing.T, txID int64, proposer string, block uint64) *types.Log {
	t.Helper()
	ev := walletABI.Events["TransactionProposed"]
	data, err := ev.Inputs.NonIndexed().Pack(common.HexToAddress(ngoAddr), eth("0.1"), []byte{})
	require.NoError(t, err)
	return &types.Log{
		Address:     common.HexToAddress(walletAddr),
		Topics:      []common.Hash{ev.ID, common.BigToHash(big.NewInt(txID)), common.BytesToHash(common.HexToAddress(proposer).Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash("0xaa"),
	}
}

func TestVerifyReceipt_Success(t *testing.T) {
	backend := newFakeBackend()
	hash := common.HexToHash("0x01")
	backend.mine(hash, &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(42),
		GasUsed:     21000,
		Logs:        []*types.Log{proposedLog(t, 3, ownerA, 42)},
	})
	c := NewClient(backend).WithPollInterval(5 * time.Millisecond)

	r, err := c.VerifyReceipt(context.Background(), hash.Hex(), time.Second)
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, uint64(42), r.BlockNumber)
	assert.Equal(t, uint64(21000), r.GasUsed)

	id, ok := c.ProposedTransactionID(walletAddr, r)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), id)

	_, ok = c.ProposedTransactionID(ownerB, r)
	assert.False(t, ok)
}

func TestVerifyReceipt_Reverted(t *testing.T) {
	backend := newFakeBackend()
	hash := common.HexToHash("0x02")
	backend.mine(hash, &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(7)})

	r, err := NewClient(backend).VerifyReceipt(context.Background(), hash.Hex(), time.Second)
	require.NoError(t, err)
	assert.False(t, r.Success)
}

func TestVerifyReceipt_UnknownHash(t *testing.T) {
	_, err := NewClient(newFakeBackend()).VerifyReceipt(context.Background(), common.HexToHash("0x03").Hex(), time.Second)
	assert.True(t, apierror.Is(err, apierror.ReasonTransactionNotFound))
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
}

func TestVerifyReceipt_InvalidHash(t *testing.T) {
	_, err := NewClient(newFakeBackend()).VerifyReceipt(context.Background(), "0x1234", time.Second)
	assert.Equal(t, apierror.ErrValidation, apierror.CodeOf(err))
}

func TestVerifyReceipt_WaitsForMining(t *testing.T) {
	backend := newFakeBackend()
	hash := common.HexToHash("0x04")
	backend.pending[hash] = true
	c := NewClient(backend).WithPollInterval(5 * time.Millisecond)

	go func() {
		time.Sleep(30 * time.Millisecond)
		backend.mine(hash, &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(9)})
	}()

	r, err := c.VerifyReceipt(context.Background(), hash.Hex(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), r.BlockNumber)
}

func TestVerifyReceipt_Timeout(t *testing.T) {
	backend := newFakeBackend()
	hash := common.HexToHash("0x05")
	backend.pending[hash] = true

	_, err := NewClient(backend).WithPollInterval(5*time.Millisecond).VerifyReceipt(context.Background(), hash.Hex(), 40*time.Millisecond)
	assert.Equal(t, apierror.ErrLedgerUnavailable, apierror.CodeOf(err))
}

func TestVerifyReceipt_Cancelled(t *testing.T) {
	backend := newFakeBackend()
	hash := common.HexToHash("0x06")
	backend.pending[hash] = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(backend).WithPollInterval(5*time.Millisecond).VerifyReceipt(ctx, hash.Hex(), time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyReceipt_RPCFailureIsNotRetried(t *testing.T) {
	backend := newFakeBackend()
	backend.rpcErr = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
	c := NewClient(backend).WithPollInterval(5 * time.Millisecond)

	started := time.Now()
	_, err := c.VerifyReceipt(context.Background(), common.HexToHash("0x07").Hex(), 2*time.Second)
	assert.Equal(t, apierror.ErrLedgerUnavailable, apierror.CodeOf(err))
	assert.Less(t, time.Since(started), time.Second)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 1, backend.rpcCalls)
}

func TestQueryWalletEvents(t *testing.T) {
	backend := newFakeBackend()

	approvedEv := walletABI.Events["TransactionApproved"]
	approvedData, err := approvedEv.Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(2))
	require.NoError(t, err)

	depositEv := walletABI.Events["Deposit"]
	depositData, err := depositEv.Inputs.NonIndexed().Pack(eth("1"), eth("3"))
	require.NoError(t, err)

	backend.logs = []types.Log{
		*proposedLog(t, 0, ownerA, 100),
		{
			Address:     common.HexToAddress(walletAddr),
			Topics:      []common.Hash{approvedEv.ID, common.BigToHash(big.NewInt(0)), common.BytesToHash(common.HexToAddress(ownerB).Bytes())},
			Data:        approvedData,
			BlockNumber: 101,
		},
		{
			Address:     common.HexToAddress(walletAddr),
			Topics:      []common.Hash{depositEv.ID, common.BytesToHash(common.HexToAddress(ngoAddr).Bytes())},
			Data:        depositData,
			BlockNumber: 99,
		},
		{
			Address: common.HexToAddress(walletAddr),
			Topics:  []common.Hash{approvedEv.ID},
			Data:    []byte{0x01},
		},
	}

	trail, err := NewClient(backend).QueryWalletEvents(context.Background(), walletAddr, 90, 110)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), backend.lastQuery.FromBlock.Uint64())

	require.Len(t, trail.Proposed, 1)
	assert.Equal(t, common.HexToAddress(ownerA).Hex(), trail.Proposed[0].Proposer)
	assert.True(t, trail.Proposed[0].Value.Equal(decimal.RequireFromString("0.1")))

	require.Len(t, trail.Approved, 1)
	assert.Equal(t, uint64(1), trail.Approved[0].ApprovalCount)
	assert.Equal(t, uint64(2), trail.Approved[0].RequiredApprovals)
	assert.Equal(t, uint64(101), trail.Approved[0].BlockNumber)

	require.Len(t, trail.Deposits, 1)
	assert.True(t, trail.Deposits[0].Balance.Equal(decimal.NewFromInt(3)))
	assert.Empty(t, trail.Executed)

	_, err = NewClient(backend).QueryWalletEvents(context.Background(), walletAddr, 10, 5)
	assert.Equal(t, apierror.ErrValidation, apierror.CodeOf(err))
}

func TestVerifyChain(t *testing.T) {
	backend := newFakeBackend()
	backend.chainID = 31337
	c := NewClient(backend)

	assert.NoError(t, c.VerifyChain(context.Background(), 0))
	assert.NoError(t, c.VerifyChain(context.Background(), 31337))
	err := c.VerifyChain(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "31337")
}
