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

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/blnkfinance/pledge/model"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// milestoneTuple matches the getMilestone output tuple field for field.
type milestoneTuple struct {
	Amount           *big.Int
	FundedAmount     *big.Int
	State            uint8
	ProofHash        string
	SubmissionTime   *big.Int
	ApprovalTime     *big.Int
	DisputeWindowEnd *big.Int
	Released         bool
}

// ReadProject reads the escrow's view of project index. Index 0 is the
// "does not exist" sentinel and is never read.
func (c *Client) ReadProject(ctx context.Context, escrow string, index uint64) (*model.OnChainProject, error) {
	if index == 0 {
		return nil, apierror.New(apierror.ErrNotFound, apierror.ReasonProjectNotOnLedger, "project index 0 does not exist on the ledger", nil)
	}
	out, err := c.call(ctx, escrowABI, escrow, "getProject", new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, decodeFailed("getProject", fmt.Errorf("expected 6 outputs, got %d", len(out)))
	}

	ngo, ok1 := out[0].(common.Address)
	projectID, ok2 := out[1].(string)
	multisig, ok3 := out[2].(common.Address)
	totalFunded, ok4 := out[3].(*big.Int)
	milestoneCount, ok5 := out[4].(*big.Int)
	active, ok6 := out[5].(bool)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, decodeFailed("getProject", fmt.Errorf("unexpected output types %T", out))
	}

	return &model.OnChainProject{
		Index:          index,
		NGOAddress:     ngo.Hex(),
		ProjectID:      projectID,
		MultisigWallet: multisig.Hex(),
		TotalFunded:    FromWei(totalFunded),
		MilestoneCount: milestoneCount.Uint64(),
		Active:         active,
	}, nil
}

// ReadMilestone reads one milestone of the project at projectIndex. Amounts
// come back in whole units and zero timestamps come back nil.
func (c *Client) ReadMilestone(ctx context.Context, escrow string, projectIndex uint64, milestoneIndex int) (*model.OnChainMilestone, error) {
	if milestoneIndex < 0 {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "milestone index must not be negative", nil)
	}
	out, err := c.call(ctx, escrowABI, escrow, "getMilestone",
		new(big.Int).SetUint64(projectIndex), big.NewInt(int64(milestoneIndex)))
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, decodeFailed("getMilestone", fmt.Errorf("expected 1 output, got %d", len(out)))
	}

	tuple := *abi.ConvertType(out[0], new(milestoneTuple)).(*milestoneTuple)
	state, err := model.LedgerStateFromUint8(tuple.State)
	if err != nil {
		return nil, decodeFailed("getMilestone", err)
	}

	return &model.OnChainMilestone{
		Amount:           FromWei(tuple.Amount),
		FundedAmount:     FromWei(tuple.FundedAmount),
		State:            state,
		ProofHash:        tuple.ProofHash,
		SubmissionTime:   unixOrNil(tuple.SubmissionTime),
		ApprovalTime:     unixOrNil(tuple.ApprovalTime),
		DisputeWindowEnd: unixOrNil(tuple.DisputeWindowEnd),
		Released:         tuple.Released,
	}, nil
}

// ResolveProjectIndex looks up the ledger index for an off-chain project id.
// Zero means the project has not been created on the ledger.
func (c *Client) ResolveProjectIndex(ctx context.Context, escrow, projectID string) (uint64, error) {
	out, err := c.call(ctx, escrowABI, escrow, "getProjectByProjectId", projectID)
	if err != nil {
		return 0, err
	}
	index, ok := out[0].(*big.Int)
	if !ok || !index.IsUint64() {
		return 0, decodeFailed("getProjectByProjectId", fmt.Errorf("unexpected output %v", out[0]))
	}
	return index.Uint64(), nil
}

// EncodeCreateProject builds the createProject call the NGO signs. Milestone
// amounts are converted to wei in order.
func (c *Client) EncodeCreateProject(escrow, projectID, ngoWallet, multisig string, amounts []decimal.Decimal) (model.UnsignedTx, error) {
	if _, err := parseAddress("escrow", escrow); err != nil {
		return model.UnsignedTx{}, err
	}
	ngo, err := parseAddress("ngo wallet", ngoWallet)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	wallet, err := parseAddress("multisig", multisig)
	if err != nil {
		return model.UnsignedTx{}, err
	}

	wei := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		if wei[i], err = ToWei(a); err != nil {
			return model.UnsignedTx{}, err
		}
	}

	data, err := escrowABI.Pack("createProject", projectID, ngo, wallet, wei)
	if err != nil {
		return model.UnsignedTx{}, apierror.NewAPIError(apierror.ErrValidation, "cannot encode createProject", err.Error())
	}
	return encodeTx(escrow, data, nil), nil
}

// EncodeDeposit builds a payable depositFunds call carrying amount as value.
func (c *Client) EncodeDeposit(escrow string, projectIndex uint64, amount decimal.Decimal) (model.UnsignedTx, error) {
	if _, err := parseAddress("escrow", escrow); err != nil {
		return model.UnsignedTx{}, err
	}
	if !amount.IsPositive() {
		return model.UnsignedTx{}, apierror.NewAPIError(apierror.ErrValidation, "deposit amount must be positive", nil)
	}
	value, err := ToWei(amount)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	data, err := escrowABI.Pack("depositFunds", new(big.Int).SetUint64(projectIndex))
	if err != nil {
		return model.UnsignedTx{}, apierror.NewAPIError(apierror.ErrValidation, "cannot encode depositFunds", err.Error())
	}
	return encodeTx(escrow, data, value), nil
}

// EncodeSubmitMilestone builds submitMilestone with the proof hash. The
// encoders below validate addresses and indices but never read the ledger.
func (c *Client) EncodeSubmitMilestone(escrow string, projectIndex uint64, milestoneIndex int, proofHash string) (model.UnsignedTx, error) {
	return c.encodeMilestoneCall(escrow, "submitMilestone", projectIndex, milestoneIndex, proofHash)
}

// EncodeApproveMilestone builds approveMilestone, signed by a protocol owner.
func (c *Client) EncodeApproveMilestone(escrow string, projectIndex uint64, milestoneIndex int) (model.UnsignedTx, error) {
	return c.encodeMilestoneCall(escrow, "approveMilestone", projectIndex, milestoneIndex)
}

// EncodeReleaseFunds builds releaseFunds for an approved milestone.
func (c *Client) EncodeReleaseFunds(escrow string, projectIndex uint64, milestoneIndex int) (model.UnsignedTx, error) {
	return c.encodeMilestoneCall(escrow, "releaseFunds", projectIndex, milestoneIndex)
}

func (c *Client) encodeMilestoneCall(escrow, method string, projectIndex uint64, milestoneIndex int, extra ...interface{}) (model.UnsignedTx, error) {
	if _, err := parseAddress("escrow", escrow); err != nil {
		return model.UnsignedTx{}, err
	}
	if milestoneIndex < 0 {
		return model.UnsignedTx{}, apierror.NewAPIError(apierror.ErrValidation, "milestone index must not be negative", nil)
	}
	args := append([]interface{}{new(big.Int).SetUint64(projectIndex), big.NewInt(int64(milestoneIndex))}, extra...)
	data, err := escrowABI.Pack(method, args...)
	if err != nil {
		return model.UnsignedTx{}, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("cannot encode %s", method), err.Error())
	}
	return encodeTx(escrow, data, nil), nil
}
