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
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// QueryWalletEvents replays the wallet's proposal, approval, execution and
// deposit logs over [fromBlock, toBlock] into an audit trail.
func (c *Client) QueryWalletEvents(ctx context.Context, wallet string, fromBlock, toBlock uint64) (*model.AuditTrail, error) {
	if c.backend == nil {
		return nil, apierror.NewAPIError(apierror.ErrLedgerUnavailable, "ledger backend is not configured", nil)
	}
	addr, err := parseAddress("wallet", wallet)
	if err != nil {
		return nil, err
	}
	if fromBlock > toBlock {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "fromBlock is after toBlock", nil)
	}

	proposed := walletABI.Events["TransactionProposed"]
	approved := walletABI.Events["TransactionApproved"]
	executed := walletABI.Events["TransactionExecuted"]
	deposit := walletABI.Events["Deposit"]

	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{{proposed.ID, approved.ID, executed.ID, deposit.ID}},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, unavailable("filterLogs", err)
	}

	trail := &model.AuditTrail{
		Wallet:    addr.Hex(),
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Proposed:  []model.ProposedEvent{},
		Approved:  []model.ApprovedEvent{},
		Executed:  []model.ExecutedEvent{},
		Deposits:  []model.DepositEvent{},
	}

	for _, l := range logs {
		if len(l.Topics) == 0 || l.Removed {
			continue
		}
		var decodeErr error
		switch l.Topics[0] {
		case proposed.ID:
			decodeErr = appendProposed(trail, l)
		case approved.ID:
			decodeErr = appendApproved(trail, l)
		case executed.ID:
			decodeErr = appendExecuted(trail, l)
		case deposit.ID:
			decodeErr = appendDeposit(trail, l)
		}
		if decodeErr != nil {
			// one malformed log should not hide the rest of the trail
			logrus.WithError(decodeErr).Warnf("skipping undecodable log in tx %s", l.TxHash.Hex())
		}
	}
	return trail, nil
}

func topicUint(l types.Log, i int) (uint64, error) {
	if len(l.Topics) <= i {
		return 0, fmt.Errorf("missing topic %d", i)
	}
	return new(big.Int).SetBytes(l.Topics[i].Bytes()).Uint64(), nil
}

func topicAddress(l types.Log, i int) (string, error) {
	if len(l.Topics) <= i {
		return "", fmt.Errorf("missing topic %d", i)
	}
	return common.BytesToAddress(l.Topics[i].Bytes()).Hex(), nil
}

func unpackData(event string, l types.Log) ([]interface{}, error) {
	return walletABI.Events[event].Inputs.NonIndexed().Unpack(l.Data)
}

func appendProposed(trail *model.AuditTrail, l types.Log) error {
	txID, err := topicUint(l, 1)
	if err != nil {
		return err
	}
	proposer, err := topicAddress(l, 2)
	if err != nil {
		return err
	}
	values, err := unpackData("TransactionProposed", l)
	if err != nil {
		return err
	}
	to, _ := values[0].(common.Address)
	value, _ := values[1].(*big.Int)
	data, _ := values[2].([]byte)
	trail.Proposed = append(trail.Proposed, model.ProposedEvent{
		TxID:            txID,
		Proposer:        proposer,
		To:              to.Hex(),
		Value:           FromWei(value),
		Data:            hexutil.Encode(data),
		BlockNumber:     l.BlockNumber,
		TransactionHash: l.TxHash.Hex(),
	})
	return nil
}

func appendApproved(trail *model.AuditTrail, l types.Log) error {
	txID, err := topicUint(l, 1)
	if err != nil {
		return err
	}
	approver, err := topicAddress(l, 2)
	if err != nil {
		return err
	}
	values, err := unpackData("TransactionApproved", l)
	if err != nil {
		return err
	}
	count, _ := values[0].(*big.Int)
	required, _ := values[1].(*big.Int)
	if count == nil || required == nil {
		return fmt.Errorf("unexpected approval payload %v", values)
	}
	trail.Approved = append(trail.Approved, model.ApprovedEvent{
		TxID:              txID,
		Approver:          approver,
		ApprovalCount:     count.Uint64(),
		RequiredApprovals: required.Uint64(),
		BlockNumber:       l.BlockNumber,
		TransactionHash:   l.TxHash.Hex(),
	})
	return nil
}

func appendExecuted(trail *model.AuditTrail, l types.Log) error {
	txID, err := topicUint(l, 1)
	if err != nil {
		return err
	}
	executor, err := topicAddress(l, 2)
	if err != nil {
		return err
	}
	values, err := unpackData("TransactionExecuted", l)
	if err != nil {
		return err
	}
	to, _ := values[0].(common.Address)
	value, _ := values[1].(*big.Int)
	trail.Executed = append(trail.Executed, model.ExecutedEvent{
		TxID:            txID,
		Executor:        executor,
		To:              to.Hex(),
		Value:           FromWei(value),
		BlockNumber:     l.BlockNumber,
		TransactionHash: l.TxHash.Hex(),
	})
	return nil
}

func appendDeposit(trail *model.AuditTrail, l types.Log) error {
	sender, err := topicAddress(l, 1)
	if err != nil {
		return err
	}
	values, err := unpackData("Deposit", l)
	if err != nil {
		return err
	}
	value, _ := values[0].(*big.Int)
	balance, _ := values[1].(*big.Int)
	trail.Deposits = append(trail.Deposits, model.DepositEvent{
		Sender:          sender,
		Value:           FromWei(value),
		Balance:         FromWei(balance),
		BlockNumber:     l.BlockNumber,
		TransactionHash: l.TxHash.Hex(),
	})
	return nil
}
