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
package model

import (
	"github.com/blnkfinance/pledge"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

type ProposeTransaction struct {
	To    string          `json:"to"`
	Value decimal.Decimal `json:"value"`
	Data  string          `json:"data"`
}

func (p *ProposeTransaction) ValidateProposeTransaction() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.To, validation.Required, validation.By(ledgerAddress)),
		validation.Field(&p.Value, validation.By(nonNegativeAmount)),
		validation.Field(&p.Data, validation.Match(callDataPattern).Error("must be hex encoded call data")),
	)
}

func (p *ProposeTransaction) ToInput() pledge.ProposeTransactionInput {
	return pledge.ProposeTransactionInput{To: p.To, Value: p.Value, Data: p.Data}
}

// SyncTransaction carries the hash of the propose, approve or execute
// transaction. It may be omitted once the proposal has a ledger id.
type SyncTransaction struct {
	TxHash string `json:"tx_hash"`
}

func (s *SyncTransaction) ValidateSyncTransaction() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.TxHash, txHashRule),
	)
}
