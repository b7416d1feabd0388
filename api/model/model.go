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
	"errors"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

var (
	txHashPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	callDataPattern = regexp.MustCompile(`^(0x)?([0-9a-fA-F]{2})*$`)
)

func positiveAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount type")
	}
	if !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

func nonNegativeAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount type")
	}
	if amount.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

// ledgerAddress accepts empty values; pair it with validation.Required when
// the address is mandatory.
func ledgerAddress(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !common.IsHexAddress(s) {
		return errors.New("must be a 0x-prefixed 20 byte hex address")
	}
	return nil
}

var txHashRule = validation.Match(txHashPattern).Error("must be a 0x-prefixed 32 byte hex hash")
