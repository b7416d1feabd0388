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
	"math/big"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/shopspring/decimal"
)

// Decimals is the fixed scale between a base unit and the ledger's minor unit.
const Decimals = 18

var weiPerUnit = decimal.New(1, Decimals)

// ToWei converts a base-unit amount to minor units, truncating toward zero.
// The result is never off by more than one minor unit.
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "amount must not be negative", nil)
	}
	return amount.Mul(weiPerUnit).Truncate(0).BigInt(), nil
}

// FromWei converts minor units back to a base-unit decimal. It is exact.
func FromWei(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}
