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
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MilestoneSumTolerance is the largest allowed gap between a project's total and
// the sum of its milestone amounts.
var MilestoneSumTolerance = decimal.RequireFromString("0.0001")

// GenerateUUIDWithSuffix generates a UUID and prefixes it with the module name,
// e.g. "prj_5f0c...".
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr) // Append the module as a suffix to the UUID.
	return idWithSuffix
}

// SumAmounts adds up a list of decimal amounts.
func SumAmounts(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MilestonesMatchTotal reports whether the milestone amounts sum to total within
// MilestoneSumTolerance.
func MilestonesMatchTotal(total decimal.Decimal, amounts []decimal.Decimal) bool {
	return SumAmounts(amounts).Sub(total).Abs().LessThanOrEqual(MilestoneSumTolerance)
}

// SameAddress compares two ledger addresses ignoring hex case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// NormalizeAddress lowercases a ledger address for use in keys.
func NormalizeAddress(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}
