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

type Role string

const (
	RoleNGO      Role = "ngo"
	RoleFunder   Role = "funder"
	RoleApprover Role = "approver"
	RoleOwner    Role = "owner"
)

// Caller is the authenticated identity an upstream collaborator attaches to
// every intent. Wallet is the caller's ledger address, when known.
type Caller struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	Wallet string `json:"wallet,omitempty"`
}

// Is reports whether the caller has the given role.
func (c Caller) Is(role Role) bool {
	return c.Role == role
}
