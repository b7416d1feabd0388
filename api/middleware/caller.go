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
package middleware

import (
	"net/http"
	"strings"

	"github.com/blnkfinance/pledge/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const (
	CallerIDHeader     = "X-Caller-ID"
	CallerRoleHeader   = "X-Caller-Role"
	CallerWalletHeader = "X-Caller-Wallet"

	callerKey = "caller"
)

var knownRoles = map[model.Role]bool{
	model.RoleNGO:      true,
	model.RoleFunder:   true,
	model.RoleApprover: true,
	model.RoleOwner:    true,
}

// Caller reads the identity the upstream auth collaborator attached to the
// request. Requests without a caller pass through anonymous; the core decides
// whether an operation needs one.
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := model.Caller{
			ID:     strings.TrimSpace(c.GetHeader(CallerIDHeader)),
			Role:   model.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(CallerRoleHeader)))),
			Wallet: strings.TrimSpace(c.GetHeader(CallerWalletHeader)),
		}
		if caller.Role != "" && !knownRoles[caller.Role] {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown caller role " + string(caller.Role)})
			return
		}
		if caller.Wallet != "" && !common.IsHexAddress(caller.Wallet) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "caller wallet is not a ledger address"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// CallerFrom returns the caller stored by Caller, or the anonymous caller.
func CallerFrom(c *gin.Context) model.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(model.Caller); ok {
			return caller
		}
	}
	return model.Caller{}
}
