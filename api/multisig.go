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
package api

import (
	"net/http"
	"strconv"

	model2 "github.com/blnkfinance/pledge/api/model"
	"github.com/blnkfinance/pledge/api/middleware"
	"github.com/gin-gonic/gin"
)

func (a Api) GetWalletInfo(c *gin.Context) {
	resp, err := a.pledge.GetWalletInfo(c.Request.Context(), walletParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetAuditTrail(c *gin.Context) {
	var lookback uint64
	if raw := c.Query("lookback"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lookback must be a block count"})
			return
		}
		lookback = v
	}

	resp, err := a.pledge.GetAuditTrail(c.Request.Context(), walletParam(c), lookback)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ProposeTransaction(c *gin.Context) {
	var req model2.ProposeTransaction
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateProposeTransaction(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.pledge.ProposeTransaction(c.Request.Context(), middleware.CallerFrom(c), walletParam(c), req.ToInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetTransaction(c *gin.Context) {
	resp, err := a.pledge.GetTransaction(c.Request.Context(), walletParam(c), c.Param("txId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ApproveTransaction(c *gin.Context) {
	resp, err := a.pledge.ApproveTransaction(c.Request.Context(), middleware.CallerFrom(c), walletParam(c), c.Param("txId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ExecuteTransaction(c *gin.Context) {
	resp, err := a.pledge.ExecuteTransaction(c.Request.Context(), middleware.CallerFrom(c), walletParam(c), c.Param("txId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) SyncTransaction(c *gin.Context) {
	var req model2.SyncTransaction
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if err := req.ValidateSyncTransaction(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.pledge.SyncTransaction(c.Request.Context(), walletParam(c), c.Param("txId"), req.TxHash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
