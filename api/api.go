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
	"context"
	"errors"
	"net/http"

	"github.com/blnkfinance/pledge"
	"github.com/blnkfinance/pledge/api/middleware"
	"github.com/blnkfinance/pledge/config"
	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	pledge *pledge.Pledge
	queue  *pledge.Queue
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/projects", a.CreateProject)
	router.GET("/projects", a.ListProjects)
	router.GET("/projects/:id", a.GetProject)
	router.PUT("/projects/:id", a.UpdateProject)
	router.POST("/projects/:id/sync", a.SyncProject)
	router.GET("/projects/:id/state", a.GetProjectState)
	router.POST("/projects/:id/deposit", a.ProposeDeposit)
	router.PUT("/projects/:id/milestones/:idx", a.UpdateMilestoneStatus)
	router.POST("/projects/:id/milestones/:idx/submit", a.ProposeMilestoneSubmission)
	router.POST("/projects/:id/milestones/:idx/approve", a.ProposeMilestoneApproval)
	router.POST("/projects/:id/milestones/:idx/release", a.ProposeMilestoneRelease)

	router.GET("/multisig/:wallet", a.GetWalletInfo)
	router.GET("/multisig/:wallet/audit", a.GetAuditTrail)
	router.POST("/multisig/:wallet/transactions", a.ProposeTransaction)
	router.GET("/multisig/:wallet/transactions/:txId", a.GetTransaction)
	router.POST("/multisig/:wallet/transactions/:txId/approve", a.ApproveTransaction)
	router.POST("/multisig/:wallet/transactions/:txId/execute", a.ExecuteTransaction)
	router.POST("/multisig/:wallet/transactions/:txId/sync", a.SyncTransaction)
	return a.router
}

// NewAPI wires the middleware chain. q may be nil, in which case async syncs
// are refused.
func NewAPI(p *pledge.Pledge, q *pledge.Queue, conf *config.Configuration) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware(conf.Server.SecretKey))
	}
	r.Use(middleware.Caller())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Api{pledge: p, queue: q, router: r}
}

// respondError writes err with the status its code maps to. Errors that are
// not APIErrors are logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": apierror.NewAPIError(apierror.ErrLedgerUnavailable,
			"timed out waiting for the ledger", nil)})
		return
	}
	apiErr, ok := apierror.As(err)
	if !ok {
		logrus.Errorf("unhandled error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		apiErr = apierror.NewAPIError(apierror.ErrInternalServer, "an internal error occurred", nil)
	}
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), gin.H{"error": apiErr})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
}

// walletParam maps the "default" placeholder to the configured treasury
// wallet.
func walletParam(c *gin.Context) string {
	wallet := c.Param("wallet")
	if wallet == "default" {
		return ""
	}
	return wallet
}
