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
	"github.com/blnkfinance/pledge/model"
	"github.com/gin-gonic/gin"
)

func (a Api) CreateProject(c *gin.Context) {
	var newProject model2.CreateProject
	if err := c.ShouldBindJSON(&newProject); err != nil {
		badRequest(c, err)
		return
	}
	if err := newProject.ValidateCreateProject(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.pledge.CreateProject(c.Request.Context(), middleware.CallerFrom(c), newProject.ToInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetProject(c *gin.Context) {
	resp, err := a.pledge.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ListProjects(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	resp, err := a.pledge.ListProjects(c.Request.Context(), c.Query("ngo_id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SyncProject reconciles inline, or queues the reconciliation and answers 202
// when the body asks for async.
func (a Api) SyncProject(c *gin.Context) {
	var req model2.SyncProject
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateSyncProject(); err != nil {
		badRequest(c, err)
		return
	}
	projectID := c.Param("id")

	if req.Async {
		if a.queue == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "background reconciliation is not configured"})
			return
		}
		if _, err := a.pledge.GetProject(c.Request.Context(), projectID); err != nil {
			respondError(c, err)
			return
		}
		info, err := a.queue.EnqueueSync(c.Request.Context(), req.ToTask(projectID))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue})
		return
	}

	resp, err := a.pledge.SyncProject(c.Request.Context(), projectID, req.TxHash, req.ToOptions())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetProjectState(c *gin.Context) {
	resp, err := a.pledge.GetProjectState(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ProposeDeposit(c *gin.Context) {
	var req model2.Deposit
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateDeposit(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.pledge.ProposeDeposit(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func milestoneIndex(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "milestone index must be a non-negative integer"})
		return 0, false
	}
	return idx, true
}

func (a Api) UpdateProject(c *gin.Context) {
	var req model2.UpdateProject
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateUpdateProject(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.pledge.UpdateProject(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), req.ToInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) UpdateMilestoneStatus(c *gin.Context) {
	idx, ok := milestoneIndex(c)
	if !ok {
		return
	}
	var req model2.UpdateMilestone
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateUpdateMilestone(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.pledge.UpdateMilestoneStatus(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), idx,
		model.LocalStatus(req.Status), req.ProofDocument)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ProposeMilestoneSubmission(c *gin.Context) {
	idx, ok := milestoneIndex(c)
	if !ok {
		return
	}
	var req model2.SubmitMilestone
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateSubmitMilestone(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.pledge.ProposeMilestoneSubmission(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), idx, req.ToInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ProposeMilestoneApproval(c *gin.Context) {
	idx, ok := milestoneIndex(c)
	if !ok {
		return
	}
	resp, err := a.pledge.ProposeMilestoneApproval(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), idx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ProposeMilestoneRelease(c *gin.Context) {
	idx, ok := milestoneIndex(c)
	if !ok {
		return
	}
	resp, err := a.pledge.ProposeMilestoneRelease(c.Request.Context(), c.Param("id"), idx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
