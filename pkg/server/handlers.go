package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meliorworks/melior/pkg/engine"
)

type handlers struct {
	deps Deps
}

func (h handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h handlers) listDefinitions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"definitions": h.deps.Registry.Names()})
}

func (h handlers) listAgents(c *gin.Context) {
	profiles, err := h.deps.Store.ListProfiles(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": profiles})
}

func (h handlers) createAgent(c *gin.Context) {
	var req struct {
		Definition string `json:"definition" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := h.deps.Engine.CreateAgent(c.Request.Context(), req.Definition)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

func (h handlers) getAgent(c *gin.Context) {
	profile, err := h.deps.Store.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h handlers) archiveAgent(c *gin.Context) {
	if err := h.deps.Store.ArchiveProfile(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h handlers) listCapabilities(c *gin.Context) {
	caps, err := h.deps.Store.ListCapabilities(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"capabilities": caps})
}

func (h handlers) executeTask(c *gin.Context) {
	var req struct {
		AgentID     string            `json:"agent_id" binding:"required"`
		Description string            `json:"description" binding:"required,min=1,max=10000"`
		Priority    string            `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
		Context     map[string]string `json:"context" binding:"omitempty,max=32"`
		Deadline    *time.Time        `json:"deadline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.deps.Engine.ExecuteTask(c.Request.Context(), req.AgentID, engine.Task{
		Description: req.Description,
		Priority:    engine.Priority(req.Priority),
		Context:     req.Context,
		Deadline:    req.Deadline,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h handlers) runResearch(c *gin.Context) {
	result, err := h.deps.Research.PerformDailyResearch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h handlers) dailyReport(c *gin.Context) {
	rep, err := h.deps.Reporter.GenerateDailyReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h handlers) pendingRequests(c *gin.Context) {
	pending, err := h.deps.Reviewer.Pending(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": pending})
}

func (h handlers) approveRequest(c *gin.Context) {
	cap, err := h.deps.Reviewer.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"capability": cap})
}

func (h handlers) rejectRequest(c *gin.Context) {
	if err := h.deps.Reviewer.Reject(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
