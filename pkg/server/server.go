// Package server exposes the orchestrator over HTTP: agent lifecycle, task
// execution, research triggers, reports and governance decisions.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meliorworks/melior/pkg/catalog"
	"github.com/meliorworks/melior/pkg/engine"
	"github.com/meliorworks/melior/pkg/errors"
	"github.com/meliorworks/melior/pkg/governance"
	"github.com/meliorworks/melior/pkg/report"
	"github.com/meliorworks/melior/pkg/research"
	"github.com/meliorworks/melior/pkg/store"
)

// Deps carries the constructed components the API fronts.
type Deps struct {
	Store    store.Store
	Registry *catalog.Registry
	Engine   *engine.Engine
	Research *research.Cycle
	Reporter *report.Reporter
	Reviewer *governance.Reviewer
	Logger   *slog.Logger
}

// New builds the HTTP engine with all routes attached.
func New(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	g := gin.New()
	g.Use(gin.Recovery())
	attachRoutes(g, deps)
	return g
}

func attachRoutes(g *gin.Engine, deps Deps) {
	h := handlers{deps: deps}

	g.GET("/healthz", h.health)

	v1 := g.Group("/v1")
	v1.GET("/agents", h.listAgents)
	v1.POST("/agents", h.createAgent)
	v1.GET("/agents/:id", h.getAgent)
	v1.DELETE("/agents/:id", h.archiveAgent)
	v1.GET("/agents/:id/capabilities", h.listCapabilities)
	v1.GET("/agents/:id/report", h.dailyReport)
	v1.GET("/agents/:id/requests", h.pendingRequests)
	v1.POST("/agents/:id/research", h.runResearch)
	v1.POST("/tasks/execute", h.executeTask)
	v1.POST("/requests/:id/approve", h.approveRequest)
	v1.POST("/requests/:id/reject", h.rejectRequest)
	v1.GET("/definitions", h.listDefinitions)
}

// writeError maps component errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	if merr := errors.AsMeliorError(err); merr != nil {
		c.JSON(merr.StatusCode, gin.H{"error": merr.Message, "code": string(merr.Code)})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
