// Package api exposes the read-only operations endpoints. There is no write
// surface: the fleet is driven entirely by configuration and the database.
package api

import (
	"net/http"

	"whatsapp-salesbot/internal/fleet"
	"whatsapp-salesbot/internal/report"
	"whatsapp-salesbot/internal/store"

	"github.com/gin-gonic/gin"
)

type OpsHandler struct {
	Store      *store.Store
	Supervisor *fleet.Supervisor
}

func NewOpsHandler(st *store.Store, sup *fleet.Supervisor) *OpsHandler {
	return &OpsHandler{Store: st, Supervisor: sup}
}

// Register mounts the ops routes.
func (h *OpsHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/stats", h.GetStats)
		apiGroup.GET("/fleet", h.GetFleet)
	}
}

func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStats returns today's aggregate with the rolled-up summary.
func (h *OpsHandler) GetStats(c *gin.Context) {
	rows, err := h.Store.DailyAggregate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rows":    rows,
		"summary": report.Build(rows),
	})
}

// GetFleet returns the live state of every agent.
func (h *OpsHandler) GetFleet(c *gin.Context) {
	c.JSON(http.StatusOK, h.Supervisor.Snapshot())
}
