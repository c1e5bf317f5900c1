// Package admin exposes the collection system over the admin HTTP API.
package admin

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blacklist-hub/blacklist/api"
	"github.com/blacklist-hub/blacklist/collection"
)

// CollectionAPI holds the coordinator injected at startup.
type CollectionAPI struct {
	coordinator *collection.Coordinator
}

func NewCollectionAPI(coordinator *collection.Coordinator) *CollectionAPI {
	return &CollectionAPI{coordinator: coordinator}
}

// RegisterRoutes mounts the collection endpoints on the given group.
func (h *CollectionAPI) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/collection/enable", h.Enable)
	rg.POST("/collection/disable", h.Disable)
	rg.GET("/collection/status", h.Status)
	rg.GET("/collection/status/detailed", h.DetailedStatus)
	rg.GET("/collection/summary", h.Summary)
	rg.POST("/collection/trigger/:source", h.Trigger)
	rg.GET("/collection/auth/stats", h.AuthStats)
	rg.GET("/collection/auth/recent", h.RecentAttempts)
	rg.POST("/collection/auth/reset", h.ResetAuth)
	rg.POST("/collection/auth/cleanup", h.CleanupAuth)
	rg.POST("/collection/protection/bypass", h.CreateBypass)
	rg.POST("/collection/protection/reset", h.ResetProtection)
	rg.GET("/collection/requirements", h.Requirements)
}

// POST /api/admin/collection/enable
func (h *CollectionAPI) Enable(c *gin.Context) {
	var req struct {
		Sources          []string `json:"sources"`
		ClearDataFirst   *bool    `json:"clear_data_first"`
		BypassProtection bool     `json:"bypass_protection"`
		Reason           string   `json:"reason"`
	}
	// An empty body means "enable everything with defaults".
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		api.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	opts := collection.DefaultEnableOptions()
	opts.Sources = req.Sources
	opts.BypassProtection = req.BypassProtection
	if req.ClearDataFirst != nil {
		opts.ClearDataFirst = *req.ClearDataFirst
	}
	if req.Reason != "" {
		opts.Reason = req.Reason
	}

	result := h.coordinator.Enable(opts)
	if !result.Success {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "data": result})
		return
	}
	api.RespondSuccess(c, result)
}

// POST /api/admin/collection/disable
func (h *CollectionAPI) Disable(c *gin.Context) {
	api.RespondSuccess(c, h.coordinator.Disable())
}

// GET /api/admin/collection/status
func (h *CollectionAPI) Status(c *gin.Context) {
	api.RespondSuccess(c, h.coordinator.GetStatus())
}

// GET /api/admin/collection/status/detailed
func (h *CollectionAPI) DetailedStatus(c *gin.Context) {
	api.RespondSuccess(c, h.coordinator.GetDetailedStatus())
}

// GET /api/admin/collection/summary
func (h *CollectionAPI) Summary(c *gin.Context) {
	api.RespondSuccess(c, h.coordinator.GetCollectionSummary())
}

// POST /api/admin/collection/trigger/:source
func (h *CollectionAPI) Trigger(c *gin.Context) {
	source := c.Param("source")
	result := h.coordinator.TriggerCollection(c.Request.Context(), source)
	if !result.Success {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "data": result})
		return
	}
	api.RespondSuccess(c, result)
}

// GET /api/admin/collection/auth/stats?source=regtech&hours=24
func (h *CollectionAPI) AuthStats(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if source := c.Query("source"); source != "" {
		api.RespondSuccess(c, h.coordinator.GetAuthStatistics(source, hours))
		return
	}
	api.RespondSuccess(c, h.coordinator.GetOverallAuthStatistics(hours))
}

// GET /api/admin/collection/auth/recent?source=&limit=50
func (h *CollectionAPI) RecentAttempts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	api.RespondSuccess(c, gin.H{
		"attempts": h.coordinator.GetRecentAuthAttempts(c.Query("source"), limit),
	})
}

// POST /api/admin/collection/auth/reset
func (h *CollectionAPI) ResetAuth(c *gin.Context) {
	var req struct {
		Source string `json:"source"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		api.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	cleared, err := h.coordinator.ResetAuthAttempts(req.Source)
	if err != nil {
		api.RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondSuccess(c, gin.H{"records_cleared": cleared})
}

// POST /api/admin/collection/auth/cleanup
func (h *CollectionAPI) CleanupAuth(c *gin.Context) {
	var req struct {
		Days int `json:"days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		api.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	cleaned, err := h.coordinator.CleanupAuthAttempts(req.Days)
	if err != nil {
		api.RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondSuccess(c, gin.H{"records_cleaned": cleaned})
}

// POST /api/admin/collection/protection/bypass
func (h *CollectionAPI) CreateBypass(c *gin.Context) {
	var req struct {
		Reason          string `json:"reason" binding:"required"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, http.StatusBadRequest, "reason is required")
		return
	}
	bypass, err := h.coordinator.CreateProtectionBypass(req.Reason, req.DurationMinutes)
	if err != nil {
		api.RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondSuccess(c, bypass)
}

// POST /api/admin/collection/protection/reset
func (h *CollectionAPI) ResetProtection(c *gin.Context) {
	api.RespondSuccess(c, h.coordinator.ResetProtectionState())
}

// GET /api/admin/collection/requirements
func (h *CollectionAPI) Requirements(c *gin.Context) {
	api.RespondSuccess(c, h.coordinator.ValidateCollectionRequirements())
}
