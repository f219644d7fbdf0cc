// Package handler exposes the HTTP endpoints of the optimization API.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/optimo/internal/dto"
	"github.com/noah-isme/optimo/internal/service"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
	"github.com/noah-isme/optimo/pkg/response"
)

// RunHandler exposes run submission and status endpoints.
type RunHandler struct {
	runs *service.RunService
}

// NewRunHandler constructs RunHandler.
func NewRunHandler(runs *service.RunService) *RunHandler {
	return &RunHandler{runs: runs}
}

// Submit accepts a new optimization run over a prepared input directory.
func (h *RunHandler) Submit(c *gin.Context) {
	var req dto.SubmitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code,
			appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	submitted, err := h.runs.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, submitted)
}

// Get returns one run's status and per-iteration metrics.
func (h *RunHandler) Get(c *gin.Context) {
	status, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// List returns recent runs.
func (h *RunHandler) List(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	runs, err := h.runs.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs)
}

// Register wires the run routes onto a router group.
func (h *RunHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/runs", h.Submit)
	rg.GET("/runs", h.List)
	rg.GET("/runs/:id", h.Get)
}
