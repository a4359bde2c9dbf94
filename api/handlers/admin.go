package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/velora-fi/poolengine/internal/ledger"
	"github.com/velora-fi/poolengine/internal/settlement"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

// AdminHandler serves fee-schedule administration and the pause
// controls. Callers declare their role in the X-Role header; the
// services re-check it as a precondition, so a missing or wrong role
// is rejected before any state is touched.
type AdminHandler struct {
	logger      *zap.Logger
	ledger      *ledger.Service
	coordinator *settlement.Coordinator
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(logger *zap.Logger, ledgerSvc *ledger.Service, coordinator *settlement.Coordinator) *AdminHandler {
	return &AdminHandler{logger: logger, ledger: ledgerSvc, coordinator: coordinator}
}

func callerRole(c *gin.Context) models.Role {
	switch c.GetHeader("X-Role") {
	case "admin":
		return models.RoleAdmin
	case "settlement":
		return models.RoleSettlement
	case "bridge":
		return models.RoleBridge
	default:
		return models.RoleNone
	}
}

// ListBrackets returns the fee schedule.
func (h *AdminHandler) ListBrackets(c *gin.Context) {
	brackets, err := h.ledger.Brackets(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	finalRate, err := h.ledger.FinalRate(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"brackets": brackets, "final_rate": finalRate})
}

type bracketRequest struct {
	Threshold fixedpoint.Amount `json:"threshold" binding:"required"`
	Rate      fixedpoint.Amount `json:"rate"`
}

// AddBracket appends a fee bracket above the current highest
// threshold.
func (h *AdminHandler) AddBracket(c *gin.Context) {
	var req bracketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.AddBracket(c.Request.Context(), callerRole(c), req.Threshold, req.Rate); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// ChangeBracket replaces the bracket at a position.
func (h *AdminHandler) ChangeBracket(c *gin.Context) {
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid position"})
		return
	}
	var req bracketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.ChangeBracket(c.Request.Context(), callerRole(c), position, req.Threshold, req.Rate); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveLastBracket drops the bracket with the highest threshold.
func (h *AdminHandler) RemoveLastBracket(c *gin.Context) {
	if err := h.ledger.RemoveLastBracket(c.Request.Context(), callerRole(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type finalRateRequest struct {
	Rate fixedpoint.Amount `json:"rate"`
}

// SetFinalRate replaces the catch-all rate above every threshold.
func (h *AdminHandler) SetFinalRate(c *gin.Context) {
	var req finalRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.SetFinalRate(c.Request.Context(), callerRole(c), req.Rate); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Pause refuses mutating settlement operations until Resume.
func (h *AdminHandler) Pause(c *gin.Context) {
	if err := h.coordinator.Pause(callerRole(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resume lifts a pause.
func (h *AdminHandler) Resume(c *gin.Context) {
	if err := h.coordinator.Resume(callerRole(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
