// Package handlers implements the HTTP handlers of the engine's query
// and admin surface.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/internal/calculator"
	"github.com/velora-fi/poolengine/internal/ledger"
	"github.com/velora-fi/poolengine/internal/settlement"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
)

// QueryHandler serves the read-only query and simulation endpoints.
// Nothing here mutates state, so external systems can preview an order
// before submitting it for settlement.
type QueryHandler struct {
	logger      *zap.Logger
	ledger      *ledger.Service
	calc        *calculator.Calculator
	coordinator *settlement.Coordinator
}

// NewQueryHandler creates the query handler.
func NewQueryHandler(logger *zap.Logger, ledgerSvc *ledger.Service, calc *calculator.Calculator, coordinator *settlement.Coordinator) *QueryHandler {
	return &QueryHandler{logger: logger, ledger: ledgerSvc, calc: calc, coordinator: coordinator}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNoData):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, apperrors.ErrZeroPrice),
		errors.Is(err, apperrors.ErrZeroSupply),
		errors.Is(err, apperrors.ErrNegativeAmount),
		errors.Is(err, apperrors.ErrBracketOrder),
		errors.Is(err, apperrors.ErrInvalidRange),
		errors.Is(err, apperrors.ErrInsolvent):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// CurrentSnapshot returns the most recent accounting snapshot.
func (h *QueryHandler) CurrentSnapshot(c *gin.Context) {
	snap, err := h.ledger.Current(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// DaysSinceRebalance returns the whole days since the last active day.
func (h *QueryHandler) DaysSinceRebalance(c *gin.Context) {
	days, err := h.ledger.DaysSinceLastRebalance(c.Request.Context(), time.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// MintingFee returns the fee rate applicable to a cash amount.
func (h *QueryHandler) MintingFee(c *gin.Context) {
	raw := c.Query("amount")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}
	var amount fixedpoint.Amount
	if err := amount.UnmarshalJSON([]byte(raw)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	rate, err := h.ledger.LookupMintingFee(c.Request.Context(), amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount, "fee_rate": rate})
}

type creationPreviewRequest struct {
	Cash        fixedpoint.Amount `json:"cash" binding:"required"`
	TotalSupply fixedpoint.Amount `json:"total_supply" binding:"required"`
}

// PreviewCreation simulates a creation order.
func (h *QueryHandler) PreviewCreation(c *gin.Context) {
	var req creationPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	preview, err := h.calc.PreviewCreation(c.Request.Context(), req.Cash, req.TotalSupply)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

type redemptionPreviewRequest struct {
	Tokens      fixedpoint.Amount `json:"tokens" binding:"required"`
	TotalSupply fixedpoint.Amount `json:"total_supply" binding:"required"`
}

// PreviewRedemption simulates a redemption order, including the
// redemption-side lending-fee accrual.
func (h *QueryHandler) PreviewRedemption(c *gin.Context) {
	var req redemptionPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	preview, err := h.calc.PreviewRedemption(c.Request.Context(), req.Tokens, req.TotalSupply)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

type rebalancePreviewRequest struct {
	Price       fixedpoint.Amount `json:"price" binding:"required"`
	TotalSupply fixedpoint.Amount `json:"total_supply" binding:"required"`
	DaysElapsed int               `json:"days_elapsed"`
}

// PreviewRebalance runs the rebalance computation without committing.
func (h *QueryHandler) PreviewRebalance(c *gin.Context) {
	var req rebalancePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.calc.PreviewRebalance(c.Request.Context(), req.Price, req.TotalSupply, req.DaysElapsed)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"end_net_value":     result.EndNetValue,
		"end_balance":       result.EndBalance,
		"end_cash_position": result.EndCashPosition,
		"fee_in_fiat":       result.FeeInFiat,
		"delta":             result.Delta,
		"delta_is_negative": result.DeltaIsNegative,
	})
}

// AccountOrders returns an account's order history.
func (h *QueryHandler) AccountOrders(c *gin.Context) {
	account := c.Param("account")
	orders, err := h.coordinator.Orders(c.Request.Context(), account, 100, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "orders": orders})
}

// DelayedRedemption returns an account's outstanding delayed balance.
func (h *QueryHandler) DelayedRedemption(c *gin.Context) {
	account := c.Param("account")
	amount, err := h.coordinator.DelayedRedemptionFor(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "outstanding": amount})
}

// RebalanceHistory returns the most recent committed rebalances.
func (h *QueryHandler) RebalanceHistory(c *gin.Context) {
	records, err := h.coordinator.RebalanceHistory(c.Request.Context(), 50)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rebalances": records})
}
