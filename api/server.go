// Package api exposes the engine's HTTP surface: read-only query and
// simulation endpoints, the fee-schedule admin endpoints, and
// Prometheus metrics.
package api

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/velora-fi/poolengine/api/handlers"
	"github.com/velora-fi/poolengine/internal/calculator"
	"github.com/velora-fi/poolengine/internal/ledger"
	"github.com/velora-fi/poolengine/internal/settlement"
)

// Server is the HTTP server over the engine services.
type Server struct {
	router *gin.Engine
	logger *zap.Logger
}

// NewServer wires the routes. Mutating settlement operations are not
// exposed here; they arrive through the settlement authority's own
// call path. The HTTP surface is queries, previews, and fee-schedule
// administration.
func NewServer(logger *zap.Logger, ledgerSvc *ledger.Service, calc *calculator.Calculator, coordinator *settlement.Coordinator) *Server {
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	query := handlers.NewQueryHandler(logger, ledgerSvc, calc, coordinator)
	v1 := router.Group("/v1")
	{
		v1.GET("/snapshot", query.CurrentSnapshot)
		v1.GET("/days-since-rebalance", query.DaysSinceRebalance)
		v1.GET("/minting-fee", query.MintingFee)
		v1.POST("/preview/creation", query.PreviewCreation)
		v1.POST("/preview/redemption", query.PreviewRedemption)
		v1.POST("/preview/rebalance", query.PreviewRebalance)
		v1.GET("/accounts/:account/orders", query.AccountOrders)
		v1.GET("/accounts/:account/delayed-redemption", query.DelayedRedemption)
		v1.GET("/rebalances", query.RebalanceHistory)
	}

	admin := handlers.NewAdminHandler(logger, ledgerSvc, coordinator)
	adm := router.Group("/v1/admin")
	{
		adm.GET("/fee-brackets", admin.ListBrackets)
		adm.POST("/fee-brackets", admin.AddBracket)
		adm.PUT("/fee-brackets/:position", admin.ChangeBracket)
		adm.DELETE("/fee-brackets/last", admin.RemoveLastBracket)
		adm.PUT("/fee-brackets/final-rate", admin.SetFinalRate)
		adm.POST("/pause", admin.Pause)
		adm.POST("/resume", admin.Resume)
	}

	return &Server{router: router, logger: logger}
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }
