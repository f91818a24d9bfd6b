package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brandops/ledger-service/internal/config"
	"github.com/brandops/ledger-service/internal/service"
)

func NewRouter(wallets *service.WalletService, txs *service.TransactionService, usage *service.UsageService, quota *service.QuotaService, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterHandlers(r, wallets, txs, usage, quota)
	return r
}
