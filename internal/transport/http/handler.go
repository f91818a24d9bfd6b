package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/brandops/ledger-service/internal/model"
	"github.com/brandops/ledger-service/internal/service"
)

// actorID is set by the upstream auth middleware; this service only reads
// the already-authenticated identity.
func actorID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

func respondError(c *gin.Context, err error) {
	var limitErr *service.LimitExceededError
	switch {
	case errors.As(err, &limitErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":     limitErr.Error(),
			"current":   limitErr.Current,
			"limit":     limitErr.Limit,
			"remaining": limitErr.Remaining,
		})
	case errors.Is(err, service.ErrInvalidTransaction),
		errors.Is(err, service.ErrInvalidWallet),
		errors.Is(err, service.ErrBalanceImmutable),
		errors.Is(err, service.ErrUnknownResourceType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoActiveSubscription):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func RegisterHandlers(r *gin.Engine, wallets *service.WalletService, txs *service.TransactionService, usage *service.UsageService, quota *service.QuotaService) {
	v1 := r.Group("/v1/brands/:brandId")
	{
		v1.POST("/wallets", createWalletHandler(wallets))
		v1.GET("/wallets", listWalletsHandler(wallets))
		v1.GET("/wallets/:walletId", getWalletHandler(wallets))
		v1.GET("/wallets/:walletId/balance", walletBalanceHandler(wallets))
		v1.PUT("/wallets/:walletId", updateWalletHandler(wallets))
		v1.DELETE("/wallets/:walletId", deleteWalletHandler(wallets))
		v1.POST("/wallets/:walletId/adjust", adjustWalletHandler(txs))

		v1.POST("/transactions", applyTransactionHandler(txs))
		v1.GET("/transactions", listTransactionsHandler(txs))
		v1.GET("/transactions/:txId", getTransactionHandler(txs))
		v1.PUT("/transactions/:txId", updateTransactionHandler(txs))
		v1.DELETE("/transactions/:txId", deleteTransactionHandler(txs))
		v1.GET("/metrics", summaryHandler(txs))

		v1.GET("/usage", usageAllHandler(usage))
		v1.GET("/usage/:resourceType", usageHandler(usage))
		v1.POST("/usage/:resourceType/reconcile", reconcileHandler(usage))
		v1.GET("/quota/:resourceType", quotaHandler(quota))
	}
}

type createWalletReq struct {
	Name     string `json:"name" binding:"required"`
	Balance  string `json:"balance"`
	Type     string `json:"type"`
	Currency string `json:"currency" binding:"required"`
	Color    string `json:"color"`
}

func createWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createWalletReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		balance := decimal.Zero
		if req.Balance != "" {
			var err error
			if balance, err = decimal.NewFromString(req.Balance); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid balance"})
				return
			}
		}
		w, err := svc.Create(c, c.Param("brandId"), actorID(c), service.CreateWalletSpec{
			Name:     req.Name,
			Balance:  balance,
			Type:     model.WalletType(req.Type),
			Currency: req.Currency,
			Color:    req.Color,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, w)
	}
}

func listWalletsHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := svc.List(c, c.Param("brandId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ws)
	}
}

func getWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := svc.GetByID(c, c.Param("brandId"), c.Param("walletId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func walletBalanceHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		bal, err := svc.GetBalance(c, c.Param("brandId"), c.Param("walletId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

type updateWalletReq struct {
	Name     *string `json:"name"`
	Balance  *string `json:"balance"`
	Type     *string `json:"type"`
	Currency *string `json:"currency"`
	Color    *string `json:"color"`
}

func updateWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateWalletReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		spec := service.UpdateWalletSpec{
			Name:     req.Name,
			Currency: req.Currency,
			Color:    req.Color,
		}
		if req.Type != nil {
			t := model.WalletType(*req.Type)
			spec.Type = &t
		}
		if req.Balance != nil {
			b, err := decimal.NewFromString(*req.Balance)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid balance"})
				return
			}
			spec.Balance = &b
		}
		w, err := svc.Update(c, c.Param("brandId"), c.Param("walletId"), spec)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func deleteWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c, c.Param("brandId"), c.Param("walletId"), actorID(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type adjustReq struct {
	Delta  string `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

func adjustWalletHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adjustReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		delta, err := decimal.NewFromString(req.Delta)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delta"})
			return
		}
		rec, err := svc.Adjust(c, c.Param("brandId"), actorID(c), c.Param("walletId"), delta, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

type applyReq struct {
	Type           string  `json:"type" binding:"required"`
	FromWalletID   string  `json:"fromWalletId"`
	ToWalletID     string  `json:"toWalletId"`
	Amount         string  `json:"amount" binding:"required"`
	Description    string  `json:"description"`
	Category       *string `json:"category"`
	Date           string  `json:"date"`
	CountAsRevenue bool    `json:"countAsRevenue"`
	CountAsCost    bool    `json:"countAsCost"`
}

func applyTransactionHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req applyReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		var date time.Time
		if req.Date != "" {
			if date, err = time.Parse(time.RFC3339, req.Date); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
				return
			}
		}
		rec, err := svc.Apply(c, c.Param("brandId"), actorID(c), service.ApplyInput{
			Type:           model.TransactionType(req.Type),
			FromWalletID:   req.FromWalletID,
			ToWalletID:     req.ToWalletID,
			Amount:         amt,
			Description:    req.Description,
			Category:       req.Category,
			Date:           date,
			CountAsRevenue: req.CountAsRevenue,
			CountAsCost:    req.CountAsCost,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

func listTransactionsHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		res, err := svc.List(c, c.Param("brandId"), service.ListFilters{
			WalletID: c.Query("walletId"),
			Type:     model.TransactionType(c.Query("type")),
			Search:   c.Query("search"),
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func getTransactionHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := svc.GetByID(c, c.Param("brandId"), c.Param("txId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

type updateTxReq struct {
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Status      *string `json:"status"`
}

func updateTransactionHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateTxReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		spec := service.UpdateTransactionSpec{
			Description: req.Description,
			Category:    req.Category,
		}
		if req.Status != nil {
			st := model.TransactionStatus(*req.Status)
			spec.Status = &st
		}
		rec, err := svc.Update(c, c.Param("brandId"), c.Param("txId"), spec)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func deleteTransactionHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c, c.Param("brandId"), c.Param("txId")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func summaryHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svc.Metrics(c, c.Param("brandId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

func usageAllHandler(svc *service.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := svc.GetAll(c, actorID(c), c.Param("brandId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, all)
	}
}

func usageHandler(svc *service.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := svc.Get(c, actorID(c), c.Param("brandId"), model.ResourceType(c.Param("resourceType")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func reconcileHandler(svc *service.UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := svc.Reconcile(c, actorID(c), c.Param("brandId"), model.ResourceType(c.Param("resourceType")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"currentCount": count})
	}
}

func quotaHandler(svc *service.QuotaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.CanAdd(c, actorID(c), c.Param("brandId"), model.ResourceType(c.Param("resourceType")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}
