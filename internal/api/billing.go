package api

import (
	"io"
	"net/http"
	"strconv"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = int64(65536)

func setupBillingRoutes(api *gin.RouterGroup, authMiddleware gin.HandlerFunc, credits *services.CreditService) {
	api.GET("/credits/packs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"packs": credits.Packs()})
	})
	api.GET("/credits/balance", authMiddleware, getBalanceHandler(credits))
	api.GET("/credits/transactions", authMiddleware, listTransactionsHandler(credits))
	api.POST("/credits/checkout", authMiddleware, createCheckoutHandler(credits))
	api.POST("/credits/checkout/finalize", authMiddleware, finalizeCheckoutHandler(credits))
	api.POST("/webhooks/stripe", stripeWebhookHandler(credits))
}

func getBalanceHandler(credits *services.CreditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		balance, err := credits.GetBalance(c.Request.Context(), user.ID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": balance})
	}
}

func listTransactionsHandler(credits *services.CreditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		txns, err := credits.ListTransactions(c.Request.Context(), user.ID, limit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txns})
	}
}

type checkoutRequest struct {
	PackID string `json:"pack_id" binding:"required"`
}

func createCheckoutHandler(credits *services.CreditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req checkoutRequest
		if !bindJSON(c, &req) {
			return
		}
		result, err := credits.CreateCheckout(c.Request.Context(), user, req.PackID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type finalizeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func finalizeCheckoutHandler(credits *services.CreditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req finalizeRequest
		if !bindJSON(c, &req) {
			return
		}
		result, err := credits.FinalizeCheckout(c.Request.Context(), user, req.SessionID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func stripeWebhookHandler(credits *services.CreditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Error reading request body"))
			return
		}

		if err := credits.HandleStripeEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
