package api

import (
	"io"
	"net/http"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// lineWebhookHandler passes the raw body through untouched; the signature covers its exact bytes.
func lineWebhookHandler(line *services.LineService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if line == nil {
			apperrors.HandleError(c, apperrors.New404Error("LINE integration is not configured"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes*16)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Error reading request body"))
			return
		}
		if err := line.HandleWebhook(c.Request.Context(), body, c.GetHeader(services.LineSignatureHeader)); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}
