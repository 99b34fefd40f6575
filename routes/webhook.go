package routes

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhifu/sumup-terminal/models"
	"github.com/zhifu/sumup-terminal/services"
)

const maxWebhookBody = 1 << 20

// HandleWebhook stores a SumUp callback. Successful deliveries get an empty
// 204 answer.
func (ar *APIRoutes) HandleWebhook(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		ar.logger.Warn("webhook body could not be read", "error", err)
		c.String(http.StatusBadRequest, "error reading body")
		return
	}

	_, err = ar.webhooks.Ingest(c.Request.Context(), models.WebhookRequest{
		Method:     c.Request.Method,
		Headers:    c.Request.Header,
		RawBody:    body,
		RemoteAddr: c.ClientIP(),
		Secure:     isSecure(c),
	})
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, services.ErrWebhookSecretMissing),
		errors.Is(err, services.ErrSignatureMissing),
		errors.Is(err, services.ErrSignatureMismatch):
		c.String(http.StatusUnauthorized, err.Error())
	default:
		c.String(http.StatusInternalServerError, err.Error())
	}
}
