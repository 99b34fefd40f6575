package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zhifu/sumup-terminal/services"
	"github.com/zhifu/sumup-terminal/utils"
)

const (
	qrDefaultSize = 256
	qrMinSize     = 128
	qrMaxSize     = 1024
)

type statusRequest struct {
	TerminalID           string `form:"terminal_id" json:"terminal_id"`
	ForeignTransactionID string `form:"foreign_transaction_id" json:"foreign_transaction_id"`
	ClientTransactionID  string `form:"client_transaction_id" json:"client_transaction_id"`
}

// TransactionStatus asks SumUp for the state of a submitted checkout. The
// checkout page polls it until the answer is final.
func (ar *APIRoutes) TransactionStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request"})
		return
	}

	out, err := ar.checkout.Status(c.Request.Context(), req.TerminalID, req.ForeignTransactionID, req.ClientTransactionID)
	if err != nil {
		var verrs services.ValidationErrors
		switch {
		case errors.Is(err, services.ErrTerminalNotFound):
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "The selected terminal was not found."})
		case errors.As(err, &verrs):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"ok": false, "error": verrs.Error()})
		case errors.Is(err, services.ErrTransport):
			c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		default:
			ar.logger.ErrorContext(c.Request.Context(), "status lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "The status could not be loaded."})
		}
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListTransactions returns the keys that have stored webhook events.
func (ar *APIRoutes) ListTransactions(c *gin.Context) {
	keys, err := ar.transactions.Keys()
	if err != nil {
		ar.logger.Error("list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transactions could not be listed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": keys})
}

// GetTransaction returns every webhook event stored under a key.
func (ar *APIRoutes) GetTransaction(c *gin.Context) {
	tf, err := ar.transactions.Load(c.Param("key"))
	switch {
	case errors.Is(err, services.ErrInvalidStorageKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		ar.logger.Error("load transaction", "key", c.Param("key"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction could not be read"})
	default:
		c.JSON(http.StatusOK, tf)
	}
}

// TransactionQRCode renders a QR code linking to the transaction's events,
// so a second device can follow the payment.
func (ar *APIRoutes) TransactionQRCode(c *gin.Context) {
	key := c.Param("key")
	if key == "" || services.SanitizeStorageKey(key) != key {
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrInvalidStorageKey.Error()})
		return
	}

	size := qrDefaultSize
	if s := c.Query("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < qrMinSize || n > qrMaxSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("size must be between %d and %d", qrMinSize, qrMaxSize)})
			return
		}
		size = n
	}

	link := fmt.Sprintf("%s://%s/transactions/%s", requestScheme(c), c.Request.Host, key)
	png, err := utils.GenerateQRCode(link, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func requestScheme(c *gin.Context) string {
	if isSecure(c) {
		return "https"
	}
	return "http"
}

func isSecure(c *gin.Context) bool {
	return c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
}
