package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhifu/sumup-terminal/models"
	"github.com/zhifu/sumup-terminal/utils"
)

var (
	signatureHeaders = []string{"X-Sumup-Signature", "X-Signature", "X-Hub-Signature-256"}
	requestIDHeaders = []string{"Sumup-Request-Id", "X-Request-Id", "X-Correlation-Id"}
	storageKeyFields = []string{
		"foreign_transaction_id", "foreignTransactionId",
		"transaction_code", "transactionCode",
		"transaction_id", "transactionId",
	}
)

// Broadcaster pushes live events to connected browsers.
type Broadcaster interface {
	Broadcast(eventType string, data map[string]any)
}

// VerifyWebhookSignature checks a hex HMAC-SHA256 of rawBody. The header
// may carry an algorithm prefix such as "sha256=".
func VerifyWebhookSignature(rawBody []byte, header, secret string) bool {
	secret = strings.TrimSpace(secret)
	header = strings.TrimSpace(header)
	if secret == "" || header == "" {
		return false
	}
	if _, sig, found := strings.Cut(header, "="); found {
		header = strings.TrimSpace(sig)
	}
	got, err := hex.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(got, mac.Sum(nil))
}

type WebhookIngestor struct {
	secret      string
	storage     *TransactionStorage
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewWebhookIngestor(secret string, storage *TransactionStorage, broadcaster Broadcaster, logger *slog.Logger) *WebhookIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookIngestor{
		secret:      strings.TrimSpace(secret),
		storage:     storage,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Ingest authenticates, parses and stores one callback.
func (w *WebhookIngestor) Ingest(ctx context.Context, req models.WebhookRequest) (*models.WebhookRecord, error) {
	if !strings.EqualFold(req.Method, http.MethodPost) {
		return nil, ErrMethodNotAllowed
	}
	if w.secret == "" {
		w.logger.ErrorContext(ctx, "webhook rejected: shared secret not configured")
		return nil, ErrWebhookSecretMissing
	}
	signature := firstHeader(req.Headers, signatureHeaders)
	if signature == "" {
		w.logger.WarnContext(ctx, "webhook rejected: signature header missing", "remote_addr", req.RemoteAddr)
		return nil, ErrSignatureMissing
	}
	if !VerifyWebhookSignature(req.RawBody, signature, w.secret) {
		w.logger.WarnContext(ctx, "webhook rejected: signature mismatch", "remote_addr", req.RemoteAddr)
		return nil, ErrSignatureMismatch
	}

	contentType := req.Headers.Get("Content-Type")
	record := models.WebhookRecord{
		ID:          uuid.NewString(),
		ReceivedAt:  time.Now().UTC(),
		RequestID:   firstHeader(req.Headers, requestIDHeaders),
		Method:      strings.ToUpper(req.Method),
		ContentType: contentType,
		RemoteAddr:  req.RemoteAddr,
		IsSecure:    req.Secure,
		Headers:     flattenHeaders(req.Headers),
		RawBody:     string(req.RawBody),
	}
	parsePayload(&record, req.RawBody, contentType)
	record.StorageKey = storageKey(record.Fields(), record.RequestID)

	if err := w.storage.Append(record.StorageKey, record); err != nil {
		w.logger.ErrorContext(ctx, "webhook could not be stored", "storage_key", record.StorageKey, "error", err)
		return nil, fmt.Errorf("store webhook: %w", err)
	}
	w.logger.InfoContext(ctx, "webhook stored",
		"storage_key", record.StorageKey,
		"payload_format", record.PayloadFormat,
		"request_id", record.RequestID,
	)

	if w.broadcaster != nil {
		event := map[string]any{
			"storage_key":    record.StorageKey,
			"event_id":       record.ID,
			"payload_format": record.PayloadFormat,
		}
		if status := scalarString(record.Fields()["status"]); status != "" {
			event["status"] = status
		}
		w.broadcaster.Broadcast("webhook", event)
	}
	return &record, nil
}

func parsePayload(record *models.WebhookRecord, raw []byte, contentType string) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json") {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var payload any
		if err := dec.Decode(&payload); err != nil {
			record.ParseError = err.Error()
			return
		}
		if _, err := dec.Token(); err != io.EOF {
			record.ParseError = "invalid JSON: unexpected data after top-level value"
			return
		}
		switch payload.(type) {
		case map[string]any, []any:
		default:
			record.ParseError = "invalid JSON: payload must be an object or a list"
			return
		}
		record.Payload = payload
		record.PayloadFormat = "json"
		return
	}

	values, _ := url.ParseQuery(string(raw))
	payload := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			payload[k] = v[0]
		} else {
			payload[k] = v
		}
	}
	record.Payload = payload
	record.PayloadFormat = "form"
}

// storageKey prefers a transaction id from the payload, then the request
// id, then a random key.
func storageKey(payload map[string]any, requestID string) string {
	for _, field := range storageKeyFields {
		if key := scalarString(payload[field]); key != "" {
			return key
		}
	}
	if requestID != "" {
		return requestID
	}
	return "request_" + utils.RandomHex(8)
}

func firstHeader(h http.Header, names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func flattenHeaders(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[k] = strings.Join(v, ", ")
	}
	return flat
}
