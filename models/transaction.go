package models

import (
	"net/http"
	"time"
)

// WebhookRequest carries everything the ingestion path needs from an
// incoming callback, decoupled from the HTTP framework.
type WebhookRequest struct {
	Method     string
	Headers    http.Header
	RawBody    []byte
	RemoteAddr string
	Secure     bool
}

// WebhookRecord is one stored provider callback.
type WebhookRecord struct {
	ID            string            `json:"id"`
	ReceivedAt    time.Time         `json:"received_at"`
	RequestID     string            `json:"request_id,omitempty"`
	StorageKey    string            `json:"storage_key"`
	Method        string            `json:"method"`
	ContentType   string            `json:"content_type,omitempty"`
	RemoteAddr    string            `json:"remote_addr,omitempty"`
	IsSecure      bool              `json:"is_secure"`
	PayloadFormat string            `json:"payload_format,omitempty"` // json, form
	Headers       map[string]string `json:"headers"`
	RawBody       string            `json:"raw_body"`
	Payload       any               `json:"payload"` // object, list or form fields
	ParseError    string            `json:"parse_error,omitempty"`
}

// Fields returns the payload when it is an object, nil otherwise.
func (r WebhookRecord) Fields() map[string]any {
	fields, _ := r.Payload.(map[string]any)
	return fields
}

// TransactionFile is the per-key JSON file under the transactions directory.
// Events are append-only; only LastUpdated changes on existing content.
type TransactionFile struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUpdated time.Time       `json:"last_updated"`
	Events      []WebhookRecord `json:"events"`
}

// TransactionAttempt is one outgoing checkout attempt, written to the
// tab-separated log and, when configured, to the MySQL ledger.
type TransactionAttempt struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time `gorm:"index" json:"created_at"`
	Username             string    `gorm:"size:64" json:"username"`
	TerminalID           string    `gorm:"size:32;index" json:"terminal_id"`
	TerminalLabel        string    `gorm:"size:128" json:"terminal_label"`
	Amount               string    `gorm:"size:32" json:"amount"` // formatted major units
	Currency             string    `gorm:"size:3" json:"currency"`
	ForeignTransactionID string    `gorm:"size:64;index" json:"foreign_transaction_id"`
	ClientTransactionID  string    `gorm:"size:64" json:"client_transaction_id"`
	HTTPStatus           int       `json:"http_status"`
	Outcome              string    `gorm:"size:255" json:"outcome"`
}
