package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyAPIKey           = errors.New("api key must not be empty")
	ErrPublishableKey        = errors.New(`the key starts with "sum_pk_"; use the secret API key with prefix "sum_sk_"`)
	ErrEmptyCredential       = errors.New("missing SumUp credential")
	ErrTransport             = errors.New("SumUp API request failed")
	ErrInvalidActivationCode = errors.New("activation code must contain letters or digits")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrTerminalNotFound      = errors.New("terminal not found")
	ErrInvalidStorageKey     = errors.New("invalid transaction storage key")
	ErrTransactionNotFound   = errors.New("transaction not found")

	ErrMethodNotAllowed     = errors.New("webhook only accepts POST")
	ErrWebhookSecretMissing = errors.New("webhook shared secret is not configured")
	ErrSignatureMissing     = errors.New("webhook signature header missing")
	ErrSignatureMismatch    = errors.New("webhook signature verification failed")
)

// ValidationErrors collects user input problems so a form can show all of
// them at once.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return strings.Join(v, "; ")
}

// UpstreamError is a non-2xx answer from the SumUp API.
type UpstreamError struct {
	Status int
	Detail string
	Hints  []string
	Result *APIResult
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("SumUp rejected the request (HTTP %d): %s", e.Status, e.Detail)
}
