package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zhifu/sumup-terminal/config"
	"github.com/zhifu/sumup-terminal/models"
)

// AuthMethod selects which endpoint variants are tried. The Authorization
// header is a bearer token either way.
type AuthMethod string

const (
	AuthAPIKey AuthMethod = config.AuthMethodAPIKey
	AuthOAuth  AuthMethod = config.AuthMethodOAuth
)

const (
	apiVersionPath       = "/v0.1"
	publishableKeyPrefix = config.PublishableKeyPrefix
	maxResponseBytes     = 1 << 20
)

// SaleRequest is a legacy terminal-scoped sale in major units.
type SaleRequest struct {
	Amount      float64
	Currency    string
	ExternalID  string
	Description string
	TipAmount   *float64
}

// RequestSummary echoes an outgoing request with the credential redacted.
type RequestSummary struct {
	Method        string `json:"method"`
	URL           string `json:"url"`
	Authorization string `json:"authorization"`
	Body          any    `json:"body,omitempty"`
}

// AttemptSummary describes an endpoint that answered 404 before a fallback was tried.
type AttemptSummary struct {
	Status   int    `json:"status"`
	URL      string `json:"url"`
	Method   string `json:"method"`
	Response any    `json:"response"`
}

// APIResult is a normalized SumUp response. Non-2xx answers are results,
// not errors.
type APIResult struct {
	Status           int              `json:"status"`
	Body             any              `json:"body"`
	Request          RequestSummary   `json:"request"`
	ResponseRaw      string           `json:"response_raw"`
	PreviousAttempts []AttemptSummary `json:"previous_attempts,omitempty"`
}

func (r *APIResult) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// BodyMap returns the decoded body when it is a JSON object.
func (r *APIResult) BodyMap() map[string]any {
	if r == nil {
		return nil
	}
	m, _ := r.Body.(map[string]any)
	return m
}

// StringField returns the first non-empty string or number field of the body.
func (r *APIResult) StringField(names ...string) string {
	body := r.BodyMap()
	for _, name := range names {
		if s := scalarString(body[name]); s != "" {
			return s
		}
	}
	return ""
}

type endpoint struct {
	method string
	path   string
	body   any
}

type SumUpClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewSumUpClient(baseURL string, timeout time.Duration, logger *slog.Logger) *SumUpClient {
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SumUpClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SendPayment pushes a sale to a terminal addressed by its serial number.
func (c *SumUpClient) SendPayment(ctx context.Context, credential, terminalSerial string, sale SaleRequest) (*APIResult, error) {
	if err := checkCredential(credential, AuthAPIKey); err != nil {
		return nil, err
	}
	if terminalSerial == "" {
		return nil, fmt.Errorf("missing terminal serial number")
	}
	if sale.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	payload := models.SalePayload{
		Amount:          roundCents(sale.Amount),
		Currency:        strings.ToUpper(sale.Currency),
		TransactionType: "SALE",
		ExternalID:      sale.ExternalID,
		Description:     sale.Description,
	}
	if sale.TipAmount != nil {
		tip := roundCents(*sale.TipAmount)
		payload.TipAmount = &tip
	}

	return c.do(ctx, credential, endpoint{
		method: http.MethodPost,
		path:   "/terminals/" + url.PathEscape(terminalSerial) + "/transactions",
		body:   payload,
	})
}

// Checkout starts a payment on a reader linked to a merchant account.
func (c *SumUpClient) Checkout(ctx context.Context, credential, merchantCode, readerID string, payload models.CheckoutPayload) (*APIResult, error) {
	if err := checkCredential(credential, AuthAPIKey); err != nil {
		return nil, err
	}
	if payload.TotalAmount.Value <= 0 {
		return nil, ErrInvalidAmount
	}
	return c.do(ctx, credential, endpoint{
		method: http.MethodPost,
		path:   "/merchants/" + url.PathEscape(merchantCode) + "/readers/" + url.PathEscape(readerID) + "/checkout",
		body:   payload,
	})
}

// ListTerminals lists the readers of an account. With API key auth a 404
// from the primary endpoint falls through to the account-scoped and legacy
// listings.
func (c *SumUpClient) ListTerminals(ctx context.Context, credential string, method AuthMethod, merchantCode string) (*APIResult, error) {
	if err := checkCredential(credential, method); err != nil {
		return nil, err
	}
	merchantCode = strings.TrimSpace(merchantCode)

	var endpoints []endpoint
	if merchantCode != "" {
		endpoints = append(endpoints, endpoint{method: http.MethodGet, path: "/merchants/" + url.PathEscape(merchantCode) + "/readers"})
	}
	endpoints = append(endpoints,
		endpoint{method: http.MethodGet, path: "/me/readers"},
		endpoint{method: http.MethodGet, path: "/terminals"},
	)
	if method == AuthOAuth {
		endpoints = endpoints[:1]
	}
	return c.tryEndpoints(ctx, credential, endpoints)
}

// ActivateTerminal links a terminal to the account with the code shown on
// its display.
func (c *SumUpClient) ActivateTerminal(ctx context.Context, credential string, method AuthMethod, code, merchantCode, label string) (*APIResult, error) {
	if err := checkCredential(credential, method); err != nil {
		return nil, err
	}
	code = NormalizeActivationCode(code)
	if code == "" {
		return nil, ErrInvalidActivationCode
	}
	merchantCode = strings.TrimSpace(merchantCode)
	label = strings.TrimSpace(label)

	pairing := map[string]string{"pairing_code": code}
	legacy := map[string]string{"activation_code": code}
	if label != "" {
		pairing["name"] = label
		legacy["label"] = label
	}

	var endpoints []endpoint
	if merchantCode != "" {
		endpoints = append(endpoints, endpoint{method: http.MethodPost, path: "/merchants/" + url.PathEscape(merchantCode) + "/readers", body: pairing})
	}
	endpoints = append(endpoints,
		endpoint{method: http.MethodPost, path: "/me/readers", body: pairing},
		endpoint{method: http.MethodPost, path: "/terminals/activate", body: legacy},
	)
	if method == AuthOAuth {
		endpoints = endpoints[:1]
	}
	return c.tryEndpoints(ctx, credential, endpoints)
}

// TransactionByForeignID looks a transaction up by the id we attached to the checkout.
func (c *SumUpClient) TransactionByForeignID(ctx context.Context, credential, foreignID string) (*APIResult, error) {
	if err := checkCredential(credential, AuthAPIKey); err != nil {
		return nil, err
	}
	return c.do(ctx, credential, endpoint{
		method: http.MethodGet,
		path:   "/me/transactions?foreign_transaction_id=" + url.QueryEscape(foreignID),
	})
}

// TransactionByClientID looks a transaction up by the id SumUp returned on checkout.
func (c *SumUpClient) TransactionByClientID(ctx context.Context, credential, clientID string) (*APIResult, error) {
	if err := checkCredential(credential, AuthAPIKey); err != nil {
		return nil, err
	}
	return c.do(ctx, credential, endpoint{
		method: http.MethodGet,
		path:   "/me/transactions/" + url.PathEscape(clientID),
	})
}

// tryEndpoints walks endpoints in order and stops at the first answer that
// is not a 404. Every 404 before that is kept in PreviousAttempts.
func (c *SumUpClient) tryEndpoints(ctx context.Context, credential string, endpoints []endpoint) (*APIResult, error) {
	var (
		result   *APIResult
		attempts []AttemptSummary
	)
	for i, ep := range endpoints {
		res, err := c.do(ctx, credential, ep)
		if err != nil {
			return nil, err
		}
		result = res
		if res.Status != http.StatusNotFound || i == len(endpoints)-1 {
			break
		}
		attempts = append(attempts, AttemptSummary{
			Status:   res.Status,
			URL:      res.Request.URL,
			Method:   res.Request.Method,
			Response: res.Body,
		})
		c.logger.Debug("sumup endpoint not found, trying fallback", "url", res.Request.URL)
	}
	result.PreviousAttempts = attempts
	return result, nil
}

func (c *SumUpClient) do(ctx context.Context, credential string, ep endpoint) (*APIResult, error) {
	target := c.baseURL + apiVersionPath + ep.path

	var reader io.Reader
	if ep.body != nil {
		data, err := json.Marshal(ep.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, ep.method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("sumup request failed", "method", ep.method, "url", target, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read SumUp response: %w", err)
	}
	c.logger.Info("sumup request",
		"method", ep.method,
		"url", target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &APIResult{
		Status: resp.StatusCode,
		Body:   decodeBody(raw),
		Request: RequestSummary{
			Method:        ep.method,
			URL:           target,
			Authorization: "Bearer " + RedactCredential(credential),
			Body:          ep.body,
		},
		ResponseRaw: string(raw),
	}, nil
}

func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return v
}

func checkCredential(credential string, method AuthMethod) error {
	if strings.TrimSpace(credential) == "" {
		return ErrEmptyCredential
	}
	if method == AuthAPIKey && strings.HasPrefix(credential, publishableKeyPrefix) {
		return ErrPublishableKey
	}
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// RedactCredential keeps the first and last four characters of a credential.
func RedactCredential(credential string) string {
	n := utf8.RuneCountInString(credential)
	if n <= 8 {
		return strings.Repeat("•", n)
	}
	r := []rune(credential)
	return string(r[:4]) + strings.Repeat("•", n-8) + string(r[n-4:])
}

// NormalizeActivationCode uppercases the code and drops everything that is
// not a letter or digit.
func NormalizeActivationCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ErrorDetail picks the most useful error text out of a failed response.
func ErrorDetail(res *APIResult) string {
	if res == nil {
		return "unknown error"
	}
	body := res.BodyMap()
	if s := scalarString(body["message"]); s != "" {
		return s
	}
	if s := scalarString(body["error_message"]); s != "" {
		return s
	}
	if s := scalarString(body["error_code"]); s != "" {
		return "Fehlercode: " + s
	}
	if strings.TrimSpace(res.ResponseRaw) != "" {
		return res.ResponseRaw
	}
	return "unknown error"
}

// HintsForStatus suggests what to check after a failed call.
func HintsForStatus(status int) []string {
	switch status {
	case http.StatusNotFound:
		return []string{"Check the terminal serial number and whether the terminal has been activated."}
	case http.StatusUnauthorized, http.StatusForbidden:
		return []string{"Check the API key or access token and its permissions."}
	}
	return nil
}

// ExtractReaders returns the reader objects of a listing, which SumUp sends
// either under "items" or as a top-level array.
func ExtractReaders(res *APIResult) []map[string]any {
	if res == nil {
		return nil
	}
	var list []any
	switch body := res.Body.(type) {
	case map[string]any:
		list, _ = body["items"].([]any)
	case []any:
		list = body
	}

	readers := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			readers = append(readers, m)
		}
	}
	return readers
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}
