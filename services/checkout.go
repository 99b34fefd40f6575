package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/zhifu/sumup-terminal/config"
	"github.com/zhifu/sumup-terminal/models"
)

var finalStatuses = map[string]bool{
	"SUCCESSFUL": true,
	"PAID":       true,
	"FAILED":     true,
	"DECLINED":   true,
	"CANCELED":   true,
	"CANCELLED":  true,
	"REFUNDED":   true,
}

// CheckoutOutcome describes a checkout SumUp accepted.
type CheckoutOutcome struct {
	Terminal             models.Terminal
	Amount               MinorAmount
	Currency             string
	MinorUnit            int
	ForeignTransactionID string
	ClientTransactionID  string
	Result               *APIResult
}

// Message is the confirmation shown to the operator.
func (o *CheckoutOutcome) Message() string {
	msg := fmt.Sprintf("Payment sent to %s (amount: %s %s, foreign transaction id: %s",
		o.Terminal.Label, o.Amount.Formatted, o.Currency, o.ForeignTransactionID)
	if o.ClientTransactionID != "" {
		msg += ", client transaction id: " + o.ClientTransactionID
	}
	return msg + ")."
}

// StatusOutcome is the JSON answer of a status poll.
type StatusOutcome struct {
	OK            bool   `json:"ok"`
	StatusCode    int    `json:"status_code"`
	Body          any    `json:"body"`
	Raw           string `json:"raw"`
	Error         string `json:"error,omitempty"`
	Final         bool   `json:"final"`
	DisplayStatus string `json:"display_status,omitempty"`
}

type CheckoutService struct {
	client      *SumUpClient
	terminals   *TerminalStorage
	recorder    AttemptRecorder
	broadcaster Broadcaster
	currency    string
	minorUnit   int
	logger      *slog.Logger
}

func NewCheckoutService(client *SumUpClient, terminals *TerminalStorage, recorder AttemptRecorder,
	broadcaster Broadcaster, cfg config.SumUpConfig, logger *slog.Logger) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		client:      client,
		terminals:   terminals,
		recorder:    recorder,
		broadcaster: broadcaster,
		currency:    cfg.Currency,
		minorUnit:   cfg.MinorUnit,
		logger:      logger,
	}
}

// Submit validates the form and pushes the checkout to the selected
// terminal. Input problems come back as ValidationErrors and nothing is
// sent; a non-2xx answer comes back as *UpstreamError.
func (s *CheckoutService) Submit(ctx context.Context, user string, form CheckoutForm) (*CheckoutOutcome, error) {
	form.normalize()
	errs := validateForm(&form)

	var terminal models.Terminal
	if form.TerminalID != "" {
		t, err := s.terminals.Find(form.TerminalID)
		switch {
		case errors.Is(err, ErrTerminalNotFound):
			errs = append(errs, "The selected terminal was not found.")
		case err != nil:
			return nil, err
		default:
			terminal = t
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	minorUnit := s.minorUnit
	if form.MinorUnit != "" {
		n, err := strconv.Atoi(form.MinorUnit)
		if err != nil {
			return nil, ValidationErrors{"The number of decimal places is invalid."}
		}
		minorUnit = n
	}
	currency := form.Currency
	if currency == "" {
		currency = s.currency
	}
	foreignID := form.ForeignTransactionID
	if foreignID == "" {
		foreignID = GenerateForeignTransactionID()
	}

	amount, err := ConvertAmountToMinorUnits(form.Amount, minorUnit)
	if err != nil {
		errs = append(errs, err.Error())
	}
	tipRates, err := ParseTipRates(form.TipRates)
	if err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return nil, errs
	}

	outcome := &CheckoutOutcome{
		Terminal:             terminal,
		Amount:               amount,
		Currency:             currency,
		MinorUnit:            minorUnit,
		ForeignTransactionID: foreignID,
	}
	attempt := models.TransactionAttempt{
		CreatedAt:            time.Now(),
		Username:             user,
		TerminalID:           terminal.ID,
		TerminalLabel:        terminal.Label,
		Amount:               amount.Formatted,
		Currency:             currency,
		ForeignTransactionID: foreignID,
	}

	var res *APIResult
	if terminal.MerchantScoped() {
		res, err = s.client.Checkout(ctx, terminal.APIKey, terminal.MerchantCode, terminal.ReaderID,
			buildCheckoutPayload(terminal, form, amount, currency, minorUnit, foreignID, tipRates))
	} else {
		// legacy readers only take the amount; tip rates and return url do not apply
		res, err = s.client.SendPayment(ctx, terminal.APIKey, terminal.ReaderID, SaleRequest{
			Amount:      MajorUnits(amount.Value, minorUnit),
			Currency:    currency,
			ExternalID:  foreignID,
			Description: form.Description,
		})
	}
	if err != nil {
		attempt.Outcome = "error: " + err.Error()
		s.record(ctx, attempt)
		return nil, fmt.Errorf("the payment could not be sent: %w", err)
	}

	outcome.Result = res
	attempt.HTTPStatus = res.Status
	if !res.OK() {
		detail := ErrorDetail(res)
		attempt.Outcome = fmt.Sprintf("rejected (HTTP %d): %s", res.Status, detail)
		s.record(ctx, attempt)
		return nil, &UpstreamError{Status: res.Status, Detail: detail, Hints: HintsForStatus(res.Status), Result: res}
	}

	outcome.ClientTransactionID = res.StringField("client_transaction_id")
	attempt.ClientTransactionID = outcome.ClientTransactionID
	attempt.Outcome = fmt.Sprintf("sent (HTTP %d)", res.Status)
	s.record(ctx, attempt)

	if s.broadcaster != nil {
		s.broadcaster.Broadcast("checkout", map[string]any{
			"storage_key":            SanitizeStorageKey(foreignID),
			"terminal_id":            terminal.ID,
			"foreign_transaction_id": foreignID,
			"client_transaction_id":  outcome.ClientTransactionID,
			"amount":                 amount.Formatted,
			"currency":               currency,
		})
	}
	return outcome, nil
}

func buildCheckoutPayload(t models.Terminal, form CheckoutForm, amount MinorAmount, currency string,
	minorUnit int, foreignID string, tipRates []float64) models.CheckoutPayload {
	payload := models.CheckoutPayload{
		Affiliate: models.Affiliate{
			AppID:                t.AppID,
			ForeignTransactionID: foreignID,
			Key:                  t.AffiliateKey,
			Tags:                 map[string]string{},
		},
		TotalAmount: models.TotalAmount{
			Currency:  currency,
			MinorUnit: minorUnit,
			Value:     amount.Value,
		},
		Description: form.Description,
		ReturnURL:   form.ReturnURL,
		TipRates:    tipRates,
	}
	if payload.ReturnURL == "" {
		payload.ReturnURL = t.DefaultReturnURL
	}
	if timeout, err := strconv.Atoi(form.TipTimeout); err == nil && timeout > 0 {
		payload.TipTimeout = timeout
	}
	return payload
}

func (s *CheckoutService) record(ctx context.Context, a models.TransactionAttempt) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "transaction attempt could not be recorded", "error", err)
	}
}

// Status looks a transaction up with the terminal's key. The client
// transaction id wins when both ids are given.
func (s *CheckoutService) Status(ctx context.Context, terminalID, foreignID, clientID string) (*StatusOutcome, error) {
	terminalID = strings.TrimSpace(terminalID)
	foreignID = strings.TrimSpace(foreignID)
	clientID = strings.TrimSpace(clientID)

	terminal, err := s.terminals.Find(terminalID)
	if err != nil {
		return nil, err
	}
	if foreignID == "" && clientID == "" {
		return nil, ValidationErrors{"No transaction id was provided."}
	}

	var res *APIResult
	if clientID != "" {
		res, err = s.client.TransactionByClientID(ctx, terminal.APIKey, clientID)
	} else {
		res, err = s.client.TransactionByForeignID(ctx, terminal.APIKey, foreignID)
	}
	if err != nil {
		return nil, err
	}

	out := &StatusOutcome{
		OK:         res.Status < 400,
		StatusCode: res.Status,
		Body:       res.Body,
		Raw:        res.ResponseRaw,
	}
	if !out.OK {
		out.Error = fmt.Sprintf("SumUp answered the status request with HTTP %d.", res.Status)
	}
	out.DisplayStatus = displayStatus(res.Body)
	out.Final = finalStatuses[strings.ToUpper(out.DisplayStatus)]
	return out, nil
}

// displayStatus reads status or transaction_status, looking into the first
// element when SumUp answers with a list.
func displayStatus(body any) string {
	switch b := body.(type) {
	case []any:
		if len(b) > 0 {
			return displayStatus(b[0])
		}
	case map[string]any:
		if items, ok := b["items"].([]any); ok && len(items) > 0 {
			return displayStatus(items[0])
		}
		if s := scalarString(b["status"]); s != "" {
			return s
		}
		return scalarString(b["transaction_status"])
	}
	return ""
}
