package services

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhifu/sumup-terminal/config"
	"github.com/zhifu/sumup-terminal/models"
)

type memoryRecorder struct {
	attempts []models.TransactionAttempt
}

func (m *memoryRecorder) Record(_ context.Context, a models.TransactionAttempt) error {
	m.attempts = append(m.attempts, a)
	return nil
}

type checkoutFixture struct {
	fake     *fakeSumUp
	service  *CheckoutService
	recorder *memoryRecorder
	events   *captureBroadcaster
	merchant models.Terminal
	legacy   models.Terminal
}

func newCheckoutFixture(t *testing.T, routes map[string]func(http.ResponseWriter)) *checkoutFixture {
	t.Helper()
	fake, client := newFakeSumUp(t, routes)
	terminals, err := NewTerminalStorage(filepath.Join(t.TempDir(), "terminals.json"))
	require.NoError(t, err)

	merchant, err := terminals.Add(models.Terminal{
		Label: "Bar", MerchantCode: "MC1", ReaderID: "rdr_1", AppID: "app.id",
		AffiliateKey: "aff_key", APIKey: "sum_sk_bar", DefaultReturnURL: "https://example.com/return",
	})
	require.NoError(t, err)
	legacy, err := terminals.Add(models.Terminal{Label: "Old", ReaderID: "110000001", APIKey: "sum_sk_old"})
	require.NoError(t, err)

	rec := &memoryRecorder{}
	events := &captureBroadcaster{}
	cfg := config.SumUpConfig{Currency: "EUR", MinorUnit: 2}
	return &checkoutFixture{
		fake:     fake,
		service:  NewCheckoutService(client, terminals, rec, events, cfg, nil),
		recorder: rec,
		events:   events,
		merchant: merchant,
		legacy:   legacy,
	}
}

func TestSubmit_MerchantScopedCheckout(t *testing.T) {
	f := newCheckoutFixture(t, map[string]func(http.ResponseWriter){
		"POST /v0.1/merchants/MC1/readers/rdr_1/checkout": jsonReply(201, `{"client_transaction_id":"ctx_9"}`),
	})

	out, err := f.service.Submit(context.Background(), "kasse", CheckoutForm{
		TerminalID:           f.merchant.ID,
		Amount:               " 10,50 ",
		Description:          "Coffee",
		TipRates:             "5 10",
		TipTimeout:           "30",
		ForeignTransactionID: "ft_fixed",
	})
	require.NoError(t, err)
	assert.Equal(t, "ctx_9", out.ClientTransactionID)
	assert.Equal(t, "10,50", out.Amount.Formatted)
	assert.Contains(t, out.Message(), "client transaction id: ctx_9")

	seen := f.fake.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "Bearer sum_sk_bar", seen[0].Auth)
	body := seen[0].Body
	assert.Equal(t, map[string]any{"currency": "EUR", "minor_unit": 2.0, "value": 1050.0}, body["total_amount"])
	assert.Equal(t, map[string]any{
		"app_id": "app.id", "foreign_transaction_id": "ft_fixed", "key": "aff_key", "tags": map[string]any{},
	}, body["affiliate"])
	assert.Equal(t, "https://example.com/return", body["return_url"])
	assert.Equal(t, []any{0.05, 0.1}, body["tip_rates"])
	assert.Equal(t, 30.0, body["tip_timeout"])
	assert.Equal(t, "Coffee", body["description"])

	require.Len(t, f.recorder.attempts, 1)
	attempt := f.recorder.attempts[0]
	assert.Equal(t, "kasse", attempt.Username)
	assert.Equal(t, "ctx_9", attempt.ClientTransactionID)
	assert.Equal(t, 201, attempt.HTTPStatus)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, "checkout", f.events.events[0].Type)
}

func TestSubmit_LegacyTerminalUsesSale(t *testing.T) {
	f := newCheckoutFixture(t, map[string]func(http.ResponseWriter){
		"POST /v0.1/terminals/110000001/transactions": jsonReply(200, `{"id":"tx"}`),
	})

	out, err := f.service.Submit(context.Background(), "kasse", CheckoutForm{
		TerminalID: f.legacy.ID,
		Amount:     "7",
		Currency:   "chf",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^ft_[0-9a-f]{16}$`, out.ForeignTransactionID)
	assert.Equal(t, "CHF", out.Currency)

	body := f.fake.seen()[0].Body
	assert.Equal(t, 7.0, body["amount"])
	assert.Equal(t, "CHF", body["currency"])
	assert.Equal(t, "SALE", body["transaction_type"])
	assert.Equal(t, out.ForeignTransactionID, body["external_id"])
}

func TestSubmit_ValidationErrorsSendNothing(t *testing.T) {
	f := newCheckoutFixture(t, nil)

	_, err := f.service.Submit(context.Background(), "kasse", CheckoutForm{
		TerminalID: "nope",
		ReturnURL:  "not a url",
		TipTimeout: "soon",
	})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 4) // amount, return_url, tip_timeout, terminal

	_, err = f.service.Submit(context.Background(), "kasse", CheckoutForm{
		TerminalID: f.merchant.ID,
		Amount:     "0",
		TipRates:   "150",
	})
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)

	assert.Empty(t, f.fake.seen())
	assert.Empty(t, f.recorder.attempts)
}

func TestSubmit_UpstreamRejection(t *testing.T) {
	f := newCheckoutFixture(t, map[string]func(http.ResponseWriter){
		"POST /v0.1/merchants/MC1/readers/rdr_1/checkout": jsonReply(422, `{"error_message":"Reader is offline"}`),
	})

	_, err := f.service.Submit(context.Background(), "kasse", CheckoutForm{TerminalID: f.merchant.ID, Amount: "1"})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 422, upstream.Status)
	assert.Equal(t, "Reader is offline", upstream.Detail)
	require.Len(t, f.recorder.attempts, 1)
	assert.Contains(t, f.recorder.attempts[0].Outcome, "Reader is offline")
	assert.Empty(t, f.events.events)
}

func TestStatus(t *testing.T) {
	f := newCheckoutFixture(t, map[string]func(http.ResponseWriter){
		"GET /v0.1/me/transactions/ctx_1": jsonReply(200, `{"status":"successful"}`),
		"GET /v0.1/me/transactions":       jsonReply(200, `{"transaction_status":"PENDING"}`),
	})
	ctx := context.Background()

	out, err := f.service.Status(ctx, f.merchant.ID, "ft_1", "ctx_1")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.True(t, out.Final)
	assert.Equal(t, "successful", out.DisplayStatus)

	out, err = f.service.Status(ctx, f.merchant.ID, "ft_1", "")
	require.NoError(t, err)
	assert.False(t, out.Final)
	assert.Equal(t, "PENDING", out.DisplayStatus)

	out, err = f.service.Status(ctx, f.merchant.ID, "", "ctx_missing")
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, 404, out.StatusCode)
	assert.NotEmpty(t, out.Error)

	_, err = f.service.Status(ctx, "unknown", "ft_1", "")
	assert.ErrorIs(t, err, ErrTerminalNotFound)

	_, err = f.service.Status(ctx, f.merchant.ID, " ", "")
	var verrs ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestTerminalForm_Validate(t *testing.T) {
	form := TerminalForm{Label: " Bar ", ReaderID: "rdr", APIKey: "sum_sk_x"}
	require.NoError(t, form.Validate())
	assert.Equal(t, "Bar", form.Terminal().Label)

	form = TerminalForm{Label: "Bar", ReaderID: "rdr", APIKey: "sum_pk_x", MerchantCode: "MC1", DefaultReturnURL: "nope"}
	err := form.Validate()
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	// app_id, affiliate_key, default_return_url, publishable key
	assert.Len(t, verrs, 4)
	assert.Contains(t, verrs.Error(), `"app_id"`)
}
