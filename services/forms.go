package services

import (
	"strings"

	"github.com/zhifu/sumup-terminal/models"
)

// CheckoutForm is the payment form as submitted. Numeric fields stay
// strings so bad input can be reported instead of rejected by binding.
type CheckoutForm struct {
	TerminalID           string `form:"terminal_id" validate:"required"`
	Amount               string `form:"amount" validate:"required"`
	Currency             string `form:"currency" validate:"omitempty,iso4217"`
	MinorUnit            string `form:"minor_unit" validate:"omitempty,number"`
	Description          string `form:"description" validate:"max=255"`
	ReturnURL            string `form:"return_url" validate:"omitempty,url"`
	TipRates             string `form:"tip_rates"`
	TipTimeout           string `form:"tip_timeout" validate:"omitempty,number"`
	ForeignTransactionID string `form:"foreign_transaction_id" validate:"max=128"`
}

func (f *CheckoutForm) normalize() {
	trim(&f.TerminalID, &f.Amount, &f.Currency, &f.MinorUnit, &f.Description,
		&f.ReturnURL, &f.TipRates, &f.TipTimeout, &f.ForeignTransactionID)
	f.Currency = strings.ToUpper(f.Currency)
}

// TerminalForm adds a terminal. Affiliate data is only needed for readers
// that are addressed through a merchant account.
type TerminalForm struct {
	Label            string `form:"label" validate:"required,max=128"`
	MerchantCode     string `form:"merchant_code" validate:"omitempty,alphanum"`
	ReaderID         string `form:"reader_id" validate:"required"`
	AppID            string `form:"app_id" validate:"required_with=MerchantCode"`
	AffiliateKey     string `form:"affiliate_key" validate:"required_with=MerchantCode"`
	APIKey           string `form:"api_key" validate:"required"`
	DefaultReturnURL string `form:"default_return_url" validate:"omitempty,url"`
}

// Validate trims the form and reports every problem.
func (f *TerminalForm) Validate() error {
	trim(&f.Label, &f.MerchantCode, &f.ReaderID, &f.AppID, &f.AffiliateKey, &f.APIKey, &f.DefaultReturnURL)
	errs := validateForm(f)
	if strings.HasPrefix(f.APIKey, publishableKeyPrefix) {
		errs = append(errs, ErrPublishableKey.Error())
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (f TerminalForm) Terminal() models.Terminal {
	return models.Terminal{
		Label:            f.Label,
		MerchantCode:     f.MerchantCode,
		ReaderID:         f.ReaderID,
		AppID:            f.AppID,
		AffiliateKey:     f.AffiliateKey,
		APIKey:           f.APIKey,
		DefaultReturnURL: f.DefaultReturnURL,
	}
}

// ReaderLookupForm asks SumUp for the readers of a merchant account.
type ReaderLookupForm struct {
	MerchantCode string `form:"merchant_code" validate:"required"`
	APIKey       string `form:"api_key" validate:"required"`
}

func (f *ReaderLookupForm) Validate() error {
	trim(&f.MerchantCode, &f.APIKey)
	if errs := validateForm(f); len(errs) > 0 {
		return errs
	}
	return nil
}

// PairingForm links a terminal via the activation code on its display.
type PairingForm struct {
	ActivationCode   string `form:"activation_code" validate:"required"`
	Label            string `form:"label" validate:"max=128"`
	MerchantCode     string `form:"merchant_code"`
	CredentialSource string `form:"credential_source"`
}

func (f *PairingForm) Validate() error {
	trim(&f.ActivationCode, &f.Label, &f.MerchantCode, &f.CredentialSource)
	if errs := validateForm(f); len(errs) > 0 {
		return errs
	}
	return nil
}

// CredentialForm saves or clears the stored API key.
type CredentialForm struct {
	Action     string `form:"action" validate:"omitempty,oneof=save clear"`
	MerchantID string `form:"merchant_id" validate:"max=64"`
	APIKey     string `form:"api_key"`
}

func (f *CredentialForm) Validate() error {
	trim(&f.Action, &f.MerchantID, &f.APIKey)
	if errs := validateForm(f); len(errs) > 0 {
		return errs
	}
	return nil
}

func trim(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}
