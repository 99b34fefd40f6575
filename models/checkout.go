package models

// CheckoutPayload is the body of a merchant-scoped reader checkout.
type CheckoutPayload struct {
	Affiliate   Affiliate   `json:"affiliate"`
	TotalAmount TotalAmount `json:"total_amount"`
	Description string      `json:"description,omitempty"`
	ReturnURL   string      `json:"return_url,omitempty"`
	TipRates    []float64   `json:"tip_rates,omitempty"`
	TipTimeout  int         `json:"tip_timeout,omitempty"`
}

type Affiliate struct {
	AppID                string            `json:"app_id"`
	ForeignTransactionID string            `json:"foreign_transaction_id"`
	Key                  string            `json:"key"`
	Tags                 map[string]string `json:"tags"`
}

// TotalAmount is an amount in minor units, e.g. 1050 with MinorUnit 2 for 10.50.
type TotalAmount struct {
	Currency  string `json:"currency"`
	MinorUnit int    `json:"minor_unit"`
	Value     int64  `json:"value"`
}

// SalePayload is the body of the legacy terminal-scoped transaction call.
// Amounts are major units.
type SalePayload struct {
	Amount          float64  `json:"amount"`
	Currency        string   `json:"currency"`
	TransactionType string   `json:"transaction_type"`
	TipAmount       *float64 `json:"tip_amount,omitempty"`
	ExternalID      string   `json:"external_id,omitempty"`
	Description     string   `json:"description,omitempty"`
}
