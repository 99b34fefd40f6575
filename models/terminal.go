package models

// Terminal is a card reader the console can push checkouts to. Terminals
// without a merchant code are charged through the legacy terminal-scoped
// transaction endpoint, ReaderID then being the device serial.
type Terminal struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	MerchantCode     string `json:"merchant_code"`
	ReaderID         string `json:"reader_id"`
	AppID            string `json:"app_id"`
	AffiliateKey     string `json:"affiliate_key"`
	APIKey           string `json:"api_key"`
	DefaultReturnURL string `json:"default_return_url,omitempty"`
}

// MerchantScoped reports whether checkouts go through the reader checkout endpoint.
func (t Terminal) MerchantScoped() bool {
	return t.MerchantCode != ""
}

// TerminalFile is the on-disk layout of terminals.json.
type TerminalFile struct {
	Terminals []Terminal `json:"terminals"`
}
