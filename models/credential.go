package models

import "time"

// StoredCredential is the decrypted content of the credential store.
type StoredCredential struct {
	MerchantID string    `json:"merchant_id"`
	APIKey     string    `json:"api_key"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SealedCredential is what actually lands on disk. Nonce and Ciphertext
// are base64 encoded secretbox output.
type SealedCredential struct {
	MerchantID string    `json:"merchant_id"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
	UpdatedAt  time.Time `json:"updated_at"`
}
