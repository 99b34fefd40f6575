package utils

import (
	"github.com/skip2/go-qrcode"
)

// GenerateQRCode renders text as a PNG QR code of size×size pixels.
func GenerateQRCode(text string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(text, qrcode.Medium, size)
}
