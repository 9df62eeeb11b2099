package panel

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ConnectionKey builds the user-facing subscription URL for a provisioned
// credential. The panel serves the client configuration at this address.
func ConnectionKey(subscriptionBaseURL string, ref CredentialRef) string {
	return subscriptionBaseURL + ref.CredentialID.String()
}

// ConnectionKeyQR renders the connection key as a PNG QR code of the given
// size in pixels.
func ConnectionKeyQR(subscriptionBaseURL string, ref CredentialRef, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(ConnectionKey(subscriptionBaseURL, ref), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode connection key qr: %w", err)
	}
	return png, nil
}
