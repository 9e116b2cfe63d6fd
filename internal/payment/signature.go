package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign computes the hex HMAC-SHA256 a gateway attaches to a completed
// payment: HMAC(secret, "<gatewayReference>|<gatewayPaymentReference>").
func Sign(secret []byte, gatewayReference, gatewayPaymentReference string) string {
	return hex.EncodeToString(signatureMAC(secret, gatewayReference, gatewayPaymentReference))
}

// VerifySignature compares in constant time.
func VerifySignature(secret []byte, gatewayReference, gatewayPaymentReference, signature string) error {
	if len(secret) == 0 {
		return ErrInvalidSignature
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return ErrInvalidSignature
	}
	if !hmac.Equal(provided, signatureMAC(secret, gatewayReference, gatewayPaymentReference)) {
		return ErrInvalidSignature
	}
	return nil
}

func signatureMAC(secret []byte, gatewayReference, gatewayPaymentReference string) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(gatewayReference))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(gatewayPaymentReference))
	return mac.Sum(nil)
}
