package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns hex(HMAC-SHA256(secret, "orderID|paymentID")), the format the
// gateway uses for checkout signatures.
func Sign(secret, orderID, paymentID string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify compares in constant time. An empty secret never verifies.
func Verify(secret, orderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	want := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(want), []byte(signature))
}
