package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

const (
	HeaderEvent     = "X-Hook-Event"
	HeaderDelivery  = "X-Hook-Delivery"
	HeaderSignature = "X-Hook-Signature"
)

// Sign returns the hex encoded HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify is what a receiving endpoint runs against X-Hook-Signature.
func Verify(secret string, payload []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hmac.Equal(h.Sum(nil), expected)
}

// HookSecret derives the signing key of one hook from the master secret.
func HookSecret(master string, hookID int64) string {
	info := []byte("hookrelay:hook:" + strconv.FormatInt(hookID, 10))
	r := hkdf.New(sha256.New, []byte(master), nil, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// only possible past 255*32 bytes of output
		panic(err)
	}
	return hex.EncodeToString(key)
}
