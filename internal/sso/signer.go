package sso

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the signature of payload under secret.
func Verify(payload, signature, secret string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hmac.Equal(got, mac.Sum(nil))
}

// PreparePayload builds the outgoing discourse payload. The values are not
// escaped; both are generated by this service.
func PreparePayload(nonce, returnURL string) string {
	return base64.StdEncoding.EncodeToString([]byte("nonce=" + nonce + "&return_sso_url=" + returnURL))
}

// DecodePayload decodes a returned discourse payload into its query values.
// Repeated keys keep every value.
func DecodePayload(payload string) (url.Values, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	return url.ParseQuery(string(raw))
}
