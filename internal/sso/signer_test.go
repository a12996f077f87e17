package sso

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	payloads := []string{"", "a", PreparePayload("abc", "https://app.example/return"), "ünïcode"}
	for _, p := range payloads {
		sig := Sign(p, "secret")
		assert.Len(t, sig, 64)
		assert.True(t, Verify(p, sig, "secret"))
		assert.False(t, Verify(p, sig, "other"))

		for i := range sig {
			flipped := []byte(sig)
			if flipped[i] == '0' {
				flipped[i] = '1'
			} else {
				flipped[i] = '0'
			}
			assert.False(t, Verify(p, string(flipped), "secret"), "flip at %d", i)
		}
	}
}

func TestSignKnownValue(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	assert.Equal(t,
		"f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8",
		Sign("The quick brown fox jumps over the lazy dog", "key"))
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	assert.False(t, Verify("p", "", "s"))
	assert.False(t, Verify("p", "zz", "s"))
	assert.False(t, Verify("p", Sign("p", "s")+"00", "s"))
}

func TestPayloadRoundTrip(t *testing.T) {
	values, err := DecodePayload(PreparePayload("n1", "https://app.example/api/v1/login/return/devforum"))
	require.NoError(t, err)
	assert.Equal(t, "n1", values.Get("nonce"))
	assert.Equal(t, "https://app.example/api/v1/login/return/devforum", values.Get("return_sso_url"))

	_, err = DecodePayload("not base64!")
	assert.Error(t, err)
}
