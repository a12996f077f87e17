package csrf

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func ptr(v int64) *int64 { return &v }

func TestNewVerifierRejectsShortSecret(t *testing.T) {
	_, err := NewVerifier("short", time.Hour)
	require.ErrorIs(t, err, ErrSecretTooShort)
}

func TestIsValid(t *testing.T) {
	v, err := NewVerifier(testSecret, time.Hour)
	require.NoError(t, err)

	anon, _, err := v.Issue(nil)
	require.NoError(t, err)
	user7, exp, err := v.Issue(ptr(7))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	assert.True(t, v.IsValid(anon, nil))
	assert.True(t, v.IsValid(user7, ptr(7)))

	assert.False(t, v.IsValid("", nil), "empty token")
	assert.False(t, v.IsValid("   ", nil), "blank token")
	assert.False(t, v.IsValid("garbage", nil))
	assert.False(t, v.IsValid(anon, ptr(7)), "anonymous token replayed for a user")
	assert.False(t, v.IsValid(user7, nil), "user token replayed anonymously")
	assert.False(t, v.IsValid(user7, ptr(8)), "user token replayed for another user")
}

func TestIsValidRejectsExpired(t *testing.T) {
	v, err := NewVerifier(testSecret, time.Minute)
	require.NoError(t, err)
	base := time.Now()
	v.now = func() time.Time { return base }
	tok, _, err := v.Issue(nil)
	require.NoError(t, err)

	v.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.False(t, v.IsValid(tok, nil))
}

func TestIsValidRejectsOtherKeyAndAlgorithm(t *testing.T) {
	v, err := NewVerifier(testSecret, time.Hour)
	require.NoError(t, err)
	other, err := NewVerifier("ffffffffffffffffffffffffffffffff", time.Hour)
	require.NoError(t, err)

	tok, _, err := other.Issue(nil)
	require.NoError(t, err)
	assert.False(t, v.IsValid(tok, nil))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   anonymousSub,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.False(t, v.IsValid(unsigned, nil))
}
