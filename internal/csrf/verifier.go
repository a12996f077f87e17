// Package csrf issues and validates anti-forgery tokens bound to the acting user.
package csrf

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	audience       = "csrf"
	anonymousSub   = "anonymous"
	userSubPrefix  = "user:"
	maxTokenLength = 1024
)

var ErrSecretTooShort = errors.New("csrf secret must be at least 32 bytes")

// Verifier signs tokens with HMAC-SHA256. A token minted for one identity
// (a user id, or anonymous) is rejected for every other identity.
type Verifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewVerifier(secret string, ttl time.Duration) (*Verifier, error) {
	if len(secret) < 32 {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Verifier{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func subjectFor(userID *int64) string {
	if userID == nil {
		return anonymousSub
	}
	return userSubPrefix + strconv.FormatInt(*userID, 10)
}

// Issue returns a token for the given acting user (nil for anonymous) and its expiry.
func (v *Verifier) Issue(userID *int64) (string, time.Time, error) {
	now := v.now()
	exp := now.Add(v.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subjectFor(userID),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IsValid fails closed: empty, oversized, expired, tampered or foreign tokens are invalid.
func (v *Verifier) IsValid(token string, userID *int64) bool {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLength {
		return false
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	return claims.Subject == subjectFor(userID)
}
