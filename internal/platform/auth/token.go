package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs HS256 tokens for password logins.
type Issuer struct {
	Key      []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	now      func() time.Time
}

func NewIssuer(key []byte, issuer, audience string, ttl time.Duration) *Issuer {
	return &Issuer{Key: key, Issuer: issuer, Audience: audience, TTL: ttl, now: time.Now}
}

// Issue returns a signed token for subject and its expiry.
func (i *Issuer) Issue(subject, name string) (string, time.Time, error) {
	if len(i.Key) == 0 {
		return "", time.Time{}, fmt.Errorf("token signing key is not configured")
	}
	now := i.now()
	exp := now.Add(i.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name: name,
	}
	if i.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}
