package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"pixelpilot/internal/clock"
)

const (
	tokenIssuer       = "pixelpilot"
	defaultSessionTTL = 30 * 24 * time.Hour
)

var errTokenSubjectMismatch = errors.New("session token subject mismatch")

// tokenCodec signs and verifies the session token embedded in the persisted
// auth blob. HS256 with a local secret: the token does not cross a trust
// boundary, it only lets rehydration reject a tampered blob.
type tokenCodec struct {
	secret []byte
	ttl    time.Duration
	clk    clock.Clock
}

func newTokenCodec(secret []byte, ttl time.Duration, clk clock.Clock) *tokenCodec {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &tokenCodec{secret: secret, ttl: ttl, clk: clk}
}

func (c *tokenCodec) issue(phone string) (string, error) {
	now := c.clk.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   phone,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// verify parses the token and checks it was issued for phone.
func (c *tokenCodec) verify(token, phone string) error {
	parsed, err := jwt.ParseWithClaims(
		token,
		&jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(c.clk.Now),
	)
	if err != nil {
		return err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != phone {
		return errTokenSubjectMismatch
	}
	return nil
}
