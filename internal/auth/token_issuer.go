package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = time.Hour

	tokenIssuer   = "platespot-auth"
	tokenAudience = "platespot-api"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// TokenIssuerConfig configures the backend JWT issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues backend JWTs after Telegram init data verification, so
// that clients do not resend the init data payload on every call.
type TokenIssuer struct {
	signingSecret []byte
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		tokenTTL:      ttl,
		clock:         clock,
	}
}

// IssueToken produces a signed JWT and its expiry (seconds) for the verified player.
func (i *TokenIssuer) IssueToken(_ context.Context, playerID int64) (string, int64, error) {
	if len(i.signingSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if playerID <= 0 {
		return "", 0, errMissingSubjectClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.tokenTTL)

	registered := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(playerID, 10),
		Issuer:    tokenIssuer,
		Audience:  []string{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registered)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the backend JWT is well formed and returns the player id.
func (i *TokenIssuer) ValidateToken(tokenString string) (int64, error) {
	if len(i.signingSecret) == 0 {
		return 0, errMissingSigningSecret
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return 0, err
	}

	playerID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || playerID <= 0 {
		return 0, errMissingSubjectClaim
	}
	return playerID, nil
}
