package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/numberpool/pkg/config"
)

const clockSkew = 30 * time.Second

var (
	ErrMissingSecret  = errors.New("jwt secret is required")
	ErrMissingAccount = errors.New("token missing account id")
)

// Signer mints and verifies HS256 account tokens for one issuer.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("jwt issuer is required")
	}
	if cfg.ExpirationMinutes <= 0 {
		return nil, errors.New("jwt expiration minutes must be positive")
	}
	return &Signer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
	}, nil
}

// Mint issues a token for accountID valid from now for the configured TTL.
func (s *Signer) Mint(now time.Time, accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", ErrMissingAccount
	}
	claims := Claims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the account id.
func (s *Signer) Verify(token string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return "", err
	}
	accountID := strings.TrimSpace(claims.AccountID)
	if accountID == "" {
		accountID = strings.TrimSpace(claims.Subject)
	}
	if accountID == "" {
		return "", ErrMissingAccount
	}
	return accountID, nil
}
