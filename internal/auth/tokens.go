// Package auth issues and verifies bearer tokens and hashes passwords.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Config defines token parameters parsed from environment variables
type Config struct {
	Secret   string        `env:"JWT_SECRET,required"`
	Issuer   string        `env:"JWT_ISSUER" envDefault:"market-chat"`
	Audience string        `env:"JWT_AUDIENCE" envDefault:"market-chat-api"`
	TTL      time.Duration `env:"JWT_TTL" envDefault:"24h"`
	Leeway   time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`
}

// Claims is the verified content of a token
type Claims struct {
	UserID    int64
	ID        string
	ExpiresAt time.Time
}

// Tokens issues HS256 JWTs whose subject is the user id
type Tokens struct {
	cfg     Config
	revoker Revoker
	now     func() time.Time
}

func NewTokens(cfg Config, revoker Revoker) (*Tokens, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	return &Tokens{
		cfg:     cfg,
		revoker: revoker,
		now:     time.Now,
	}, nil
}

// Issue returns a signed token for user
func (t *Tokens) Issue(user int64) (string, error) {
	now := t.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user, 10),
		Issuer:    t.cfg.Issuer,
		Audience:  jwt.ClaimStrings{t.cfg.Audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.TTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        xid.New().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, registered claims and revocation of token
func (t *Tokens) Verify(ctx context.Context, token string) (Claims, error) {
	var claims jwt.RegisteredClaims

	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(t.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(t.cfg.Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(t.cfg.Leeway),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}

	user, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || user < 1 {
		return Claims{}, ErrInvalidToken
	}

	revoked, err := t.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return Claims{}, ErrTokenRevoked
	}

	return Claims{
		UserID:    user,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke invalidates the token described by claims until it expires
func (t *Tokens) Revoke(ctx context.Context, claims Claims) error {
	ttl := claims.ExpiresAt.Sub(t.now()) + t.cfg.Leeway
	return t.revoker.Revoke(ctx, claims.ID, ttl)
}
