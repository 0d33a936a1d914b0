// Package token issues and validates the service's signed access and
// refresh tokens.
//
// Both token classes are HS256 JWTs signed with the same secret. Each token
// carries a unique id (jti) and a type claim so a refresh token can never be
// presented where an access token is expected. Revocation is an external
// blocklist keyed by jti; entries live exactly as long as the token class.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type tags a token as access or refresh.
type Type string

const (
	Access  Type = "access"
	Refresh Type = "refresh"
)

// ParseType converts a raw type claim, reporting false for unknown values.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case Access, Refresh:
		return Type(s), true
	}
	return "", false
}

var (
	ErrMalformed   = errors.New("token malformed")
	ErrExpired     = errors.New("token expired")
	ErrRevoked     = errors.New("token revoked")
	ErrUnavailable = errors.New("token blocklist unavailable")
)

// Identity is what a token asserts about its bearer.
type Identity struct {
	UserID string
	Email  string
}

// Claims is the JWT payload. Subject holds the user id.
type Claims struct {
	Type  Type   `json:"type"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the bearer described by the claims.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Email: c.Email}
}

// Pair is an access token together with its refresh token.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// Blocklist records revoked token ids.
type Blocklist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// Config carries the signing parameters.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Engine struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	blocklist  Blocklist
	now        func() time.Time
}

func NewEngine(cfg Config, blocklist Blocklist) *Engine {
	return &Engine{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		blocklist:  blocklist,
		now:        time.Now,
	}
}

// TTL returns the configured lifetime of a token class.
func (e *Engine) TTL(t Type) (time.Duration, error) {
	switch t {
	case Access:
		return e.accessTTL, nil
	case Refresh:
		return e.refreshTTL, nil
	}
	return 0, fmt.Errorf("%w: unknown token type %q", ErrMalformed, t)
}

// Issue signs a fresh access/refresh pair for id. It does not touch any
// store.
func (e *Engine) Issue(id Identity) (Pair, error) {
	if id.UserID == "" {
		return Pair{}, errors.New("issue token: empty subject")
	}
	now := e.now().UTC()
	access, accessExp, err := e.sign(id, Access, now)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := e.sign(id, Refresh, now)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *Engine) sign(id Identity, t Type, now time.Time) (string, time.Time, error) {
	ttl, err := e.TTL(t)
	if err != nil {
		return "", time.Time{}, err
	}
	exp := now.Add(ttl)
	claims := Claims{
		Type:  t,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			Issuer:    e.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", t, err)
	}
	return signed, exp, nil
}

// Validate checks signature, expiry and the blocklist, in that order.
// A blocklist failure yields ErrUnavailable: the token is never accepted
// when revocation status is unknown.
func (e *Engine) Validate(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMalformed
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(e.now),
	}
	if e.issuer != "" {
		opts = append(opts, jwt.WithIssuer(e.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return e.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrMalformed
	}
	if _, ok := ParseType(string(claims.Type)); !ok {
		return nil, ErrMalformed
	}

	revoked, err := e.blocklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// ValidateAccess is Validate restricted to access tokens.
func (e *Engine) ValidateAccess(ctx context.Context, raw string) (*Claims, error) {
	return e.validateType(ctx, raw, Access)
}

// ValidateRefresh is Validate restricted to refresh tokens.
func (e *Engine) ValidateRefresh(ctx context.Context, raw string) (*Claims, error) {
	return e.validateType(ctx, raw, Refresh)
}

func (e *Engine) validateType(ctx context.Context, raw string, want Type) (*Claims, error) {
	claims, err := e.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token, got %s", ErrMalformed, want, claims.Type)
	}
	return claims, nil
}

// Revoke blocklists jti for the lifetime of its token class. Revoking an
// already revoked jti succeeds.
func (e *Engine) Revoke(ctx context.Context, jti string, t Type) error {
	if jti == "" {
		return ErrMalformed
	}
	ttl, err := e.TTL(t)
	if err != nil {
		return err
	}
	if err := e.blocklist.Add(ctx, jti, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
