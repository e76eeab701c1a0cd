package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// Claim names carried by issued tokens.
const (
	ClaimSubject       = "sub"
	ClaimName          = "name"
	ClaimUpstreamToken = "upstream_access_token"
	ClaimIssuer        = "iss"
	ClaimAudience      = "aud"
	ClaimExpiry        = "exp"
	ClaimIssuedAt      = "iat"
)

const (
	minSecretLength = 32
	signingKeyInfo  = "playlist-gateway/token-signing/v1"
)

// TokenConfig is the process-wide, read-only token configuration.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// TokenCodec issues and verifies HS256 signed tokens.
type TokenCodec struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenCodec derives the signing key from cfg.Secret. It fails when the
// secret is missing or too short to be used as an HMAC key.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("%w: secret is empty", ErrSigningKey)
	}
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", ErrSigningKey, minSecretLength)
	}
	key, err := deriveSigningKey(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenCodec{
		key:      key,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func deriveSigningKey(secret string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(signingKeyInfo))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Issuer returns the configured issuer.
func (c *TokenCodec) Issuer() string { return c.issuer }

// Audience returns the configured audience.
func (c *TokenCodec) Audience() string { return c.audience }

// Issue signs a copy of claims after stamping iss, aud, iat and exp.
func (c *TokenCodec) Issue(claims jwt.MapClaims) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)

	payload := make(jwt.MapClaims, len(claims)+4)
	for k, v := range claims {
		payload[k] = v
	}
	payload[ClaimIssuer] = c.issuer
	payload[ClaimAudience] = c.audience
	payload[ClaimIssuedAt] = now.Unix()
	payload[ClaimExpiry] = expiresAt.Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify decodes tokenStr and checks its signature and expiry. Failures are
// reported as *TokenError.
func (c *TokenCodec) Verify(tokenStr string) (jwt.MapClaims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, newTokenError(TokenEmpty, "token is empty")
	}

	parser := jwt.NewParser(jwt.WithTimeFunc(c.now))

	// Expiry wins over signature and algorithm problems, so look at the
	// unverified claims first. An unknown alg still yields decoded claims.
	unverified, _, err := parser.ParseUnverified(tokenStr, jwt.MapClaims{})
	unverifiable := errors.Is(err, jwt.ErrTokenUnverifiable)
	if err != nil && !unverifiable {
		return nil, newTokenError(TokenMalformed, "token is malformed")
	}
	exp, expErr := unverified.Claims.GetExpirationTime()
	if expErr != nil {
		return nil, newTokenError(TokenMalformed, "exp claim is not a number")
	}
	if exp != nil && !c.now().Before(exp.Time) {
		return nil, newTokenError(TokenExpired, "token has expired")
	}
	if unverifiable {
		return nil, newTokenError(TokenUnsupported, "signing method unavailable")
	}
	if unverified.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, newTokenError(TokenUnsupported, "signing method "+unverified.Method.Alg()+" not accepted")
	}

	parsed, err := parser.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, newTokenError(TokenUnexpected, "token could not be validated")
	}
	return claims, nil
}

func classifyParseError(err error) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newTokenError(TokenBadSignature, "signature does not match")
	case errors.Is(err, jwt.ErrTokenExpired):
		return newTokenError(TokenExpired, "token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newTokenError(TokenMalformed, "token is malformed")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return newTokenError(TokenUnsupported, "token cannot be verified")
	default:
		return newTokenError(TokenUnexpected, "token rejected")
	}
}
