package auth

import (
	"context"
	"errors"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/playlist-gateway/internal/session"
)

// SessionReader is the read side of the session store.
type SessionReader interface {
	GetHash(ctx context.Context, key string) (map[string]string, error)
}

// TokenVerifier decodes and verifies signed tokens.
type TokenVerifier interface {
	Verify(token string) (jwt.MapClaims, error)
}

// ClaimsValidator enforces the semantic contract on verified claims.
type ClaimsValidator interface {
	Validate(claims jwt.MapClaims) error
}

// Resolver decides whether a request is authenticated and as whom.
type Resolver struct {
	sessions SessionReader
	tokens   TokenVerifier
	claims   ClaimsValidator
	logger   *zap.Logger
}

// NewResolver wires the resolver's collaborators.
func NewResolver(sessions SessionReader, tokens TokenVerifier, claims ClaimsValidator, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{sessions: sessions, tokens: tokens, claims: claims, logger: logger}
}

// Resolve turns evidence into an Identity. A nil Identity with a nil error
// means the request is anonymous. Failures are *AuthenticationError.
func (r *Resolver) Resolve(ctx context.Context, ev Evidence) (*Identity, error) {
	switch ev.Kind {
	case EvidenceSession:
		return r.fromSession(ctx, ev.Value)
	case EvidenceBearer:
		return r.fromBearer(ev.Value)
	default:
		return nil, nil
	}
}

func (r *Resolver) fromSession(ctx context.Context, id string) (*Identity, error) {
	fields, err := r.sessions.GetHash(ctx, session.Key(id))
	if err != nil {
		r.logger.Error("session lookup failed", zap.Error(err))
		return nil, internalError("authentication service unavailable", err)
	}
	if len(fields) == 0 {
		return nil, unauthorized("session expired or invalid, please log in again", nil)
	}

	subjectID := fields[session.FieldSubjectID]
	upstreamToken := fields[session.FieldUpstreamAccessToken]
	if subjectID == "" || upstreamToken == "" {
		r.logger.Warn("incomplete session record", zap.Strings("fields", fieldNames(fields)))
		return nil, unauthorized("session expired or invalid, please log in again", nil)
	}
	return newIdentity(subjectID, fields[session.FieldDisplayName], upstreamToken), nil
}

func (r *Resolver) fromBearer(token string) (*Identity, error) {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		var tokenErr *TokenError
		if errors.As(err, &tokenErr) {
			return nil, unauthorized(fmt.Sprintf("invalid token: %s", tokenErr.Kind), tokenErr)
		}
		return nil, unauthorized(fmt.Sprintf("invalid token: %s", TokenUnexpected), err)
	}
	if err := r.claims.Validate(claims); err != nil {
		return nil, unauthorized("invalid claims", err)
	}

	subjectID, _ := claims[ClaimSubject].(string)
	name, _ := claims[ClaimName].(string)
	upstreamToken, _ := claims[ClaimUpstreamToken].(string)
	return newIdentity(subjectID, name, upstreamToken), nil
}

func fieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	return names
}
