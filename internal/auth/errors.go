package auth

import (
	"errors"
	"fmt"
)

// TokenErrorKind classifies why a token could not be decoded.
type TokenErrorKind string

const (
	TokenExpired      TokenErrorKind = "expired"
	TokenBadSignature TokenErrorKind = "bad_signature"
	TokenMalformed    TokenErrorKind = "malformed"
	TokenUnsupported  TokenErrorKind = "unsupported"
	TokenEmpty        TokenErrorKind = "empty"
	TokenUnexpected   TokenErrorKind = "unexpected"
)

// TokenError is returned by TokenCodec.Verify. It carries only the kind and a
// short message; the underlying parser error is never exposed.
type TokenError struct {
	Kind    TokenErrorKind
	Message string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newTokenError(kind TokenErrorKind, message string) *TokenError {
	return &TokenError{Kind: kind, Message: message}
}

// ErrInvalidClaims is the single rejection returned by the claim validator.
var ErrInvalidClaims = errors.New("invalid claims")

// ErrSigningKey is returned at construction when the signing secret is unusable.
var ErrSigningKey = errors.New("signing key unavailable")

// AuthErrorKind distinguishes bad credentials from infrastructure failures.
type AuthErrorKind string

const (
	Unauthorized  AuthErrorKind = "unauthorized"
	InternalError AuthErrorKind = "internal_error"
)

// AuthenticationError is the resolver-level failure.
type AuthenticationError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

func unauthorized(message string, err error) *AuthenticationError {
	return &AuthenticationError{Kind: Unauthorized, Message: message, Err: err}
}

func internalError(message string, err error) *AuthenticationError {
	return &AuthenticationError{Kind: InternalError, Message: message, Err: err}
}
