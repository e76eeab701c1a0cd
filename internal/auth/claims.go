package auth

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ClaimValidator enforces issuer, audience, expiry and required claims on
// claims that already passed signature verification.
type ClaimValidator struct {
	issuer   string
	audience string
	logger   *zap.Logger
	now      func() time.Time
}

// NewClaimValidator builds a validator bound to the given issuer and audience.
func NewClaimValidator(issuer, audience string, logger *zap.Logger) *ClaimValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimValidator{issuer: issuer, audience: audience, logger: logger, now: time.Now}
}

// Validate returns ErrInvalidClaims on the first failing check. Only the log
// records which check failed.
func (v *ClaimValidator) Validate(claims jwt.MapClaims) error {
	if iss, _ := claims[ClaimIssuer].(string); iss != v.issuer {
		return v.reject("issuer mismatch")
	}
	if !v.audienceMatches(claims) {
		return v.reject("audience mismatch")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return v.reject("expiry missing")
	}
	if exp.Unix()*1000 < v.now().UnixMilli() {
		return v.reject("token expired")
	}

	for _, name := range []string{ClaimSubject, ClaimName, ClaimUpstreamToken} {
		if s, ok := claims[name].(string); !ok || s == "" {
			return v.reject("missing claim " + name)
		}
	}
	return nil
}

// audienceMatches requires aud to be exactly the configured audience; a list
// naming other audiences too is rejected.
func (v *ClaimValidator) audienceMatches(claims jwt.MapClaims) bool {
	aud, err := claims.GetAudience()
	if err != nil || len(aud) != 1 {
		return false
	}
	return aud[0] == v.audience
}

func (v *ClaimValidator) reject(reason string) error {
	v.logger.Warn("claim validation failed", zap.String("reason", reason))
	return ErrInvalidClaims
}
