package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/playlist-gateway/pkg/util/errorutil"
)

// OutcomeRecorder counts resolution outcomes.
type OutcomeRecorder interface {
	RecordAuth(outcome string)
}

// AuthMiddleware resolves the caller of every request.
type AuthMiddleware struct {
	resolver   *Resolver
	cookieName string
	metrics    OutcomeRecorder
	logger     *zap.Logger
}

// NewAuthMiddleware constructs middleware reading the session id from cookieName.
func NewAuthMiddleware(resolver *Resolver, cookieName string, metrics OutcomeRecorder, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{resolver: resolver, cookieName: cookieName, metrics: metrics, logger: logger}
}

// Handle attaches the resolved Identity to the request, lets anonymous
// requests through, and answers failures itself with {"error": message}.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	ev := ExtractEvidence(c.Cookies(m.cookieName), c.Get(fiber.HeaderAuthorization))

	identity, err := m.resolver.Resolve(c.UserContext(), ev)
	if err != nil {
		status := fiber.StatusUnauthorized
		message := "unauthorized"
		outcome := "rejected"

		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			message = authErr.Message
			if authErr.Kind == InternalError {
				status = fiber.StatusInternalServerError
				outcome = "error"
			}
		}
		m.record(outcome)
		m.logger.Debug("authentication failed",
			zap.String("evidence", ev.Kind.String()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": message})
	}

	if identity == nil {
		m.record("anonymous")
		return c.Next()
	}

	m.record(ev.Kind.String())
	c.Locals(identityKey, identity)
	c.SetUserContext(withIdentity(c.UserContext(), identity))
	return c.Next()
}

func (m *AuthMiddleware) record(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordAuth(outcome)
	}
}

// RequireIdentity rejects anonymous requests on protected routes.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := IdentityFromFiber(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
