package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

const identityKey = "auth_identity"

type identityCtxKey struct{}

// Identity is the authenticated caller for the lifetime of one request.
// Only the Resolver constructs it.
type Identity struct {
	subjectID           string
	displayName         string
	upstreamAccessToken string
}

func newIdentity(subjectID, displayName, upstreamAccessToken string) *Identity {
	return &Identity{
		subjectID:           subjectID,
		displayName:         displayName,
		upstreamAccessToken: upstreamAccessToken,
	}
}

// SubjectID returns the opaque user identifier.
func (i *Identity) SubjectID() string { return i.subjectID }

// DisplayName returns the user's display name.
func (i *Identity) DisplayName() string { return i.displayName }

// UpstreamAccessToken returns the credential for calling the music API on the user's behalf.
func (i *Identity) UpstreamAccessToken() string { return i.upstreamAccessToken }

func withIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the identity attached by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(*Identity)
	return id, ok && id != nil
}

// IdentityFromFiber retrieves the identity from fiber locals.
func IdentityFromFiber(c *fiber.Ctx) (*Identity, bool) {
	val := c.Locals(identityKey)
	if val == nil {
		return nil, false
	}
	id, ok := val.(*Identity)
	return id, ok
}
