package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/playlist-gateway/internal/session"
)

type failingSessions struct{}

func (failingSessions) GetHash(context.Context, string) (map[string]string, error) {
	return nil, errors.Join(session.ErrUnavailable, errors.New("connection refused"))
}

type resolverFixture struct {
	mr       *miniredis.Miniredis
	codec    *TokenCodec
	resolver *Resolver
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	codec := newTestCodec(t, testSecret)
	validator := NewClaimValidator(testIssuer, testAudience, nil)
	return &resolverFixture{
		mr:       mr,
		codec:    codec,
		resolver: NewResolver(session.NewStore(client), codec, validator, nil),
	}
}

func (f *resolverFixture) seedSession(id, subjectID, displayName, upstreamToken string) {
	f.mr.HSet(session.Key(id),
		session.FieldSubjectID, subjectID,
		session.FieldDisplayName, displayName,
		session.FieldUpstreamAccessToken, upstreamToken)
}

func requireAuthErrorKind(t *testing.T, err error, kind AuthErrorKind) *AuthenticationError {
	t.Helper()
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr), "expected *AuthenticationError, got %v", err)
	assert.Equal(t, kind, authErr.Kind)
	return authErr
}

func TestResolveSessionCookie(t *testing.T) {
	f := newResolverFixture(t)
	f.seedSession("s1", "u1", "N", "t")

	id, err := f.resolver.Resolve(context.Background(), SessionEvidence("s1"))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.SubjectID())
	assert.Equal(t, "N", id.DisplayName())
	assert.Equal(t, "t", id.UpstreamAccessToken())
}

func TestResolveUnknownSession(t *testing.T) {
	f := newResolverFixture(t)
	f.seedSession("s1", "u1", "N", "t")

	id, err := f.resolver.Resolve(context.Background(), SessionEvidence("s2"))
	assert.Nil(t, id)
	authErr := requireAuthErrorKind(t, err, Unauthorized)
	assert.Contains(t, authErr.Message, "please log in again")
}

func TestResolveExpiredSession(t *testing.T) {
	f := newResolverFixture(t)
	f.seedSession("s1", "u1", "N", "t")
	f.mr.SetTTL(session.Key("s1"), time.Minute)
	f.mr.FastForward(2 * time.Minute)

	_, err := f.resolver.Resolve(context.Background(), SessionEvidence("s1"))
	requireAuthErrorKind(t, err, Unauthorized)
}

func TestResolveIncompleteSession(t *testing.T) {
	f := newResolverFixture(t)
	f.mr.HSet(session.Key("s1"), session.FieldDisplayName, "N")

	_, err := f.resolver.Resolve(context.Background(), SessionEvidence("s1"))
	requireAuthErrorKind(t, err, Unauthorized)
}

func TestResolveStoreUnavailable(t *testing.T) {
	codec := newTestCodec(t, testSecret)
	r := NewResolver(failingSessions{}, codec, NewClaimValidator(testIssuer, testAudience, nil), nil)

	_, err := r.Resolve(context.Background(), SessionEvidence("s1"))
	authErr := requireAuthErrorKind(t, err, InternalError)
	assert.ErrorIs(t, authErr, session.ErrUnavailable)
}

func TestResolveBearerToken(t *testing.T) {
	f := newResolverFixture(t)
	token, _, err := f.codec.Issue(userClaims())
	require.NoError(t, err)

	id, err := f.resolver.Resolve(context.Background(), BearerEvidence(token))
	require.NoError(t, err)
	assert.Equal(t, "u1", id.SubjectID())
	assert.Equal(t, "N", id.DisplayName())
	assert.Equal(t, "t", id.UpstreamAccessToken())
}

func TestResolveBearerTokenErrors(t *testing.T) {
	f := newResolverFixture(t)

	_, err := f.resolver.Resolve(context.Background(), BearerEvidence(""))
	authErr := requireAuthErrorKind(t, err, Unauthorized)
	assert.Equal(t, "invalid token: empty", authErr.Message)

	f.codec.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	expired, _, err := f.codec.Issue(userClaims())
	require.NoError(t, err)
	f.codec.now = time.Now

	_, err = f.resolver.Resolve(context.Background(), BearerEvidence(expired))
	authErr = requireAuthErrorKind(t, err, Unauthorized)
	assert.Equal(t, "invalid token: expired", authErr.Message)
}

func TestResolveBearerInvalidClaims(t *testing.T) {
	f := newResolverFixture(t)
	token, _, err := f.codec.Issue(claimsWith("u1", "", "t"))
	require.NoError(t, err)

	_, err = f.resolver.Resolve(context.Background(), BearerEvidence(token))
	authErr := requireAuthErrorKind(t, err, Unauthorized)
	assert.Equal(t, "invalid claims", authErr.Message)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestResolveWrongAudience(t *testing.T) {
	f := newResolverFixture(t)
	other, err := NewTokenCodec(TokenConfig{Secret: testSecret, Issuer: testIssuer, Audience: "mobile"})
	require.NoError(t, err)
	token, _, err := other.Issue(userClaims())
	require.NoError(t, err)

	_, err = f.resolver.Resolve(context.Background(), BearerEvidence(token))
	authErr := requireAuthErrorKind(t, err, Unauthorized)
	assert.Equal(t, "invalid claims", authErr.Message)
}

func TestResolveAnonymous(t *testing.T) {
	f := newResolverFixture(t)
	id, err := f.resolver.Resolve(context.Background(), NoEvidence())
	assert.NoError(t, err)
	assert.Nil(t, id)
}

func TestResolveSessionCheckedBeforeBearer(t *testing.T) {
	f := newResolverFixture(t)
	f.seedSession("s1", "from-session", "N", "t")
	token, _, err := f.codec.Issue(userClaims())
	require.NoError(t, err)

	id, err := f.resolver.Resolve(context.Background(), ExtractEvidence("s1", "Bearer "+token))
	require.NoError(t, err)
	assert.Equal(t, "from-session", id.SubjectID())
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newResolverFixture(t)
	f.seedSession("s1", "u1", "N", "t")

	first, err := f.resolver.Resolve(context.Background(), SessionEvidence("s1"))
	require.NoError(t, err)
	second, err := f.resolver.Resolve(context.Background(), SessionEvidence("s1"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
	assert.True(t, f.mr.Exists(session.Key("s1")))
}

func claimsWith(sub, name, upstreamToken string) jwt.MapClaims {
	return jwt.MapClaims{
		ClaimSubject:       sub,
		ClaimName:          name,
		ClaimUpstreamToken: upstreamToken,
	}
}
