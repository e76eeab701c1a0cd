package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/playlist-gateway/internal/auth"
	"github.com/spec-kit/playlist-gateway/internal/config"
	"github.com/spec-kit/playlist-gateway/internal/domain"
	"github.com/spec-kit/playlist-gateway/internal/events"
	"github.com/spec-kit/playlist-gateway/internal/retry"
	"github.com/spec-kit/playlist-gateway/internal/session"
	"github.com/spec-kit/playlist-gateway/internal/upstream"
	apperrors "github.com/spec-kit/playlist-gateway/pkg/util/errorutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubProfiles struct {
	mu      sync.Mutex
	calls   int
	results []func() (*upstream.Profile, error)
}

func (s *stubProfiles) CurrentUser(context.Context, string) (*upstream.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	return s.results[idx]()
}

func profileOf(id, name string) func() (*upstream.Profile, error) {
	return func() (*upstream.Profile, error) {
		return &upstream.Profile{ID: id, DisplayName: name, Email: id + "@example.com"}, nil
	}
}

func failWith(err error) func() (*upstream.Profile, error) {
	return func() (*upstream.Profile, error) { return nil, err }
}

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
	err   error
}

func (m *memoryUsers) Upsert(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.users == nil {
		m.users = map[string]domain.User{}
	}
	user.LastLoginAt = time.Now()
	m.users[user.SubjectID] = *user
	return nil
}

func (m *memoryUsers) GetBySubjectID(_ context.Context, subjectID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	user, ok := m.users[subjectID]
	if !ok {
		return nil, errNoUser
	}
	return &user, nil
}

var errNoUser = errors.New("no user")

type authFixture struct {
	mr       *miniredis.Miniredis
	store    *session.Store
	codec    *auth.TokenCodec
	profiles *stubProfiles
	users    *memoryUsers
	events   []events.Event
	service  *AuthService
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:         testSecret,
			Issuer:            "playlist-gateway",
			Audience:          "playlist-gateway-clients",
			TokenTTLSeconds:   3600,
			SessionCookieName: "SESSION_ID",
			SessionTTLSeconds: 600,
		},
		Upstream: config.UpstreamConfig{MaxRetries: 2, InitialIntervalMillis: 10},
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newAuthFixture(t *testing.T, results ...func() (*upstream.Profile, error)) *authFixture {
	t.Helper()
	cfg := testConfig()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.TokenTTL(),
	})
	require.NoError(t, err)

	f := &authFixture{
		mr:       mr,
		store:    session.NewStore(client),
		codec:    codec,
		profiles: &stubProfiles{results: results},
		users:    &memoryUsers{},
	}
	dispatcher := events.NewInMemoryDispatcher()
	record := func(_ context.Context, e events.Event) error {
		f.events = append(f.events, e)
		return nil
	}
	dispatcher.Subscribe(events.EventUserLoggedIn, record)
	dispatcher.Subscribe(events.EventUserLoggedOut, record)
	dispatcher.Subscribe(events.EventSessionReplaced, record)

	f.service = NewAuthService(cfg, AuthDependencies{
		Sessions: f.store,
		Tokens:   codec,
		Profiles: f.profiles,
		Users:    f.users,
		Events:   dispatcher,
		Executor: retry.NewExecutor(nil, retry.WithSleeper(noSleep)),
	})
	return f
}

func (f *authFixture) eventTypes() []events.EventType {
	types := make([]events.EventType, 0, len(f.events))
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	return types
}

func requireDomainError(t *testing.T, err error, code string, status int) *apperrors.DomainError {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected *DomainError, got %v", err)
	assert.Equal(t, code, domainErr.Code)
	assert.Equal(t, status, domainErr.HTTPStatus)
	return domainErr
}

func TestLoginCreatesSessionAndToken(t *testing.T) {
	f := newAuthFixture(t, profileOf("u1", "N"))

	result, err := f.service.Login(context.Background(), "up-token")
	require.NoError(t, err)
	assert.Equal(t, "u1", result.SubjectID)
	assert.Equal(t, "N", result.DisplayName)
	assert.NotEmpty(t, result.SessionID)

	key := session.Key(result.SessionID)
	assert.Equal(t, "u1", f.mr.HGet(key, session.FieldSubjectID))
	assert.Equal(t, "N", f.mr.HGet(key, session.FieldDisplayName))
	assert.Equal(t, "up-token", f.mr.HGet(key, session.FieldUpstreamAccessToken))
	assert.Equal(t, 10*time.Minute, f.mr.TTL(key))

	pointer, err := f.mr.Get(session.UserKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, result.SessionID, pointer)

	claims, err := f.codec.Verify(result.Token)
	require.NoError(t, err)
	validator := auth.NewClaimValidator(f.codec.Issuer(), f.codec.Audience(), nil)
	require.NoError(t, validator.Validate(claims))
	assert.Equal(t, "u1", claims[auth.ClaimSubject])
	assert.Equal(t, "up-token", claims[auth.ClaimUpstreamToken])
	assert.WithinDuration(t, time.Now().Add(time.Hour), result.ExpiresAt, 5*time.Second)

	assert.Contains(t, f.users.users, "u1")
	assert.Equal(t, []events.EventType{events.EventUserLoggedIn}, f.eventTypes())
}

func TestLoginSessionResolvesThroughResolver(t *testing.T) {
	f := newAuthFixture(t, profileOf("u1", "N"))
	result, err := f.service.Login(context.Background(), "up-token")
	require.NoError(t, err)

	resolver := auth.NewResolver(f.store, f.codec, auth.NewClaimValidator(f.codec.Issuer(), f.codec.Audience(), nil), nil)

	fromSession, err := resolver.Resolve(context.Background(), auth.SessionEvidence(result.SessionID))
	require.NoError(t, err)
	fromToken, err := resolver.Resolve(context.Background(), auth.BearerEvidence(result.Token))
	require.NoError(t, err)
	assert.Equal(t, fromSession, fromToken)
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	f := newAuthFixture(t, profileOf("u1", "N"))

	first, err := f.service.Login(context.Background(), "t1")
	require.NoError(t, err)
	second, err := f.service.Login(context.Background(), "t2")
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.False(t, f.mr.Exists(session.Key(first.SessionID)))
	assert.True(t, f.mr.Exists(session.Key(second.SessionID)))

	pointer, err := f.mr.Get(session.UserKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, pointer)

	assert.Equal(t, []events.EventType{
		events.EventUserLoggedIn,
		events.EventSessionReplaced,
		events.EventUserLoggedIn,
	}, f.eventTypes())
	payload, ok := f.events[1].Payload.(events.SessionReplacedPayload)
	require.True(t, ok)
	assert.Equal(t, events.SessionFingerprint(first.SessionID), payload.PreviousSession)
	assert.NotContains(t, payload.PreviousSession, first.SessionID)
}

func TestLoginRequiresAccessToken(t *testing.T) {
	f := newAuthFixture(t, profileOf("u1", "N"))

	_, err := f.service.Login(context.Background(), "")
	requireDomainError(t, err, "VALIDATION_FAILED", 400)
	assert.Zero(t, f.profiles.calls)
}

func TestLoginRetriesThrottledUpstream(t *testing.T) {
	f := newAuthFixture(t,
		failWith(&retry.ThrottledError{RetryAfter: "1"}),
		profileOf("u1", "N"))

	result, err := f.service.Login(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "u1", result.SubjectID)
	assert.Equal(t, 2, f.profiles.calls)
}

func TestLoginThrottledBeyondBudget(t *testing.T) {
	f := newAuthFixture(t, failWith(&retry.ThrottledError{RetryAfter: "4"}))

	_, err := f.service.Login(context.Background(), "t")
	domainErr := requireDomainError(t, err, "UPSTREAM_THROTTLED", 429)
	assert.Equal(t, "4", domainErr.Details["retry_after"])
	assert.Equal(t, 3, f.profiles.calls)
	assert.Empty(t, f.mr.Keys())
}

func TestLoginUpstreamRejectsToken(t *testing.T) {
	f := newAuthFixture(t, failWith(upstream.ErrUnauthorized))

	_, err := f.service.Login(context.Background(), "t")
	requireDomainError(t, err, "UNAUTHORIZED", 401)
	assert.Equal(t, 1, f.profiles.calls)
}

func TestLoginUpstreamFailure(t *testing.T) {
	f := newAuthFixture(t, failWith(&upstream.StatusError{StatusCode: 503}))

	_, err := f.service.Login(context.Background(), "t")
	domainErr := requireDomainError(t, err, "UPSTREAM_ERROR", 502)
	assert.Equal(t, 503, domainErr.Details["upstream_status"])
}

func TestLoginSurvivesUserDirectoryFailure(t *testing.T) {
	f := newAuthFixture(t, profileOf("u1", "N"))
	f.users.err = errors.New("db down")

	_, err := f.service.Login(context.Background(), "t")
	assert.NoError(t, err)
}

func TestLoginStoreUnavailable(t *testing.T) {
	f := newAuthFixture(t, profileOf("u1", "N"))
	f.mr.SetError("ERR store offline")

	_, err := f.service.Login(context.Background(), "t")
	requireDomainError(t, err, "SERVICE_UNAVAILABLE", 503)
}

func TestLogoutDeletesSession(t *testing.T) {
	f := newAuthFixture(t, profileOf("u1", "N"))
	result, err := f.service.Login(context.Background(), "t")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), result.SessionID))
	assert.False(t, f.mr.Exists(session.Key(result.SessionID)))
	assert.False(t, f.mr.Exists(session.UserKey("u1")))
	assert.Equal(t, events.EventUserLoggedOut, f.events[len(f.events)-1].Type)
}

func TestLogoutOfReplacedSessionKeepsCurrentPointer(t *testing.T) {
	f := newAuthFixture(t, profileOf("u1", "N"))
	first, err := f.service.Login(context.Background(), "t1")
	require.NoError(t, err)
	second, err := f.service.Login(context.Background(), "t2")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), first.SessionID))

	pointer, err := f.mr.Get(session.UserKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, pointer)
}

func TestLogoutUnknownOrEmptySessionIsNoop(t *testing.T) {
	f := newAuthFixture(t, profileOf("u1", "N"))

	assert.NoError(t, f.service.Logout(context.Background(), ""))
	assert.NoError(t, f.service.Logout(context.Background(), "missing"))
	assert.Empty(t, f.events)
}
