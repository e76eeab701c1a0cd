package service

import (
	"context"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/playlist-gateway/internal/auth"
	"github.com/spec-kit/playlist-gateway/internal/config"
	"github.com/spec-kit/playlist-gateway/internal/domain"
	"github.com/spec-kit/playlist-gateway/internal/events"
	"github.com/spec-kit/playlist-gateway/internal/repository"
	"github.com/spec-kit/playlist-gateway/internal/retry"
	"github.com/spec-kit/playlist-gateway/internal/session"
	"github.com/spec-kit/playlist-gateway/internal/upstream"
	apperrors "github.com/spec-kit/playlist-gateway/pkg/util/errorutil"
)

// SessionStore is the subset of the session client used by login and logout.
type SessionStore interface {
	GetHash(ctx context.Context, key string) (map[string]string, error)
	SetHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
}

// ProfileFetcher resolves an upstream access token to its owner.
type ProfileFetcher interface {
	CurrentUser(ctx context.Context, accessToken string) (*upstream.Profile, error)
}

// RetryBudget bounds retry-wrapped upstream calls.
type RetryBudget struct {
	MaxRetries      int
	InitialInterval time.Duration
}

// BudgetFromConfig reads the retry budget of the upstream configuration.
func BudgetFromConfig(cfg config.UpstreamConfig) RetryBudget {
	return RetryBudget{MaxRetries: cfg.MaxRetries, InitialInterval: cfg.InitialInterval()}
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	SessionID   string
	Token       string
	ExpiresAt   time.Time
	SubjectID   string
	DisplayName string
}

// AuthService creates and tears down sessions.
type AuthService struct {
	sessions   SessionStore
	tokens     *auth.TokenCodec
	profiles   ProfileFetcher
	users      repository.UserRepository
	events     events.Dispatcher
	executor   *retry.Executor
	budget     RetryBudget
	sessionTTL time.Duration
	logger     *zap.Logger
}

// AuthDependencies encapsulates collaborators of the auth service. Users and
// Events are optional.
type AuthDependencies struct {
	Sessions SessionStore
	Tokens   *auth.TokenCodec
	Profiles ProfileFetcher
	Users    repository.UserRepository
	Events   events.Dispatcher
	Executor *retry.Executor
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		sessions:   deps.Sessions,
		tokens:     deps.Tokens,
		profiles:   deps.Profiles,
		users:      deps.Users,
		events:     deps.Events,
		executor:   deps.Executor,
		budget:     BudgetFromConfig(cfg.Upstream),
		sessionTTL: cfg.Auth.SessionTTL(),
		logger:     logger,
	}
}

// Login verifies accessToken with the upstream, opens a session replacing any
// previous one of the same subject, and issues a signed token.
func (s *AuthService) Login(ctx context.Context, accessToken string) (*LoginResult, error) {
	if accessToken == "" {
		return nil, apperrors.NewValidationError("access_token required", nil)
	}

	profile, err := retry.Run(ctx, s.executor, func(ctx context.Context) retry.Result[*upstream.Profile] {
		return retry.From(s.profiles.CurrentUser(ctx, accessToken))
	}, s.budget.MaxRetries, s.budget.InitialInterval)
	if err != nil {
		return nil, mapUpstreamError(err)
	}

	s.recordUser(ctx, profile)

	sessionID := uuid.NewString()
	fields := map[string]string{
		session.FieldSubjectID:           profile.ID,
		session.FieldDisplayName:         profile.DisplayName,
		session.FieldUpstreamAccessToken: accessToken,
	}
	if err := s.sessions.SetHash(ctx, session.Key(sessionID), fields, s.sessionTTL); err != nil {
		return nil, apperrors.NewServiceUnavailable("session store unavailable", err)
	}
	if err := s.replacePreviousSession(ctx, profile.ID, sessionID); err != nil {
		return nil, apperrors.NewServiceUnavailable("session store unavailable", err)
	}

	token, expiresAt, err := s.tokens.Issue(jwt.MapClaims{
		auth.ClaimSubject:       profile.ID,
		auth.ClaimName:          profile.DisplayName,
		auth.ClaimUpstreamToken: accessToken,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("user logged in", zap.String("subject_id", profile.ID))
	s.publish(ctx, events.NewEvent(events.EventUserLoggedIn, profile.ID, nil))
	return &LoginResult{
		SessionID:   sessionID,
		Token:       token,
		ExpiresAt:   expiresAt,
		SubjectID:   profile.ID,
		DisplayName: profile.DisplayName,
	}, nil
}

func (s *AuthService) replacePreviousSession(ctx context.Context, subjectID, sessionID string) error {
	previous, found, err := s.sessions.GetValue(ctx, session.UserKey(subjectID))
	if err != nil {
		return err
	}
	if found && previous != sessionID {
		if _, err := s.sessions.Delete(ctx, session.Key(previous)); err != nil {
			return err
		}
		s.publish(ctx, events.NewEvent(events.EventSessionReplaced, subjectID,
			events.SessionReplacedPayload{PreviousSession: events.SessionFingerprint(previous)}))
	}
	return s.sessions.SetValue(ctx, session.UserKey(subjectID), sessionID, s.sessionTTL)
}

func (s *AuthService) recordUser(ctx context.Context, profile *upstream.Profile) {
	if s.users == nil {
		return
	}
	user := &domain.User{SubjectID: profile.ID, DisplayName: profile.DisplayName, Email: profile.Email}
	if err := s.users.Upsert(ctx, user); err != nil {
		s.logger.Warn("failed to record user", zap.String("subject_id", profile.ID), zap.Error(err))
	}
}

// Logout deletes the session. Tokens issued for it stay valid until they
// expire; there is no revocation list.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	key := session.Key(sessionID)
	fields, err := s.sessions.GetHash(ctx, key)
	if err != nil {
		return apperrors.NewServiceUnavailable("session store unavailable", err)
	}
	if _, err := s.sessions.Delete(ctx, key); err != nil {
		return apperrors.NewServiceUnavailable("session store unavailable", err)
	}

	subjectID := fields[session.FieldSubjectID]
	if subjectID == "" {
		return nil
	}
	current, found, err := s.sessions.GetValue(ctx, session.UserKey(subjectID))
	if err != nil {
		return apperrors.NewServiceUnavailable("session store unavailable", err)
	}
	if found && current == sessionID {
		if _, err := s.sessions.Delete(ctx, session.UserKey(subjectID)); err != nil {
			return apperrors.NewServiceUnavailable("session store unavailable", err)
		}
	}
	s.logger.Info("user logged out", zap.String("subject_id", subjectID))
	s.publish(ctx, events.NewEvent(events.EventUserLoggedOut, subjectID, nil))
	return nil
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

// TokenCodec exposes the codec for middleware wiring.
func (s *AuthService) TokenCodec() *auth.TokenCodec {
	return s.tokens
}
