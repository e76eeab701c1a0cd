package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/playlist-gateway/internal/auth"
	"github.com/spec-kit/playlist-gateway/internal/domain"
	"github.com/spec-kit/playlist-gateway/internal/repository"
	"github.com/spec-kit/playlist-gateway/internal/retry"
	"github.com/spec-kit/playlist-gateway/internal/upstream"
	apperrors "github.com/spec-kit/playlist-gateway/pkg/util/errorutil"
)

const maxPageSize = 50

// PlaylistFetcher reads playlists from the music API.
type PlaylistFetcher interface {
	Playlists(ctx context.Context, accessToken string, limit, offset int) (json.RawMessage, error)
}

// Profile is what the gateway knows about the caller.
type Profile struct {
	SubjectID   string
	DisplayName string
	User        *domain.User
}

// PlaylistService proxies user-scoped reads to the music API.
type PlaylistService struct {
	playlists PlaylistFetcher
	users     repository.UserRepository
	executor  *retry.Executor
	budget    RetryBudget
	logger    *zap.Logger
}

// NewPlaylistService builds the service. users may be nil.
func NewPlaylistService(playlists PlaylistFetcher, users repository.UserRepository, executor *retry.Executor, budget RetryBudget, logger *zap.Logger) *PlaylistService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaylistService{playlists: playlists, users: users, executor: executor, budget: budget, logger: logger}
}

// Playlists returns one page of the caller's playlists, verbatim.
func (s *PlaylistService) Playlists(ctx context.Context, identity *auth.Identity, limit, offset int) (json.RawMessage, error) {
	if limit < 0 || offset < 0 {
		return nil, apperrors.NewValidationError("limit and offset must not be negative", nil)
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	body, err := retry.Run(ctx, s.executor, func(ctx context.Context) retry.Result[json.RawMessage] {
		return retry.From(s.playlists.Playlists(ctx, identity.UpstreamAccessToken(), limit, offset))
	}, s.budget.MaxRetries, s.budget.InitialInterval)
	if err != nil {
		return nil, mapUpstreamError(err)
	}
	return body, nil
}

// Profile describes the caller, enriched from the user directory when available.
func (s *PlaylistService) Profile(ctx context.Context, identity *auth.Identity) (*Profile, error) {
	profile := &Profile{SubjectID: identity.SubjectID(), DisplayName: identity.DisplayName()}
	if s.users == nil {
		return profile, nil
	}
	user, err := s.users.GetBySubjectID(ctx, identity.SubjectID())
	switch {
	case err == nil:
		profile.User = user
	case errors.Is(err, pgx.ErrNoRows):
	default:
		s.logger.Warn("user directory lookup failed", zap.String("subject_id", identity.SubjectID()), zap.Error(err))
	}
	return profile, nil
}

func mapUpstreamError(err error) error {
	var throttled *retry.ThrottledError
	var status *upstream.StatusError
	switch {
	case errors.Is(err, retry.ErrInterrupted):
		return apperrors.NewInternalError(err)
	case errors.As(err, &throttled):
		return apperrors.NewUpstreamThrottled(throttled.RetryAfter, err)
	case errors.Is(err, upstream.ErrUnauthorized):
		return apperrors.NewUnauthorized("upstream rejected access token")
	case errors.As(err, &status):
		return apperrors.NewUpstreamError(status.StatusCode, err)
	default:
		return apperrors.NewUpstreamError(0, err)
	}
}
