package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/playlist-gateway/internal/domain"
)

// UserRepository records users seen at login.
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetBySubjectID(ctx context.Context, subjectID string) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (subject_id, display_name, email, last_login_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (subject_id) DO UPDATE
            SET display_name=EXCLUDED.display_name,
                email=EXCLUDED.email,
                last_login_at=EXCLUDED.last_login_at,
                updated_at=NOW()
        RETURNING last_login_at, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		user.SubjectID,
		user.DisplayName,
		user.Email,
	).Scan(&user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetBySubjectID(ctx context.Context, subjectID string) (*domain.User, error) {
	const query = `
        SELECT subject_id, display_name, email, last_login_at, created_at, updated_at
        FROM users WHERE subject_id=$1`

	var user domain.User
	if err := r.pool.QueryRow(ctx, query, subjectID).Scan(
		&user.SubjectID,
		&user.DisplayName,
		&user.Email,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
