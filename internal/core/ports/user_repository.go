package ports

import (
	"context"

	"github.com/streamhub/accounts-api/internal/core/domain"
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// FindByUsernameOrEmail matches either field; a hit on one is enough.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	// UpdateFields applies a partial $set-style update and returns the
	// updated record.
	UpdateFields(ctx context.Context, id string, fields map[string]any) (*domain.User, error)
	// SetRefreshToken replaces the stored refresh token. An empty token
	// clears the field entirely.
	SetRefreshToken(ctx context.Context, id, token string) error
	AddWatchEntry(ctx context.Context, id, videoID string) error
}
