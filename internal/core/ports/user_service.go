package ports

import (
	"context"

	"github.com/streamhub/accounts-api/internal/core/domain"
)

// RegisterInput carries the registration form fields plus the local paths
// of the staged image uploads. AvatarPath is mandatory, CoverImagePath
// may be empty.
type RegisterInput struct {
	FullName       string
	Email          string
	Username       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

type UserService interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, error)
	Login(ctx context.Context, identifier, password string) (*domain.User, TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	UpdateAccount(ctx context.Context, userID, fullName, email string) (*domain.User, error)
	UpdateAvatar(ctx context.Context, userID, localPath string) (*domain.User, error)
	UpdateCoverImage(ctx context.Context, userID, localPath string) (*domain.User, error)
	WatchHistory(ctx context.Context, userID string) ([]string, error)
	AddWatchEntry(ctx context.Context, userID, videoID string) error
}
