package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/streamhub/accounts-api/internal/core/domain"
	"github.com/streamhub/accounts-api/internal/core/ports"
)

// UserService sequences the session flows: registration, login, token
// refresh, logout, password change and profile updates. Throttle and
// cleanup are optional collaborators; a nil value disables the concern.
type UserService struct {
	repo     ports.UserRepository
	tokens   ports.TokenService
	media    ports.MediaStore
	throttle ports.LoginThrottle
	cleanup  ports.MediaCleanup
	logger   zerolog.Logger
}

func NewUserService(repo ports.UserRepository, tokens ports.TokenService, media ports.MediaStore, throttle ports.LoginThrottle, cleanup ports.MediaCleanup, logger zerolog.Logger) *UserService {
	return &UserService{
		repo:     repo,
		tokens:   tokens,
		media:    media,
		throttle: throttle,
		cleanup:  cleanup,
		logger:   logger,
	}
}

// Register validates the form fields, rejects duplicates, uploads the
// mandatory avatar (and optional cover image), and creates the record with
// a hashed password.
func (s *UserService) Register(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
	fullName := strings.TrimSpace(input.FullName)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.ToLower(strings.TrimSpace(input.Username))

	// The password is hashed exactly as submitted; whitespace is
	// significant everywhere except the blank check.
	for field, value := range map[string]string{
		"fullName": fullName,
		"email":    email,
		"username": username,
		"password": strings.TrimSpace(input.Password),
	} {
		if value == "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingField, field)
		}
	}

	// Either collision is a conflict.
	if _, err := s.repo.FindByUsernameOrEmail(ctx, username, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	if input.AvatarPath == "" {
		return nil, fmt.Errorf("%w: avatar", domain.ErrMissingField)
	}
	avatarURL, err := s.media.Upload(ctx, input.AvatarPath)
	if err != nil {
		return nil, fmt.Errorf("%w: avatar: %v", domain.ErrUploadFailed, err)
	}

	// The cover image is optional end to end: a failed upload degrades to
	// an absent cover rather than failing registration.
	var coverURL string
	if input.CoverImagePath != "" {
		coverURL, err = s.media.Upload(ctx, input.CoverImagePath)
		if err != nil {
			s.logger.Warn().Err(err).Str("username", username).Msg("cover image upload failed, continuing without")
			coverURL = ""
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		Avatar:       avatarURL,
		CoverImage:   coverURL,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("username", username).Str("user_id", created.ID).Msg("user registered")
	return created, nil
}

// Login authenticates by username or email and issues a fresh token pair,
// persisting the refresh token.
func (s *UserService) Login(ctx context.Context, identifier, password string) (*domain.User, ports.TokenPair, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil, ports.TokenPair{}, fmt.Errorf("%w: username or email", domain.ErrMissingField)
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, identifier)
		if err != nil {
			s.logger.Warn().Err(err).Msg("login throttle unavailable, allowing attempt")
		} else if !ok {
			return nil, ports.TokenPair{}, domain.ErrTooManyAttempts
		}
	}

	user, err := s.repo.FindByUsernameOrEmail(ctx, identifier, identifier)
	if err != nil {
		return nil, ports.TokenPair{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		if s.throttle != nil {
			if err := s.throttle.RecordFailure(ctx, identifier); err != nil {
				s.logger.Warn().Err(err).Msg("failed to record login failure")
			}
		}
		return nil, ports.TokenPair{}, domain.ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, ports.TokenPair{}, err
	}

	if s.throttle != nil {
		if err := s.throttle.Clear(ctx, identifier); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear login throttle")
		}
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user logged in")
	return user, pair, nil
}

// Refresh rotates the token pair. The incoming token must verify against
// the refresh secret and equal the stored refresh token; presenting a
// superseded token signals reuse and is rejected.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
	if refreshToken == "" {
		return ports.TokenPair{}, fmt.Errorf("%w: refresh token missing", domain.ErrInvalidToken)
	}

	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return ports.TokenPair{}, err
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return ports.TokenPair{}, domain.ErrInvalidToken
	}

	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		s.logger.Warn().Str("user_id", userID).Msg("superseded refresh token presented")
		return ports.TokenPair{}, domain.ErrInvalidToken
	}

	return s.tokens.IssuePair(ctx, user.ID)
}

// Logout clears the stored refresh token. Outstanding access tokens remain
// valid until their own expiry; only refresh rotation is revoked.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.SetRefreshToken(ctx, userID, ""); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("user logged out")
	return nil
}

// ChangePassword verifies the old password before replacing the hash.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: newPassword", domain.ErrMissingField)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return domain.ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.repo.UpdateFields(ctx, userID, map[string]any{"password": string(hash)}); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", userID).Msg("password changed")
	return nil
}

// UpdateAccount replaces the text profile fields.
func (s *UserService) UpdateAccount(ctx context.Context, userID, fullName, email string) (*domain.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" {
		return nil, fmt.Errorf("%w: fullName", domain.ErrMissingField)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: email", domain.ErrMissingField)
	}

	return s.repo.UpdateFields(ctx, userID, map[string]any{
		"fullName": fullName,
		"email":    email,
	})
}

// UpdateAvatar uploads the staged file, replaces the avatar URL, and
// schedules the superseded object for deletion.
func (s *UserService) UpdateAvatar(ctx context.Context, userID, localPath string) (*domain.User, error) {
	return s.updateImage(ctx, userID, localPath, "avatar")
}

// UpdateCoverImage is the cover-image counterpart of UpdateAvatar.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID, localPath string) (*domain.User, error) {
	return s.updateImage(ctx, userID, localPath, "coverImage")
}

func (s *UserService) updateImage(ctx context.Context, userID, localPath, field string) (*domain.User, error) {
	if localPath == "" {
		return nil, fmt.Errorf("%w: %s file", domain.ErrMissingField, field)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.media.Upload(ctx, localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUploadFailed, field, err)
	}

	updated, err := s.repo.UpdateFields(ctx, userID, map[string]any{field: url})
	if err != nil {
		return nil, err
	}

	old := user.Avatar
	if field == "coverImage" {
		old = user.CoverImage
	}
	if old != "" && s.cleanup != nil {
		s.cleanup.Enqueue(ports.MediaCleanupJob{UserID: userID, URL: old})
	}

	return updated, nil
}

// WatchHistory returns the caller's ordered video ID list.
func (s *UserService) WatchHistory(ctx context.Context, userID string) ([]string, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.WatchHistory, nil
}

// AddWatchEntry appends a video ID to the caller's watch history.
func (s *UserService) AddWatchEntry(ctx context.Context, userID, videoID string) error {
	if strings.TrimSpace(videoID) == "" {
		return fmt.Errorf("%w: videoId", domain.ErrMissingField)
	}
	return s.repo.AddWatchEntry(ctx, userID, videoID)
}
