package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/streamhub/accounts-api/internal/core/domain"
	"github.com/streamhub/accounts-api/internal/core/ports"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 10 * 24 * time.Hour
)

type accessClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	jwt.RegisteredClaims
}

// TokenService signs and verifies the two token classes with distinct
// secrets and expiries, and persists the active refresh token per user.
type TokenService struct {
	repo          ports.UserRepository
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenService(repo ports.UserRepository, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &TokenService{
		repo:          repo,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccessToken signs a short-lived token carrying the user's identity.
func (s *TokenService) IssueAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Email:    user.Email,
		Username: user.Username,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
}

// IssueRefreshToken signs a long-lived token carrying only the user ID.
func (s *TokenService) IssueRefreshToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
}

// IssuePair issues both tokens for the user and stores the refresh token
// on the record, superseding any previously issued one. Failures here are
// internal: the caller has already authenticated the user.
func (s *TokenService) IssuePair(ctx context.Context, userID string) (ports.TokenPair, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return ports.TokenPair{}, fmt.Errorf("issue pair: user %s: %v", userID, err)
	}

	access, err := s.IssueAccessToken(user)
	if err != nil {
		return ports.TokenPair{}, fmt.Errorf("issue pair: sign access token: %w", err)
	}
	refresh, err := s.IssueRefreshToken(user)
	if err != nil {
		return ports.TokenPair{}, fmt.Errorf("issue pair: sign refresh token: %w", err)
	}

	if err := s.repo.SetRefreshToken(ctx, userID, refresh); err != nil {
		return ports.TokenPair{}, fmt.Errorf("issue pair: persist refresh token: %v", err)
	}

	return ports.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccessToken validates signature and expiry against the access
// secret and returns the embedded identity.
func (s *TokenService) VerifyAccessToken(token string) (*ports.AccessClaims, error) {
	claims := &accessClaims{}
	if err := s.parse(token, claims, s.accessSecret); err != nil {
		return nil, err
	}
	return &ports.AccessClaims{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		FullName: claims.FullName,
	}, nil
}

// VerifyRefreshToken validates signature and expiry against the refresh
// secret and returns the embedded user ID. Matching against the stored
// refresh token is the caller's responsibility.
func (s *TokenService) VerifyRefreshToken(token string) (string, error) {
	claims := &refreshClaims{}
	if err := s.parse(token, claims, s.refreshSecret); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims, secret []byte) error {
	if token == "" {
		return domain.ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.ErrInvalidToken
	}
	return nil
}
