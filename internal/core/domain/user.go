package domain

import (
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")
var ErrUserExists = errors.New("user with email or username already exists")
var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrInvalidToken = errors.New("invalid or expired token")
var ErrWrongPassword = errors.New("old password is incorrect")
var ErrMissingField = errors.New("required field is missing")
var ErrUploadFailed = errors.New("media upload failed")
var ErrTooManyAttempts = errors.New("too many failed login attempts")

// User is the single persistent entity: an account holder on the platform.
// PasswordHash and RefreshToken never appear in API responses; WatchHistory
// holds weak references to video IDs owned by the media catalogue.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage,omitempty"`
	PasswordHash string    `json:"-"`
	RefreshToken string    `json:"-"`
	WatchHistory []string  `json:"watchHistory,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
