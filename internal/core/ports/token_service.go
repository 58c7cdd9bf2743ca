package ports

import "context"

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AccessClaims is the identity carried by a verified access token.
type AccessClaims struct {
	UserID   string
	Email    string
	Username string
	FullName string
}

// TokenService issues and verifies the two token classes. The refresh
// token returned by IssuePair is also persisted on the user record; the
// stored copy is the single active refresh token (rotation overwrites it,
// logout clears it).
type TokenService interface {
	IssuePair(ctx context.Context, userID string) (TokenPair, error)
	VerifyAccessToken(token string) (*AccessClaims, error)
	// VerifyRefreshToken returns the user ID embedded in the token. The
	// caller must additionally compare the token against the stored one.
	VerifyRefreshToken(token string) (string, error)
}
