package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/streamhub/accounts-api/internal/core/domain"
	"github.com/streamhub/accounts-api/internal/core/ports"
)

const accessCookie = "accessToken"

// AccessVerifier is the slice of the token service the guard needs.
type AccessVerifier interface {
	VerifyAccessToken(token string) (*ports.AccessClaims, error)
}

// UserLookup resolves the token's embedded user ID to a live account.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// Auth is the access guard: it extracts the bearer credential from the
// accessToken cookie or the Authorization header, verifies it against the
// access secret, resolves the account, and injects it into context as
// "user". Any failure short-circuits with 401 and a message naming the
// cause.
func Auth(verifier AccessVerifier, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}

			claims, err := verifier.VerifyAccessToken(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired access token")
			}

			user, err := users.FindByID(c.Request().Context(), claims.UserID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "user for access token not found")
			}

			c.Set("user", user)
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	if cookie, err := c.Cookie(accessCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
