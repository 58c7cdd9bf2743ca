package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/streamhub/accounts-api/internal/core/domain"
)

// ctxUser extracts the account resolved by the Auth middleware. Its
// presence proves the guard ran; handlers behind the guard fail fast with
// 401 rather than dereferencing a missing identity.
func ctxUser(c echo.Context) (*domain.User, error) {
	user, _ := c.Get("user").(*domain.User)
	if user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authenticated user")
	}
	return user, nil
}
