package handler

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/streamhub/accounts-api/internal/api/metrics"
	"github.com/streamhub/accounts-api/internal/core/domain"
	"github.com/streamhub/accounts-api/internal/core/ports"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// UserHandler handles HTTP requests for the account operations.
type UserHandler struct {
	service    ports.UserService
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewUserHandler(service ports.UserService, accessTTL, refreshTTL time.Duration) *UserHandler {
	return &UserHandler{service: service, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Register creates a new account from a multipart form with a mandatory
// avatar file and an optional cover image.
//
// @Summary      Register a new user
// @Tags         users
// @Accept       mpfd
// @Produce      json
// @Param        fullName    formData  string  true   "Full name"
// @Param        email       formData  string  true   "Email address"
// @Param        username    formData  string  true   "Username"
// @Param        password    formData  string  true   "Password"
// @Param        avatar      formData  file    true   "Avatar image"
// @Param        coverImage  formData  file    false  "Cover image"
// @Success      201  {object}  userResponse
// @Failure      400  {object}  map[string]any
// @Failure      409  {object}  map[string]any
// @Router       /users/register [post]
func (h *UserHandler) Register(c echo.Context) error {
	// The media store removes staged files after each upload attempt; the
	// deferred removals cover exits that never reach an upload, so each one
	// is registered as soon as its file is staged.
	avatarPath, err := stageUpload(c, "avatar")
	if err != nil {
		return err
	}
	defer removeIfPresent(avatarPath)

	coverPath, err := stageUpload(c, "coverImage")
	if err != nil {
		return err
	}
	defer removeIfPresent(coverPath)

	user, err := h.service.Register(c.Request().Context(), ports.RegisterInput{
		FullName:       c.FormValue("fullName"),
		Email:          c.FormValue("email"),
		Username:       c.FormValue("username"),
		Password:       c.FormValue("password"),
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		result := "rejected"
		if errors.Is(err, domain.ErrUserExists) {
			result = "conflict"
		}
		metrics.RegistrationsTotal.WithLabelValues(result).Inc()
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues("created").Inc()
	return c.JSON(http.StatusCreated, userResponse{User: user})
}

// Login authenticates by username or email, sets both auth cookies, and
// returns the token pair alongside the account.
//
// @Summary      Login
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      401   {object}  map[string]any
// @Failure      404   {object}  map[string]any
// @Router       /users/login [post]
func (h *UserHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, pair, err := h.service.Login(c.Request().Context(), req.identifier(), req.Password)
	if err != nil {
		result := "denied"
		if errors.Is(err, domain.ErrTooManyAttempts) {
			result = "throttled"
		}
		metrics.LoginsTotal.WithLabelValues(result).Inc()
		return err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.setAuthCookies(c, pair)
	return c.JSON(http.StatusOK, loginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh rotates the token pair. The incoming refresh token is read from
// the cookie first, then from the request body.
//
// @Summary      Rotate the refresh token
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Refresh token (if not sent as a cookie)"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  map[string]any
// @Router       /users/refresh-token [post]
func (h *UserHandler) Refresh(c echo.Context) error {
	token := ""
	if cookie, err := c.Cookie(refreshCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req refreshRequest
		// Body is optional; a bind failure just means no token there either.
		if err := c.Bind(&req); err == nil {
			token = req.RefreshToken
		}
	}

	pair, err := h.service.Refresh(c.Request().Context(), token)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("rejected").Inc()
		return err
	}

	metrics.TokenRefreshesTotal.WithLabelValues("rotated").Inc()
	h.setAuthCookies(c, pair)
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout clears the stored refresh token and both auth cookies.
//
// @Summary      Logout
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  map[string]any
// @Router       /users/logout [post]
func (h *UserHandler) Logout(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	if err := h.service.Logout(c.Request().Context(), user.ID); err != nil {
		return err
	}

	h.clearAuthCookies(c)
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

// ChangePassword verifies the old password and replaces it.
//
// @Summary      Change password
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Old and new passwords"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  map[string]any
// @Router       /users/change-password [post]
func (h *UserHandler) ChangePassword(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.service.ChangePassword(c.Request().Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "password changed"})
}

// Current returns the authenticated caller's account.
//
// @Summary      Get the current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]any
// @Router       /users/current [get]
func (h *UserHandler) Current(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}

// UpdateAccount replaces the text profile fields.
//
// @Summary      Update account details
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateAccountRequest  true  "New full name and email"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  map[string]any
// @Failure      409   {object}  map[string]any
// @Router       /users/update-account [patch]
func (h *UserHandler) UpdateAccount(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req updateAccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := h.service.UpdateAccount(c.Request().Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, userResponse{User: updated})
}

// UpdateAvatar replaces the avatar image.
//
// @Summary      Update the avatar image
// @Tags         users
// @Accept       mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        avatar  formData  file  true  "New avatar image"
// @Success      200     {object}  userResponse
// @Failure      400     {object}  map[string]any
// @Router       /users/avatar [patch]
func (h *UserHandler) UpdateAvatar(c echo.Context) error {
	return h.updateImage(c, "avatar")
}

// UpdateCoverImage replaces the cover image.
//
// @Summary      Update the cover image
// @Tags         users
// @Accept       mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        coverImage  formData  file  true  "New cover image"
// @Success      200         {object}  userResponse
// @Failure      400         {object}  map[string]any
// @Router       /users/cover-image [patch]
func (h *UserHandler) UpdateCoverImage(c echo.Context) error {
	return h.updateImage(c, "coverImage")
}

func (h *UserHandler) updateImage(c echo.Context, field string) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	localPath, err := stageUpload(c, field)
	if err != nil {
		return err
	}
	defer removeIfPresent(localPath)

	var updated *domain.User
	if field == "avatar" {
		updated, err = h.service.UpdateAvatar(c.Request().Context(), user.ID, localPath)
	} else {
		updated, err = h.service.UpdateCoverImage(c.Request().Context(), user.ID, localPath)
	}

	kind := "avatar"
	if field != "avatar" {
		kind = "cover_image"
	}
	if err != nil {
		metrics.MediaUploadsTotal.WithLabelValues(kind, "error").Inc()
		return err
	}
	metrics.MediaUploadsTotal.WithLabelValues(kind, "ok").Inc()

	return c.JSON(http.StatusOK, userResponse{User: updated})
}

// WatchHistory returns the caller's watch history.
//
// @Summary      Get watch history
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  watchHistoryResponse
// @Router       /users/history [get]
func (h *UserHandler) WatchHistory(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	history, err := h.service.WatchHistory(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, watchHistoryResponse{WatchHistory: history})
}

// AddWatchEntry appends a video to the caller's watch history.
//
// @Summary      Append a video to watch history
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        videoId  path  string  true  "Video ID"
// @Success      200  {object}  messageResponse
// @Router       /users/history/{videoId} [post]
func (h *UserHandler) AddWatchEntry(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	if err := h.service.AddWatchEntry(c.Request().Context(), user.ID, c.Param("videoId")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "watch history updated"})
}

// --- Cookies ---

func (h *UserHandler) setAuthCookies(c echo.Context, pair ports.TokenPair) {
	c.SetCookie(authCookie(accessCookie, pair.AccessToken, h.accessTTL))
	c.SetCookie(authCookie(refreshCookie, pair.RefreshToken, h.refreshTTL))
}

func (h *UserHandler) clearAuthCookies(c echo.Context) {
	c.SetCookie(authCookie(accessCookie, "", -time.Hour))
	c.SetCookie(authCookie(refreshCookie, "", -time.Hour))
}

func authCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// --- Upload staging ---

// stageUpload copies the named multipart file field to a temp file and
// returns its path. An absent field yields an empty path, not an error;
// required-file policy is the service's call.
func stageUpload(c echo.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}

	src, err := fh.Open()
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "unreadable upload: "+field)
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func removeIfPresent(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
