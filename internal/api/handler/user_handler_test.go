package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/streamhub/accounts-api/internal/core/domain"
	"github.com/streamhub/accounts-api/internal/core/ports"
)

type stubUserService struct {
	registerFn       func(ctx context.Context, input ports.RegisterInput) (*domain.User, error)
	loginFn          func(ctx context.Context, identifier, password string) (*domain.User, ports.TokenPair, error)
	refreshFn        func(ctx context.Context, refreshToken string) (ports.TokenPair, error)
	logoutFn         func(ctx context.Context, userID string) error
	changePasswordFn func(ctx context.Context, userID, oldPassword, newPassword string) error
	updateAccountFn  func(ctx context.Context, userID, fullName, email string) (*domain.User, error)
	updateAvatarFn   func(ctx context.Context, userID, localPath string) (*domain.User, error)
	updateCoverFn    func(ctx context.Context, userID, localPath string) (*domain.User, error)
	watchHistoryFn   func(ctx context.Context, userID string) ([]string, error)
	addWatchFn       func(ctx context.Context, userID, videoID string) error
}

func (s *stubUserService) Register(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
	return s.registerFn(ctx, input)
}

func (s *stubUserService) Login(ctx context.Context, identifier, password string) (*domain.User, ports.TokenPair, error) {
	return s.loginFn(ctx, identifier, password)
}

func (s *stubUserService) Refresh(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
	return s.refreshFn(ctx, refreshToken)
}

func (s *stubUserService) Logout(ctx context.Context, userID string) error {
	return s.logoutFn(ctx, userID)
}

func (s *stubUserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	return s.changePasswordFn(ctx, userID, oldPassword, newPassword)
}

func (s *stubUserService) UpdateAccount(ctx context.Context, userID, fullName, email string) (*domain.User, error) {
	return s.updateAccountFn(ctx, userID, fullName, email)
}

func (s *stubUserService) UpdateAvatar(ctx context.Context, userID, localPath string) (*domain.User, error) {
	return s.updateAvatarFn(ctx, userID, localPath)
}

func (s *stubUserService) UpdateCoverImage(ctx context.Context, userID, localPath string) (*domain.User, error) {
	return s.updateCoverFn(ctx, userID, localPath)
}

func (s *stubUserService) WatchHistory(ctx context.Context, userID string) ([]string, error) {
	return s.watchHistoryFn(ctx, userID)
}

func (s *stubUserService) AddWatchEntry(ctx context.Context, userID, videoID string) error {
	return s.addWatchFn(ctx, userID, videoID)
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func newHandler(stub *stubUserService) *UserHandler {
	return NewUserHandler(stub, 15*time.Minute, 240*time.Hour)
}

// registerForm builds a multipart body with the standard fields and an
// avatar file.
func registerForm(t *testing.T, withAvatar bool) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for field, value := range map[string]string{
		"fullName": "Alice Liddell",
		"email":    "alice@x.com",
		"username": "alice",
		"password": "wonderland",
	} {
		if err := w.WriteField(field, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if withAvatar {
		fw, err := w.CreateFormFile("avatar", "avatar.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte("png-bytes")); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func TestUserHandler_Register_Success(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		registerFn: func(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
			if input.Username != "alice" || input.FullName != "Alice Liddell" {
				t.Fatalf("unexpected input: %+v", input)
			}
			if input.AvatarPath == "" {
				t.Fatalf("avatar file was not staged")
			}
			return &domain.User{
				ID:           "user-1",
				Username:     input.Username,
				Email:        input.Email,
				FullName:     input.FullName,
				Avatar:       "https://cdn.test/media/a.png",
				PasswordHash: "bcrypt-hash",
				RefreshToken: "stored-refresh",
			}, nil
		},
	}

	body, contentType := registerForm(t, true)
	req := httptest.NewRequest(http.MethodPost, "/users/register", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := newHandler(stub).Register(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	user, ok := resp["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user in response")
	}
	if user["username"] != "alice" {
		t.Fatalf("unexpected user payload: %+v", user)
	}
	for _, secret := range []string{"password", "passwordHash", "refreshToken"} {
		if _, found := user[secret]; found {
			t.Fatalf("secret field %q leaked in response", secret)
		}
	}
}

func TestUserHandler_Register_MissingAvatarPassedThrough(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		registerFn: func(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
			if input.AvatarPath != "" {
				t.Fatalf("expected empty avatar path, got %q", input.AvatarPath)
			}
			return nil, domain.ErrMissingField
		},
	}

	body, contentType := registerForm(t, false)
	req := httptest.NewRequest(http.MethodPost, "/users/register", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := newHandler(stub).Register(c); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestUserHandler_Register_Conflict(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		registerFn: func(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
			return nil, domain.ErrUserExists
		},
	}

	body, contentType := registerForm(t, true)
	req := httptest.NewRequest(http.MethodPost, "/users/register", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := newHandler(stub).Register(c); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestUserHandler_Register_StagedFilesRemovedOnFailure(t *testing.T) {
	e := newTestEcho()
	var staged []string
	stub := &stubUserService{
		registerFn: func(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
			staged = append(staged, input.AvatarPath, input.CoverImagePath)
			return nil, domain.ErrUserExists
		},
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for field, value := range map[string]string{
		"fullName": "Alice Liddell",
		"email":    "alice@x.com",
		"username": "alice",
		"password": "wonderland",
	} {
		if err := w.WriteField(field, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, field := range []string{"avatar", "coverImage"} {
		fw, err := w.CreateFormFile(field, field+".png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte("png-bytes")); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/users/register", body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := newHandler(stub).Register(c); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	if len(staged) != 2 || staged[0] == "" || staged[1] == "" {
		t.Fatalf("expected both files staged, got %v", staged)
	}
	for _, path := range staged {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("staged file %s not removed after failed registration", path)
		}
	}
}

func TestUserHandler_Login_SetsCookiesAndOmitsSecrets(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		loginFn: func(ctx context.Context, identifier, password string) (*domain.User, ports.TokenPair, error) {
			if identifier != "alice" || password != "wonderland" {
				t.Fatalf("unexpected args: %s %s", identifier, password)
			}
			return &domain.User{ID: "user-1", Username: "alice", PasswordHash: "hash", RefreshToken: "refresh-1"},
				ports.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(`{"username":"alice","password":"wonderland"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := newHandler(stub).Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected exactly two cookies, got %d", len(cookies))
	}
	byName := map[string]*http.Cookie{}
	for _, ck := range cookies {
		byName[ck.Name] = ck
	}
	for _, name := range []string{"accessToken", "refreshToken"} {
		ck, ok := byName[name]
		if !ok {
			t.Fatalf("cookie %s not set", name)
		}
		if !ck.HttpOnly || !ck.Secure {
			t.Fatalf("cookie %s must be httpOnly and secure", name)
		}
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["accessToken"] != "access-1" || resp["refreshToken"] != "refresh-1" {
		t.Fatalf("tokens missing from body: %+v", resp)
	}
	user := resp["user"].(map[string]any)
	if _, found := user["password"]; found {
		t.Fatalf("password leaked in login body")
	}
}

func TestUserHandler_Login_EmailIdentifier(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		loginFn: func(ctx context.Context, identifier, password string) (*domain.User, ports.TokenPair, error) {
			if identifier != "alice@x.com" {
				t.Fatalf("expected email identifier, got %q", identifier)
			}
			return &domain.User{ID: "user-1"}, ports.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(`{"email":"alice@x.com","password":"pw"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := newHandler(stub).Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func TestUserHandler_Login_MissingPassword(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		loginFn: func(ctx context.Context, identifier, password string) (*domain.User, ports.TokenPair, error) {
			t.Fatalf("should not be called")
			return nil, ports.TokenPair{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/users/login", strings.NewReader(`{"username":"alice"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := newHandler(stub).Login(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestUserHandler_Refresh_FromCookie(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		refreshFn: func(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
			if refreshToken != "cookie-token" {
				t.Fatalf("expected cookie token, got %q", refreshToken)
			}
			return ports.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/users/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "cookie-token"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := newHandler(stub).Refresh(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["refreshToken"] != "new-refresh" {
		t.Fatalf("rotated token missing: %+v", resp)
	}
	if len(rec.Result().Cookies()) != 2 {
		t.Fatalf("expected both cookies re-set on refresh")
	}
}

func TestUserHandler_Refresh_FromBody(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		refreshFn: func(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
			if refreshToken != "body-token" {
				t.Fatalf("expected body token, got %q", refreshToken)
			}
			return ports.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/users/refresh-token", strings.NewReader(`{"refreshToken":"body-token"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := newHandler(stub).Refresh(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func TestUserHandler_Refresh_Absent(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		refreshFn: func(ctx context.Context, refreshToken string) (ports.TokenPair, error) {
			if refreshToken != "" {
				t.Fatalf("expected empty token, got %q", refreshToken)
			}
			return ports.TokenPair{}, domain.ErrInvalidToken
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/users/refresh-token", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := newHandler(stub).Refresh(c); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestUserHandler_Logout_ClearsCookies(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		logoutFn: func(ctx context.Context, userID string) error {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/users/logout", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", &domain.User{ID: "user-1"})

	if err := newHandler(stub).Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge >= 0 {
			t.Fatalf("cookie %s not expired on logout", ck.Name)
		}
	}
}

func TestUserHandler_Current_RequiresGuard(t *testing.T) {
	e := newTestEcho()
	req := httptest.NewRequest(http.MethodGet, "/users/current", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := newHandler(&stubUserService{}).Current(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without guard, got %v", err)
	}
}

func TestUserHandler_Current(t *testing.T) {
	e := newTestEcho()
	req := httptest.NewRequest(http.MethodGet, "/users/current", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", &domain.User{ID: "user-1", Username: "alice"})

	if err := newHandler(&stubUserService{}).Current(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"alice"`) {
		t.Fatalf("user payload missing: %s", rec.Body.String())
	}
}

func TestUserHandler_ChangePassword_Validation(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		changePasswordFn: func(ctx context.Context, userID, oldPassword, newPassword string) error {
			t.Fatalf("should not be called")
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/users/change-password", strings.NewReader(`{"oldPassword":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", &domain.User{ID: "user-1"})

	err := newHandler(stub).ChangePassword(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestUserHandler_UpdateAvatar(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		updateAvatarFn: func(ctx context.Context, userID, localPath string) (*domain.User, error) {
			if userID != "user-1" || localPath == "" {
				t.Fatalf("unexpected args: %q %q", userID, localPath)
			}
			return &domain.User{ID: userID, Avatar: "https://cdn.test/media/new.png"}, nil
		},
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("avatar", "new.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/users/avatar", body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", &domain.User{ID: "user-1"})

	if err := newHandler(stub).UpdateAvatar(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUserHandler_AddWatchEntry(t *testing.T) {
	e := newTestEcho()
	stub := &stubUserService{
		addWatchFn: func(ctx context.Context, userID, videoID string) error {
			if videoID != "video-9" {
				t.Fatalf("unexpected video id %q", videoID)
			}
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/users/history/video-9", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("videoId")
	c.SetParamValues("video-9")
	c.Set("user", &domain.User{ID: "user-1"})

	if err := newHandler(stub).AddWatchEntry(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
