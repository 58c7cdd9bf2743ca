package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/streamhub/accounts-api/docs"
	"github.com/streamhub/accounts-api/internal/api/handler"
	"github.com/streamhub/accounts-api/internal/api/middleware"
	"github.com/streamhub/accounts-api/internal/core/ports"
	"github.com/streamhub/accounts-api/internal/core/service"
	"github.com/streamhub/accounts-api/internal/infrastructure/config"
	mongodb "github.com/streamhub/accounts-api/internal/infrastructure/db/mongo"
	redisdb "github.com/streamhub/accounts-api/internal/infrastructure/db/redis"
)

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(db *mongo.Database, rdb *redis.Client, store ports.MediaStore, cleanup ports.MediaCleanup, cfg *config.Config, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("streamhub"))

	// --- Dependencies ---
	userRepo := mongodb.NewUserRepository(db)
	tokenService := service.NewTokenService(userRepo, cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	throttle := redisdb.NewLoginThrottle(rdb)
	userService := service.NewUserService(userRepo, tokenService, store, throttle, cleanup, log)
	userHandler := handler.NewUserHandler(userService, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	guard := middleware.Auth(tokenService, userRepo)

	// --- User routes ---
	users := e.Group("/users")
	users.POST("/register", userHandler.Register)
	users.POST("/login", userHandler.Login)
	users.POST("/refresh-token", userHandler.Refresh)
	users.POST("/logout", userHandler.Logout, guard)
	users.POST("/change-password", userHandler.ChangePassword, guard)
	users.GET("/current", userHandler.Current, guard)
	users.PATCH("/update-account", userHandler.UpdateAccount, guard)
	users.PATCH("/avatar", userHandler.UpdateAvatar, guard)
	users.PATCH("/cover-image", userHandler.UpdateCoverImage, guard)
	users.GET("/history", userHandler.WatchHistory, guard)
	users.POST("/history/:videoId", userHandler.AddWatchEntry, guard)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthDepsHandler.Readiness)

	// --- Operational endpoints ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
