package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"labora-backend/internal/auth"
	"labora-backend/internal/db"
	"labora-backend/internal/maintenance"
	"labora-backend/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build wires the auth backend: database, token codec, blacklist, service,
// guards and routes. The returned Runtime is ready to serve.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger("labora-backend")

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	accessSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	refreshSecret, err := mustEnv("JWT_REFRESH_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	codec := auth.NewCodec(auth.TokenConfig{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessExpiry:  auth.ParseExpiry(envOrDefault("JWT_EXPIRATION", "15m")),
		RefreshExpiry: auth.ParseExpiry(envOrDefault("JWT_REFRESH_EXPIRATION", "7d")),
		Issuer:        envOrDefault("JWT_ISSUER", "labora-clinical-lab"),
		Audience:      envOrDefault("JWT_AUDIENCE", "labora-users"),
	})

	// Without redis, logout cannot revoke tokens before their natural expiry.
	var blacklist auth.TokenBlacklist = auth.NoopBlacklist{}
	var closeBlacklist func() error
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		redisBlacklist, err := auth.NewRedisBlacklist(auth.RedisConfig{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envIntOrDefault("REDIS_DB", 0),
		})
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("init token blacklist: %w", err)
		}
		blacklist = redisBlacklist
		closeBlacklist = redisBlacklist.Close
	} else {
		logger.Warn("token_blacklist_disabled", map[string]any{
			"reason": "REDIS_ADDR not set; logout will not revoke tokens early",
		})
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, authRepo, codec, blacklist, logger)
	authHandler := auth.NewHandler(authService)
	guard := auth.NewGuard(authService)

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
	)

	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	public := auth.RoutePolicy{Public: true}
	authenticated := auth.RoutePolicy{}
	userAdmins := auth.RoutePolicy{
		Roles: []auth.Role{
			auth.RoleSuperAdmin,
			auth.RoleOrganizationAdmin,
			auth.RoleLabManager,
		},
		Permissions: []string{"manage:users"},
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginLimiter.Middleware(guard.Secure(public, http.HandlerFunc(authHandler.Login))))
	mux.Handle("POST /auth/register", guard.Secure(public, http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /auth/refresh", guard.Secure(public, http.HandlerFunc(authHandler.Refresh)))
	mux.Handle("POST /auth/change-password", guard.Secure(authenticated, http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /auth/logout", guard.Secure(authenticated, http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /auth/profile", guard.Secure(authenticated, http.HandlerFunc(authHandler.Profile)))
	mux.Handle("GET /auth/verify", guard.Secure(authenticated, http.HandlerFunc(authHandler.Verify)))
	mux.Handle("GET /auth/health", guard.Secure(public, http.HandlerFunc(authHandler.Health)))
	mux.Handle("GET /organizations/{organizationId}/users", guard.Secure(userAdmins, http.HandlerFunc(authHandler.ListUsers)))
	mux.HandleFunc("GET /internal/maintenance/cleanup-locks", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup-locks", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			if closeBlacklist != nil {
				_ = closeBlacklist()
			}
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
