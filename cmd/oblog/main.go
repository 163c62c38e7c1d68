// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/oblog-go/internal/cache"
	"github.com/olegiv/oblog-go/internal/config"
	"github.com/olegiv/oblog-go/internal/handler"
	"github.com/olegiv/oblog-go/internal/imaging"
	"github.com/olegiv/oblog-go/internal/middleware"
	"github.com/olegiv/oblog-go/internal/model"
	"github.com/olegiv/oblog-go/internal/notify"
	"github.com/olegiv/oblog-go/internal/service"
	"github.com/olegiv/oblog-go/internal/session"
	"github.com/olegiv/oblog-go/internal/store"
	"github.com/olegiv/oblog-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

// adminDeps collects what the /admin route tree needs.
type adminDeps struct {
	sessionManager *scs.SessionManager
	db             *sql.DB
	roles          *service.RoleService
	events         *service.EventService
	csrf           func(http.Handler) http.Handler
	dashboard      *handler.DashboardHandler
	posts          *handler.PostsHandler
	users          *handler.UsersHandler
}

// adminRoutes registers the staff routes mounted under /admin. The
// role-change route sits outside the RequireAdmin group: that group
// answers an insufficient capability with a redirect home, and the
// roles endpoint must answer with an explicit 403 and an audit event
// instead.
func adminRoutes(d adminDeps) func(chi.Router) {
	return func(r chi.Router) {
		r.Use(d.csrf)
		r.Use(middleware.Auth(d.sessionManager))
		r.Use(middleware.LoadUser(d.sessionManager, d.db))

		// Editor routes (editor + admin)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireEditor(d.roles))

			r.Get(handler.RouteRoot, d.dashboard.Show)

			r.Get(handler.RoutePosts, d.posts.Manage)
			r.Post(handler.RoutePosts+"/bulk", d.posts.Bulk)
			r.Post(handler.RoutePostsID+"/status", d.posts.Status)
			r.Put(handler.RoutePostsID, d.posts.Update)
			r.Post(handler.RoutePostsID, d.posts.Update) // HTML forms can't send PUT
			r.Delete(handler.RoutePostsID, d.posts.Delete)
			r.Post(handler.RoutePostsID+"/delete", d.posts.Delete) // HTML forms can't send DELETE
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(d.roles))

			r.Get(handler.RouteUsers, d.users.List)
			r.Post(handler.RouteUsers, d.users.Create)
			r.Get(handler.RouteUsersID, d.users.Show)
			r.Put(handler.RouteUsersID, d.users.Update)
			r.Post(handler.RouteUsersID, d.users.Update) // HTML forms can't send PUT
			r.Delete(handler.RouteUsersID, d.users.Delete)
			r.Post(handler.RouteUsersID+"/delete", d.users.Delete) // HTML forms can't send DELETE
		})

		// Role changes are denied with an audit event and a hard 403,
		// never a redirect.
		r.With(middleware.RequireRoleStrict(d.roles, model.RoleAdmin, d.events)).
			Post(handler.RouteUsersID+"/role", d.users.ChangeRole)
	}
}

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "oBlog - Open Blog Engine\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OBLOG_SESSION_SECRET   Session encryption key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OBLOG_DB_PATH          SQLite database path (default: ./data/oblog.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OBLOG_SERVER_PORT      Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OBLOG_ENV              Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OBLOG_UPLOADS_DIR      Upload directory for post images (default: ./uploads)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OBLOG_REDIS_URL        Redis URL for the listing cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OBLOG_NOTIFY_URL       Webhook URL for contact messages (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  OBLOG_DO_SEED          Create the initial admin account (default: false)\n")
	}

	flag.Parse()

	// Handle -h/-help flag
	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	// Handle -v/-version flag
	if *showVersion {
		_, _ = fmt.Printf("oblog %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	versionInfo := &version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	// Setup logger: human-readable text in development, JSON in production
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var logHandler slog.Handler
	if cfg.IsDevelopment() {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(logHandler))

	// Ensure data directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Initialize database
	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	// Run migrations
	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Seed the initial admin account
	ctx := context.Background()
	if err := store.Seed(ctx, db, cfg.DoSeed); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}

	// Initialize session manager
	sessionManager := session.New(db, cfg.IsDevelopment())
	slog.Info("session manager initialized")

	// Initialize listing cache
	cacher, err := cache.New(cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: time.Duration(cfg.CacheTTL) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() {
		if err := cacher.Close(); err != nil {
			slog.Error("error closing cache", "error", err)
		}
	}()
	if cfg.UseRedisCache() {
		slog.Info("cache initialized", "backend", "redis", "url", cfg.RedisURL)
	} else {
		slog.Info("cache initialized", "backend", "memory")
	}

	// Initialize contact notification dispatcher (optional)
	var dispatcher *notify.Dispatcher
	if cfg.NotifyEnabled() {
		dispatcher, err = notify.NewDispatcher(notify.Config{
			URL:    cfg.NotifyURL,
			Secret: cfg.NotifySecret,
		})
		if err != nil {
			return fmt.Errorf("initializing notification dispatcher: %w", err)
		}
		dispatcher.Start(ctx)
		defer dispatcher.Stop()
		slog.Info("notification dispatcher initialized")
	}

	// Initialize image processor for post uploads
	if err := os.MkdirAll(cfg.UploadsDir, 0755); err != nil {
		return fmt.Errorf("creating uploads directory: %w", err)
	}
	processor := imaging.NewProcessor(cfg.UploadsDir)

	// Initialize services
	eventService := service.NewEventService(db)
	roleService := service.NewRoleService(db)
	guard := service.NewSubmissionGuard(db)
	accountService := service.NewAccountService(db, roleService, eventService)
	moderationService := service.NewModerationService(db, roleService, guard)

	// Invalidate cached public listings whenever post content changes
	moderationService.OnChange(func(ctx context.Context) {
		if err := cacher.DeleteByPrefix(ctx, handler.PostListingCachePrefix); err != nil {
			slog.Warn("failed to invalidate listing cache", "error", err)
		}
	})

	// Initialize login protection
	loginProtection := middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig())
	slog.Info("login protection initialized",
		"max_failed_attempts", 5,
		"lockout_duration", "15m",
	)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(sessionManager, accountService, eventService, loginProtection)
	publicHandler := handler.NewPublicHandler(sessionManager, moderationService, cacher, dispatcher)
	postsHandler := handler.NewPostsHandler(sessionManager, moderationService, eventService, processor)
	dashboardHandler := handler.NewDashboardHandler(sessionManager, moderationService, accountService, eventService)
	usersHandler := handler.NewUsersHandler(sessionManager, accountService, eventService)
	settingsHandler := handler.NewSettingsHandler(sessionManager, accountService, eventService)
	plannerHandler := handler.NewPlannerHandler(sessionManager)

	// Create router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)
	r.Use(chimw.Timeout(30 * time.Second))

	// Security headers middleware (CSP, HSTS, X-Frame-Options, etc.)
	securityConfig := middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())
	r.Use(middleware.SecurityHeaders(securityConfig))

	r.Use(sessionManager.LoadAndSave)

	// CSRF protection middleware
	csrfConfig := middleware.DefaultCSRFConfig([]byte(cfg.SessionSecret), cfg.IsDevelopment())
	csrfMiddleware := middleware.CSRF(csrfConfig)
	slog.Info("CSRF protection initialized", "secure", !cfg.IsDevelopment())

	// Health check route
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = fmt.Fprintf(w, `{"status":"ok","version":%q}`, versionInfo.Version)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(csrfMiddleware)
		r.Use(middleware.OptionalLoadUser(sessionManager, db))

		r.Get(handler.RouteRoot, publicHandler.Home)
		r.Get(handler.RoutePosts, publicHandler.Posts)
		r.Get(handler.RoutePostsID, publicHandler.PostDetail)
		r.Post(handler.RoutePosts, postsHandler.Submit)
		r.Post(handler.RouteContact, publicHandler.Contact)

		// Auth routes
		r.Get(handler.RouteLogin, authHandler.LoginForm)
		r.With(loginProtection.Middleware()).Post(handler.RouteLogin, authHandler.Login)
		r.Post(handler.RouteSignup, authHandler.Signup)
		r.Get(handler.RouteLogout, authHandler.Logout)
		r.Post(handler.RouteLogout, authHandler.Logout)
	})

	// Self-service settings (any authenticated user)
	r.Route(handler.RouteSettings, func(r chi.Router) {
		r.Use(csrfMiddleware)
		r.Use(middleware.Auth(sessionManager))
		r.Use(middleware.LoadUser(sessionManager, db))

		r.Get(handler.RouteRoot, settingsHandler.Show)
		r.Post("/profile", settingsHandler.UpdateProfile)
		r.Post("/password", settingsHandler.ChangePassword)
		r.Post("/preferences", settingsHandler.UpdatePreferences)
		r.Post("/delete", settingsHandler.DeleteAccount)
	})

	// Study planner, a viewer-only page: staff roles get an explicit
	// 403 rather than a redirect.
	r.Group(func(r chi.Router) {
		r.Use(csrfMiddleware)
		r.Use(middleware.Auth(sessionManager))
		r.Use(middleware.LoadUser(sessionManager, db))
		r.With(middleware.RequireOnlyRole(roleService, model.RoleViewer, eventService)).
			Get(handler.RoutePlanner, plannerHandler.Show)
	})

	// Admin routes (staff only)
	r.Route("/admin", adminRoutes(adminDeps{
		sessionManager: sessionManager,
		db:             db,
		roles:          roleService,
		events:         eventService,
		csrf:           csrfMiddleware,
		dashboard:      dashboardHandler,
		posts:          postsHandler,
		users:          usersHandler,
	}))

	// Serve uploaded post images
	uploadsHandler := http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadsDir)))
	r.Handle("/uploads/*", uploadsHandler)

	// Create server with appropriate timeouts
	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second, // Longer to allow for image uploads on slow connections
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB max header size
	}

	// Start server in goroutine
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
