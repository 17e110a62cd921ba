// Package server собирает dev-бэкенд labapi-dev: REST интерфейс портала
// с CSRF cookie, сессиями и ролями поверх SQLite.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/labportal/internal/config"
	"github.com/iudanet/labportal/internal/crypto"
	"github.com/iudanet/labportal/internal/models"
	"github.com/iudanet/labportal/internal/server/handlers"
	"github.com/iudanet/labportal/internal/server/middleware"
	"github.com/iudanet/labportal/internal/server/session"
	"github.com/iudanet/labportal/internal/server/storage"
	"github.com/iudanet/labportal/internal/server/storage/sqlite"
)

const (
	// authRateLimit запросов в окно для эндпоинтов подбора пароля
	authRateLimit = 10

	shutdownTimeout = 10 * time.Second
)

// Server dev-бэкенд портала
type Server struct {
	Sessions *session.Manager

	logger   *slog.Logger
	store    *sqlite.Storage
	handler  http.Handler
	limiters []*middleware.RateLimiter
	cfg      config.ServerConfig
}

// Option настраивает Server
type Option func(*serverOptions)

type serverOptions struct {
	notifier handlers.ResetNotifier
	version  string
	secure   bool
}

// WithNotifier задает доставку ссылок сброса пароля
func WithNotifier(n handlers.ResetNotifier) Option {
	return func(o *serverOptions) {
		o.notifier = n
	}
}

// WithVersion задает версию для health check
func WithVersion(v string) Option {
	return func(o *serverOptions) {
		o.version = v
	}
}

// WithSecureCookies выставляет флаг Secure на cookie (за TLS прокси)
func WithSecureCookies() Option {
	return func(o *serverOptions) {
		o.secure = true
	}
}

// New собирает сервер поверх открытого хранилища
func New(cfg config.ServerConfig, store *sqlite.Storage, logger *slog.Logger, opts ...Option) *Server {
	o := serverOptions{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = handlers.LogNotifier{Logger: logger, BaseURL: "http://" + cfg.Addr}
	}

	s := &Server{
		Sessions: session.NewManager(cfg.SessionLifetime),
		logger:   logger,
		store:    store,
		cfg:      cfg,
	}

	auth := handlers.NewAuthHandler(logger, store, store, s.Sessions, o.notifier)
	echo := handlers.NewEchoHandler(logger)
	health := handlers.NewHealthHandler(logger, store, o.version)

	requireAuth := middleware.RequireAuth(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", health.Health)
	mux.HandleFunc("GET /sanctum/csrf-cookie", auth.CSRFCookie)
	mux.HandleFunc("POST /api/login", auth.Login)
	mux.HandleFunc("POST /api/register", auth.Register)
	mux.HandleFunc("POST /api/forgot-password", auth.ForgotPassword)
	mux.HandleFunc("POST /api/reset-password", auth.ResetPassword)
	mux.Handle("POST /api/logout", requireAuth(http.HandlerFunc(auth.Logout)))
	mux.Handle("GET /api/user", requireAuth(http.HandlerFunc(auth.User)))
	mux.Handle("GET /api/admin/ping", requireAuth(http.HandlerFunc(auth.AdminPing)))
	mux.Handle("POST /api/echo", requireAuth(http.HandlerFunc(echo.Echo)))

	general := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, logger)
	strict := middleware.NewRateLimiter(min(authRateLimit, cfg.RateLimit), cfg.RateWindow, logger)
	s.limiters = []*middleware.RateLimiter{general, strict}

	var h http.Handler = mux
	h = middleware.VerifyCSRF(middleware.DefaultCSRFHeader, logger)(h)
	h = middleware.StartSession(s.Sessions, o.secure, logger)(h)
	h = middleware.RateLimitByPathMiddleware(map[string]*middleware.RateLimiter{
		"/api/login":           strict,
		"/api/forgot-password": strict,
		"/api/reset-password":  strict,
	}, general)(h)
	h = middleware.LoggingWithSkip(logger, []string{"/api/health"})(h)
	h = middleware.RecoveryMiddleware(logger)(h)
	s.handler = h

	return s
}

// Handler возвращает корневой http.Handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close останавливает фоновые задачи rate limiter
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Stop()
	}
}

// SeedAdmin создает одобренную учетную запись с ролью admin,
// если ее еще нет
func (s *Server) SeedAdmin(ctx context.Context, email, password string) error {
	_, err := s.store.GetAccountByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrAccountNotFound) {
		return fmt.Errorf("failed to check admin account: %w", err)
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	now := time.Now()
	account := &models.Account{
		FirstName:       "Portal",
		LastName:        "Admin",
		Email:           email,
		PasswordHash:    hash,
		Status:          "professor",
		EmailVerifiedAt: &now,
		IsApproved:      true,
		Roles:           []string{handlers.RoleAdmin, handlers.RoleMember},
		CreatedAt:       now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	s.logger.InfoContext(ctx, "admin account created", slog.Int64("user_id", account.ID))
	return nil
}

// Run слушает cfg.Addr до отмены ctx, затем останавливается штатно
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.cleanupLoop(ctx)

	errC := make(chan error, 1)
	go func() {
		s.logger.Info("labapi-dev listening", slog.String("addr", s.cfg.Addr))
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// cleanupLoop удаляет истекшие сессии и токены сброса
func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *Server) cleanup(ctx context.Context) {
	sessions := s.Sessions.Cleanup()
	resets, err := s.store.DeleteExpiredResets(ctx, time.Now().Add(-handlers.ResetTokenTTL))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to delete expired resets", slog.Any("error", err))
	}
	if sessions > 0 || resets > 0 {
		s.logger.Debug("cleanup", slog.Int("sessions", sessions), slog.Int("resets", resets))
	}
}
