// Package app собирает клиентское ядро: cookie jar, HTTP клиент,
// хранилище CSRF токена, API клиент, сессию и guard.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/iudanet/labportal/internal/client/api"
	"github.com/iudanet/labportal/internal/client/auth"
	"github.com/iudanet/labportal/internal/client/guard"
	"github.com/iudanet/labportal/internal/client/jar"
	"github.com/iudanet/labportal/internal/client/storage/boltdb"
	"github.com/iudanet/labportal/internal/client/token"
	"github.com/iudanet/labportal/internal/config"
	"github.com/iudanet/labportal/internal/crypto"
	"github.com/iudanet/labportal/internal/logging"
)

// App - собранное клиентское ядро
type App struct {
	Client  *api.Client
	Tokens  *token.Store
	Session *auth.Session
	Flows   *auth.Flows

	logger     *slog.Logger
	persistent *jar.Persistent
	store      *boltdb.Storage
	redirector api.LoginRedirector
	transport  http.RoundTripper
	loginPath  string
}

// Option настраивает App
type Option func(*App)

// WithRedirector задает реакцию на 401 при явном действии пользователя
func WithRedirector(r api.LoginRedirector) Option {
	return func(a *App) {
		a.redirector = r
	}
}

// WithTransport задает http.RoundTripper (например, для тестов)
func WithTransport(rt http.RoundTripper) Option {
	return func(a *App) {
		a.transport = rt
	}
}

// New собирает клиентское ядро по конфигурации.
// Если cfg.SessionDB не пуст, cookie сессии сохраняются между запусками
// в зашифрованном виде.
func New(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	a := &App{
		logger:    logger,
		loginPath: cfg.LoginPath,
	}
	for _, opt := range opts {
		opt(a)
	}

	cookieJar, err := a.openJar(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Jar:       cookieJar,
		Timeout:   cfg.Timeout,
		Transport: a.transport,
	}

	a.Tokens, err = token.NewStore(cfg.BaseURL, httpClient,
		token.WithCookieName(cfg.CookieName),
		token.WithCSRFPath(cfg.CSRFPath),
		token.WithLogger(logger),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	clientOpts := []api.Option{
		api.WithHTTPClient(httpClient),
		api.WithLogger(logger.With("component", "api_client")),
		api.WithHeaderName(cfg.HeaderName),
	}
	if a.redirector != nil {
		clientOpts = append(clientOpts, api.WithRedirector(a.redirector))
	}
	a.Client = api.NewClient(cfg.BaseURL, a.Tokens, clientOpts...)

	a.Session = auth.NewSession(a.Client,
		auth.WithLogger(logger),
		auth.WithLogoutHook(a.clearSession),
	)
	a.Flows = auth.NewFlows(a.Client, logger)

	return a, nil
}

// Bootstrap запрашивает CSRF cookie, если ее еще нет.
// Вызывается один раз при старте до первых запросов.
func (a *App) Bootstrap(ctx context.Context) error {
	if _, ok := a.Tokens.Read(); ok {
		return nil
	}
	if err := a.Tokens.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to obtain csrf token: %w", err)
	}
	return nil
}

// Guard создает guard; role пустая - достаточно входа
func (a *App) Guard(role string) *guard.Guard {
	opts := []guard.Option{guard.WithLogger(a.logger)}
	if a.loginPath != "" {
		opts = append(opts, guard.WithLoginPath(a.loginPath))
	}
	if role != "" {
		opts = append(opts, guard.WithRole(role))
	}
	return guard.New(a.Session, opts...)
}

// Close закрывает хранилище сессии
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *App) openJar(ctx context.Context, cfg config.ClientConfig) (http.CookieJar, error) {
	if cfg.SessionDB == "" {
		return jar.New()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SessionDB), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	key, err := crypto.LoadOrCreateKey(cfg.SessionDB + ".key")
	if err != nil {
		return nil, err
	}

	a.store, err = boltdb.New(ctx, cfg.SessionDB)
	if err != nil {
		return nil, err
	}

	a.persistent, err = jar.NewPersistent(ctx, cfg.BaseURL, a.store, key, jar.WithLogger(a.logger))
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a.persistent, nil
}

// clearSession удаляет сохраненные cookie после выхода и сразу получает
// новый гостевой CSRF токен, чтобы следующий POST не начинался с 419
func (a *App) clearSession(ctx context.Context) error {
	if a.persistent == nil {
		return nil
	}
	if err := a.persistent.Clear(ctx); err != nil {
		return err
	}
	if err := a.Tokens.Refresh(ctx); err != nil {
		// не критично: первый изменяющий запрос обновит токен сам
		a.logger.WarnContext(ctx, "failed to refresh csrf token after logout", "error", err)
	}
	return nil
}
