// Package token читает CSRF токен из cookie jar и обновляет его.
package token

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/iudanet/labportal/internal/client/api"
)

const (
	// DefaultCookieName cookie, в которой сервер выдает токен
	DefaultCookieName = "XSRF-TOKEN"
	// DefaultCSRFPath эндпоинт выдачи CSRF cookie
	DefaultCSRFPath = "/sanctum/csrf-cookie"
)

// ErrTokenMissing сервер ответил успешно, но cookie с токеном не появилась
var ErrTokenMissing = errors.New("csrf cookie not set by server")

// Store - источник CSRF токена для api.Client.
// Значение токена записывает только сервер через Set-Cookie;
// Store его лишь читает.
type Store struct {
	httpClient *http.Client
	base       *url.URL
	logger     *slog.Logger
	group      singleflight.Group
	csrfPath   string
	cookieName string
}

// Option настраивает Store
type Option func(*Store)

// WithCookieName задает имя cookie с токеном
func WithCookieName(name string) Option {
	return func(s *Store) {
		s.cookieName = name
	}
}

// WithCSRFPath задает путь эндпоинта выдачи токена
func WithCSRFPath(path string) Option {
	return func(s *Store) {
		s.csrfPath = path
	}
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore создает Store. httpClient должен иметь Jar и быть тем же клиентом,
// что использует api.Client, иначе токен и сессия разойдутся.
func NewStore(baseURL string, httpClient *http.Client, opts ...Option) (*Store, error) {
	if httpClient == nil || httpClient.Jar == nil {
		return nil, fmt.Errorf("token store requires an http client with a cookie jar")
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	s := &Store{
		httpClient: httpClient,
		base:       base,
		csrfPath:   DefaultCSRFPath,
		cookieName: DefaultCookieName,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "token_store")

	return s, nil
}

// Read возвращает URL-декодированное значение cookie с токеном.
// false, если сервер еще не выдал cookie.
func (s *Store) Read() (string, bool) {
	for _, c := range s.httpClient.Jar.Cookies(s.base) {
		if c.Name != s.cookieName || c.Value == "" {
			continue
		}
		value, err := url.PathUnescape(c.Value)
		if err != nil {
			value = c.Value
		}
		return value, true
	}
	return "", false
}

// Refresh запрашивает новую CSRF cookie.
// Возвращается только после того, как ответ прочитан и jar обновлен.
// Одновременные вызовы объединяются в один запрос; отмена ctx прекращает
// ожидание, но не общий запрос.
func (s *Store) Refresh(ctx context.Context) error {
	ch := s.group.DoChan("refresh", func() (any, error) {
		return nil, s.fetch(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) fetch(ctx context.Context) error {
	u := *s.base
	u.Path = strings.TrimRight(s.base.Path, "/") + s.csrfPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create csrf request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "csrf refresh failed", "error", err)
		return api.NetworkError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.NetworkError(fmt.Errorf("failed to read csrf response: %w", err))
	}

	if apiErr := api.Classify(resp.StatusCode, body); apiErr != nil {
		s.logger.WarnContext(ctx, "csrf refresh rejected",
			"status", resp.StatusCode,
			"kind", apiErr.Kind.String(),
		)
		return apiErr
	}

	if _, ok := s.Read(); !ok {
		return ErrTokenMissing
	}

	s.logger.DebugContext(ctx, "csrf token refreshed")
	return nil
}
