package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHeaderName заголовок, в который зеркалируется CSRF токен
	DefaultHeaderName = "X-XSRF-TOKEN"
	// RequestIDHeader идентификатор запроса для корреляции логов
	RequestIDHeader = "X-Request-ID"
	// DefaultTimeout ограничение на один запрос
	DefaultTimeout = 30 * time.Second
)

//go:generate moq -out tokens_mock_test.go . TokenSource

// TokenSource источник CSRF токена (token.Store)
type TokenSource interface {
	// Read возвращает текущий токен из cookie jar
	Read() (string, bool)
	// Refresh запрашивает у сервера новую CSRF cookie
	Refresh(ctx context.Context) error
}

// LoginRedirector вызывается, когда явное действие пользователя получило 401
type LoginRedirector interface {
	RedirectToLogin(ctx context.Context)
}

// RedirectFunc адаптер функции к LoginRedirector
type RedirectFunc func(ctx context.Context)

// RedirectToLogin implements LoginRedirector
func (f RedirectFunc) RedirectToLogin(ctx context.Context) {
	f(ctx)
}

// Request описывает один вызов API
type Request struct {
	// Body: nil, *Multipart, RawBody, []byte, io.Reader или значение для JSON
	Body   any
	Header http.Header
	Query  url.Values
	Method string
	Path   string
	// Probe - фоновая проверка сессии: 401 не считается ошибкой для пользователя
	// и не вызывает редирект
	Probe bool
	// Anonymous - эндпоинт вызывается без сессии (login, register ...):
	// 401 означает неверные данные, а не истекшую сессию
	Anonymous bool
	// NoTokenRetry отключает автоматический повтор после 419;
	// используется потоками, которые сами владеют точкой повтора
	NoTokenRetry bool
}

// Client - единая точка всех запросов к API.
// Подставляет CSRF заголовок, классифицирует ошибки и
// выполняет ровно один повтор после обновления токена.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	redirector LoginRedirector
	logger     *slog.Logger
	baseURL    string
	headerName string
}

// Option настраивает Client
type Option func(*Client)

// WithHTTPClient задает http.Client (должен разделять cookie jar с token.Store)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRedirector задает обработчик 401 на явных действиях пользователя
func WithRedirector(r LoginRedirector) Option {
	return func(c *Client) {
		c.redirector = r
	}
}

// WithHeaderName задает имя CSRF заголовка
func WithHeaderName(name string) Option {
	return func(c *Client) {
		c.headerName = name
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		headerName: DefaultHeaderName,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.httpClient.CheckRedirect == nil {
		c.httpClient.CheckRedirect = c.checkRedirect
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return c
}

// checkRedirect ограничивает количество редиректов и переносит CSRF заголовок
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if len(via) > 0 {
		if v := via[0].Header.Get(c.headerName); v != "" {
			req.Header.Set(c.headerName, v)
		}
	}
	return nil
}

// Do выполняет запрос и декодирует JSON ответ в result (если не nil).
//
// Конвейер: попытка -> при 419 обновление токена -> ровно одна повторная
// попытка -> ошибка. Второй 419 не повторяется.
func (c *Client) Do(ctx context.Context, r *Request, result any) error {
	payload, contentType, err := encodeBody(r.Body)
	if err != nil {
		return err
	}

	body, apiErr := c.dispatch(ctx, r, payload, contentType)

	if apiErr != nil && apiErr.Kind == KindTokenExpired && !r.NoTokenRetry && c.tokens != nil {
		c.logger.InfoContext(ctx, "csrf token expired, refreshing",
			"method", r.Method,
			"path", r.Path,
		)

		if err := c.tokens.Refresh(ctx); err != nil {
			return c.fail(ctx, r, refreshFailure(apiErr, err))
		}

		// Обновленный токен читается заново внутри dispatch
		body, apiErr = c.dispatch(ctx, r, payload, contentType)
	}

	if apiErr != nil {
		return c.fail(ctx, r, apiErr)
	}

	return decodeResult(body, result)
}

// RefreshToken принудительно обновляет CSRF cookie
func (c *Client) RefreshToken(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	return c.tokens.Refresh(ctx)
}

// HasToken сообщает, выдан ли уже CSRF токен
func (c *Client) HasToken() bool {
	if c.tokens == nil {
		return false
	}
	_, ok := c.tokens.Read()
	return ok
}

// dispatch выполняет одну попытку запроса
func (c *Client) dispatch(ctx context.Context, r *Request, payload []byte, contentType string) ([]byte, *Error) {
	var bodyReader io.Reader = http.NoBody
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.url(r), bodyReader)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "failed to create request", Err: err}
	}

	for name, values := range r.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	if _, isMultipart := r.Body.(*Multipart); isMultipart {
		// boundary задает multipart.Writer, заранее выставленный тип недопустим
		req.Header.Set("Content-Type", contentType)
	} else if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	// Токен читается перед каждой попыткой: после refresh значение новое
	if c.tokens != nil {
		if token, ok := c.tokens.Read(); ok {
			req.Header.Set(c.headerName, token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NetworkError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NetworkError(fmt.Errorf("failed to read response body: %w", err))
	}

	if apiErr := Classify(resp.StatusCode, respBody); apiErr != nil {
		return respBody, apiErr
	}

	return respBody, nil
}

// fail логирует классифицированную ошибку и применяет политику 401
func (c *Client) fail(ctx context.Context, r *Request, apiErr *Error) error {
	level := slog.LevelWarn
	switch apiErr.Kind {
	case KindServerError, KindNetworkUnreachable:
		level = slog.LevelError
	case KindUnauthenticated:
		if r.Probe {
			level = slog.LevelDebug
		}
	}

	attrs := []any{
		"method", r.Method,
		"path", r.Path,
		"status", apiErr.Status,
		"kind", apiErr.Kind.String(),
	}
	if apiErr.Err != nil {
		attrs = append(attrs, "error", apiErr.Err)
	}
	c.logger.Log(ctx, level, "API request failed", attrs...)

	if apiErr.Kind == KindUnauthenticated && !r.Probe && !r.Anonymous && c.redirector != nil {
		c.redirector.RedirectToLogin(ctx)
	}

	return apiErr
}

func (c *Client) url(r *Request) string {
	path := r.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

// refreshFailure формирует терминальную ошибку, когда не удалось обновить токен
func refreshFailure(original *Error, refreshErr error) *Error {
	var e *Error
	if errors.As(refreshErr, &e) {
		return e
	}
	return &Error{
		Kind:    KindTokenExpired,
		Status:  original.Status,
		Message: original.Message,
		Err:     refreshErr,
	}
}

func decodeResult(body []byte, result any) error {
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = append((*raw)[:0], body...)
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
