package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RequestIDHeader заголовок, которым клиент помечает запрос
const RequestIDHeader = "X-Request-ID"

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the number of bytes written
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// LoggingMiddleware создает middleware для логирования HTTP запросов.
// НЕ логирует sensitive данные (cookie, CSRF токены, пароли).
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			logLevel := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				logLevel = slog.LevelError
			case wrapped.statusCode >= 400:
				logLevel = slog.LevelWarn
			}

			logger.Log(r.Context(), logLevel, "HTTP request",
				"request_id", r.Header.Get(RequestIDHeader),
				"method", r.Method,
				"path", sanitizePath(r.URL.Path),
				"remote_addr", r.RemoteAddr,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes_written", wrapped.written,
			)
		})
	}
}

// sanitizePath маскирует сегмент после /token/ или /reset/
func sanitizePath(path string) string {
	if !strings.Contains(path, "/token/") && !strings.Contains(path, "/reset/") {
		return path
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if (part == "token" || part == "reset") && i+1 < len(parts) && parts[i+1] != "" {
			parts[i+1] = "***"
		}
	}
	return strings.Join(parts, "/")
}

// LoggingWithSkip не логирует перечисленные пути (health checks)
func LoggingWithSkip(logger *slog.Logger, skipPaths []string) func(http.Handler) http.Handler {
	skipMap := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skipMap[path] = true
	}

	return func(next http.Handler) http.Handler {
		logged := LoggingMiddleware(logger)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipMap[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			logged.ServeHTTP(w, r)
		})
	}
}
