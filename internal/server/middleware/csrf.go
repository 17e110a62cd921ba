package middleware

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/labportal/internal/crypto"
)

// DefaultCSRFHeader заголовок, в который клиент зеркалирует токен из cookie
const DefaultCSRFHeader = "X-XSRF-TOKEN"

// StatusTokenMismatch статус Laravel "Page Expired"
const StatusTokenMismatch = 419

// VerifyCSRF проверяет double-submit токен для изменяющих запросов.
// Должен стоять после StartSession.
func VerifyCSRF(headerName string, logger *slog.Logger) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = DefaultCSRFHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			s := SessionFrom(r)
			given := r.Header.Get(headerName)
			if given == "" || s.CSRFToken == "" || !crypto.TokenEqual(given, s.CSRFToken) {
				logger.WarnContext(r.Context(), "CSRF token mismatch",
					"method", r.Method,
					"path", r.URL.Path,
					"header_present", given != "",
				)
				writeMessage(w, StatusTokenMismatch, "CSRF token mismatch.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
