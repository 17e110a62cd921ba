package middleware

import (
	"log/slog"
	"net/http"
)

// RequireAuth отвечает 401, если в сессии не выполнен вход
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !SessionFrom(r).Authenticated() {
				logger.DebugContext(r.Context(), "unauthenticated request", "path", r.URL.Path)
				writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
