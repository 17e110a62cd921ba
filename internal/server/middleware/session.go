package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/iudanet/labportal/internal/server/session"
)

const (
	// SessionCookieName cookie с идентификатором сессии (HttpOnly)
	SessionCookieName = "labportal_session"
	// CSRFCookieName cookie с CSRF токеном, доступная клиенту для чтения
	CSRFCookieName = "XSRF-TOKEN"
)

type sessionKey struct{}

// sessionHolder текущая сессия запроса; обработчик может ее заменить
// (вход, выход), cookie пишутся по финальному значению
type sessionHolder struct {
	current session.Session
	mu      sync.Mutex
}

// SessionFrom возвращает сессию запроса
func SessionFrom(r *http.Request) session.Session {
	h, ok := r.Context().Value(sessionKey{}).(*sessionHolder)
	if !ok {
		return session.Session{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// ReplaceSession заменяет сессию запроса; вызывается до записи ответа
func ReplaceSession(r *http.Request, s session.Session) {
	h, ok := r.Context().Value(sessionKey{}).(*sessionHolder)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = s
}

// WithSession возвращает запрос с заданной сессией (для тестов обработчиков)
func WithSession(r *http.Request, s session.Session) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), sessionKey{}, &sessionHolder{current: s}))
}

// sessionWriter добавляет cookie сессии перед первой записью ответа
type sessionWriter struct {
	http.ResponseWriter
	holder      *sessionHolder
	secure      bool
	wroteHeader bool
}

func (sw *sessionWriter) WriteHeader(code int) {
	sw.writeCookies()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *sessionWriter) Write(b []byte) (int, error) {
	sw.writeCookies()
	return sw.ResponseWriter.Write(b)
}

func (sw *sessionWriter) writeCookies() {
	if sw.wroteHeader {
		return
	}
	sw.wroteHeader = true

	sw.holder.mu.Lock()
	s := sw.holder.current
	sw.holder.mu.Unlock()

	http.SetCookie(sw.ResponseWriter, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   sw.secure,
		SameSite: http.SameSiteLaxMode,
	})
	// токен в cookie URL-кодирован, клиент декодирует его перед отправкой
	http.SetCookie(sw.ResponseWriter, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    url.QueryEscape(s.CSRFToken),
		Path:     "/",
		Expires:  s.ExpiresAt,
		Secure:   sw.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// StartSession загружает сессию по cookie или начинает новую.
// Каждый ответ несет cookie сессии и XSRF-TOKEN.
func StartSession(manager *session.Manager, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				s   session.Session
				err error
			)
			if c, cerr := r.Cookie(SessionCookieName); cerr == nil {
				s, err = manager.Get(c.Value)
			}
			if s.ID == "" || err != nil {
				s, err = manager.Start()
				if err != nil {
					logger.ErrorContext(r.Context(), "failed to start session", slog.Any("error", err))
					writeMessage(w, http.StatusInternalServerError, "Server Error")
					return
				}
			}

			holder := &sessionHolder{current: s}
			sw := &sessionWriter{ResponseWriter: w, holder: holder, secure: secure}
			ctx := context.WithValue(r.Context(), sessionKey{}, holder)

			next.ServeHTTP(sw, r.WithContext(ctx))

			// обработчик ничего не записал: неявный 200 тоже несет cookie
			sw.writeCookies()
		})
	}
}
