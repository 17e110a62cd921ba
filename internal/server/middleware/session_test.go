package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/labportal/internal/server/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestStartSession_IssuesCookies(t *testing.T) {
	manager := session.NewManager(time.Hour)
	handler := StartSession(manager, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, SessionFrom(r).ID)
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sanctum/csrf-cookie", nil))

	resp := w.Result()
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	sessCookie := cookieByName(resp.Cookies(), SessionCookieName)
	require.NotNil(t, sessCookie)
	assert.True(t, sessCookie.HttpOnly)

	csrfCookie := cookieByName(resp.Cookies(), CSRFCookieName)
	require.NotNil(t, csrfCookie)
	assert.False(t, csrfCookie.HttpOnly)

	s, err := manager.Get(sessCookie.Value)
	require.NoError(t, err)
	decoded, err := url.QueryUnescape(csrfCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, s.CSRFToken, decoded)
}

func TestStartSession_ReusesAndReplaces(t *testing.T) {
	manager := session.NewManager(time.Hour)
	existing, err := manager.Start()
	require.NoError(t, err)

	var replaced session.Session
	handler := StartSession(manager, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, existing.ID, SessionFrom(r).ID)
		replaced, err = manager.Login(existing.ID, 5)
		require.NoError(t, err)
		ReplaceSession(r, replaced)
		_, _ = w.Write([]byte(`{}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: existing.ID})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	sessCookie := cookieByName(w.Result().Cookies(), SessionCookieName)
	require.NotNil(t, sessCookie)
	assert.Equal(t, replaced.ID, sessCookie.Value)
}

func TestStartSession_UnknownCookieStartsFresh(t *testing.T) {
	manager := session.NewManager(time.Hour)
	handler := StartSession(manager, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "stale"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	sessCookie := cookieByName(w.Result().Cookies(), SessionCookieName)
	require.NotNil(t, sessCookie)
	assert.NotEqual(t, "stale", sessCookie.Value)
	assert.Equal(t, 1, manager.Len())
}

func TestVerifyCSRF(t *testing.T) {
	s := session.Session{ID: "sid", CSRFToken: "a+b/c=="}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := VerifyCSRF("", discardLogger())(ok)

	tests := []struct {
		name       string
		method     string
		header     string
		wantStatus int
	}{
		{name: "GET is not checked", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "POST with matching token", method: http.MethodPost, header: "a+b/c==", wantStatus: http.StatusOK},
		{name: "POST without token", method: http.MethodPost, wantStatus: StatusTokenMismatch},
		{name: "POST with url-encoded token", method: http.MethodPost, header: url.QueryEscape("a+b/c=="), wantStatus: StatusTokenMismatch},
		{name: "DELETE with wrong token", method: http.MethodDelete, header: "other", wantStatus: StatusTokenMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := WithSession(httptest.NewRequest(tt.method, "/api/logout", nil), s)
			if tt.header != "" {
				req.Header.Set(DefaultCSRFHeader, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == StatusTokenMismatch {
				assert.JSONEq(t, `{"message":"CSRF token mismatch."}`, w.Body.String())
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	handler := RequireAuth(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, WithSession(httptest.NewRequest(http.MethodGet, "/api/user", nil), session.Session{ID: "guest"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"Unauthenticated."}`, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, WithSession(httptest.NewRequest(http.MethodGet, "/api/user", nil), session.Session{ID: "user", UserID: 1}))
	assert.Equal(t, http.StatusOK, w.Code)
}
