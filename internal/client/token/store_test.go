package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/labportal/internal/client/api"
	"github.com/iudanet/labportal/internal/client/jar"
)

func newHTTPClient(t *testing.T) *http.Client {
	t.Helper()
	j, err := jar.New()
	require.NoError(t, err)
	return &http.Client{Jar: j, Timeout: 5 * time.Second}
}

// csrfServer выдает новый токен на каждый вызов эндпоинта
func csrfServer(t *testing.T, calls *atomic.Int32, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultCSRFPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n := calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		value := "tok%3D" + string(rune('0'+n))
		http.SetCookie(w, &http.Cookie{Name: DefaultCookieName, Value: value, Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore("http://localhost", &http.Client{})
	require.Error(t, err)

	_, err = NewStore("localhost", newHTTPClient(t))
	require.Error(t, err)

	s, err := NewStore("http://localhost:8000/", newHTTPClient(t), WithCookieName("TOKEN"), WithCSRFPath("/csrf"))
	require.NoError(t, err)
	assert.Equal(t, "TOKEN", s.cookieName)
	assert.Equal(t, "/csrf", s.csrfPath)
}

func TestStore_ReadBeforeFirstContact(t *testing.T) {
	s, err := NewStore("http://localhost:8000", newHTTPClient(t))
	require.NoError(t, err)

	token, ok := s.Read()
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestStore_RefreshThenRead(t *testing.T) {
	var calls atomic.Int32
	server := csrfServer(t, &calls, 0)
	defer server.Close()

	s, err := NewStore(server.URL, newHTTPClient(t))
	require.NoError(t, err)

	require.NoError(t, s.Refresh(context.Background()))

	// Значение cookie URL-декодируется
	token, ok := s.Read()
	require.True(t, ok)
	assert.Equal(t, "tok=1", token)

	require.NoError(t, s.Refresh(context.Background()))
	token, _ = s.Read()
	assert.Equal(t, "tok=2", token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStore_RefreshCoalesced(t *testing.T) {
	var calls atomic.Int32
	server := csrfServer(t, &calls, 100*time.Millisecond)
	defer server.Close()

	s, err := NewStore(server.URL, newHTTPClient(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Refresh(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestStore_RefreshCallerCancel(t *testing.T) {
	var calls atomic.Int32
	server := csrfServer(t, &calls, 200*time.Millisecond)
	defer server.Close()

	s, err := NewStore(server.URL, newHTTPClient(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Refresh(ctx), context.DeadlineExceeded)

	// Общий запрос продолжает выполняться и обновляет jar
	assert.Eventually(t, func() bool {
		_, ok := s.Read()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStore_RefreshErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		s, err := NewStore(server.URL, newHTTPClient(t))
		require.NoError(t, err)
		assert.ErrorIs(t, s.Refresh(context.Background()), api.ErrServerError)
	})

	t.Run("cookie missing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		s, err := NewStore(server.URL, newHTTPClient(t))
		require.NoError(t, err)
		assert.ErrorIs(t, s.Refresh(context.Background()), ErrTokenMissing)
	})

	t.Run("network unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		s, err := NewStore(url, newHTTPClient(t))
		require.NoError(t, err)
		assert.ErrorIs(t, s.Refresh(context.Background()), api.ErrNetworkUnreachable)
	})
}

// TestClientWithStore_RetryAfterRefresh проверяет полный цикл 419:
// обновление токена, исходный запрос и повтор - ровно три вызова.
func TestClientWithStore_RetryAfterRefresh(t *testing.T) {
	var total, csrfCalls, apiCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		total.Add(1)
		switch r.URL.Path {
		case DefaultCSRFPath:
			n := csrfCalls.Add(1)
			http.SetCookie(w, &http.Cookie{Name: DefaultCookieName, Value: "gen" + string(rune('0'+n)), Path: "/"})
			w.WriteHeader(http.StatusNoContent)
		case "/api/settings":
			apiCalls.Add(1)
			if r.Header.Get(api.DefaultHeaderName) != "gen1" {
				w.WriteHeader(api.StatusTokenExpired)
				return
			}
			_, _ = w.Write([]byte(`{"saved":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	hc := newHTTPClient(t)
	s, err := NewStore(server.URL, hc)
	require.NoError(t, err)
	client := api.NewClient(server.URL, s, api.WithHTTPClient(hc))

	var resp struct {
		Saved bool `json:"saved"`
	}
	err = client.Put(context.Background(), "/api/settings", map[string]string{"lang": "en"}, &resp)

	require.NoError(t, err)
	assert.True(t, resp.Saved)
	assert.Equal(t, int32(3), total.Load())
	assert.Equal(t, int32(1), csrfCalls.Load())
	assert.Equal(t, int32(2), apiCalls.Load())
}
