package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/labportal/pkg/api"
)

// fakeTokens имитирует token.Store: каждый Refresh выдает следующий токен
type fakeTokens struct {
	refreshErr error
	token      string
	next       []string
	refreshes  int
	mu         sync.Mutex
}

func (f *fakeTokens) Read() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	if len(f.next) > 0 {
		f.token = f.next[0]
		f.next = f.next[1:]
	}
	return nil
}

func (f *fakeTokens) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8000/", nil)

	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8000", client.baseURL)
	assert.Equal(t, DefaultHeaderName, client.headerName)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.NotNil(t, client.httpClient.CheckRedirect)
}

// TestClient_Do_InjectsHeaders проверяет подстановку CSRF и служебных заголовков
func TestClient_Do_InjectsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/members", r.URL.Path)
		assert.Equal(t, "tok-1", r.Header.Get("X-XSRF-TOKEN"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada", body["name"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, &fakeTokens{token: "tok-1"})

	var resp struct {
		ID int `json:"id"`
	}
	err := client.Post(context.Background(), "/api/members", map[string]string{"name": "Ada"}, &resp)

	require.NoError(t, err)
	assert.Equal(t, 7, resp.ID)
}

// TestClient_Do_NoToken проверяет, что без cookie заголовок не отправляется
func TestClient_Do_NoToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Xsrf-Token"]
		assert.False(t, present)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, &fakeTokens{})
	require.NoError(t, client.Get(context.Background(), "/api/pages", nil))
}

// TestClient_Do_Multipart проверяет, что multipart тело не превращается в JSON
func TestClient_Do_Multipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Annual report", r.FormValue("title"))

		file, header, err := r.FormFile("attachment")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.7", string(data))

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, &fakeTokens{token: "tok"})
	body := NewMultipart().
		Field("title", "Annual report").
		File("attachment", "report.pdf", strings.NewReader("%PDF-1.7"))

	// Заранее выставленный JSON тип не должен испортить boundary
	err := client.Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/publications",
		Body:   body,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	}, nil)

	require.NoError(t, err)
}

// TestClient_Do_TokenExpiredRetriedOnce проверяет единственный повтор после 419
func TestClient_Do_TokenExpiredRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			assert.Equal(t, "stale", r.Header.Get("X-XSRF-TOKEN"))
			w.WriteHeader(StatusTokenExpired)
			_, _ = w.Write([]byte(`{"message":"CSRF token mismatch."}`))
			return
		}
		assert.Equal(t, "fresh", r.Header.Get("X-XSRF-TOKEN"))

		// Тело повторного запроса должно совпадать с исходным
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "value", body["key"])

		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "stale", next: []string{"fresh"}}
	client := NewClient(server.URL, tokens)

	var resp struct {
		OK bool `json:"ok"`
	}
	err := client.Post(context.Background(), "/api/settings", map[string]string{"key": "value"}, &resp)

	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, tokens.refreshCount())
}

// TestClient_Do_TokenExpiredTwice проверяет, что второй 419 не повторяется
func TestClient_Do_TokenExpiredTwice(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(StatusTokenExpired)
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "stale", next: []string{"still-stale", "never"}}
	client := NewClient(server.URL, tokens)

	err := client.Post(context.Background(), "/api/settings", map[string]string{}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, tokens.refreshCount())
}

// TestClient_Do_RefreshFails проверяет, что при ошибке обновления повтора нет
func TestClient_Do_RefreshFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(StatusTokenExpired)
	}))
	defer server.Close()

	refreshErr := errors.New("csrf endpoint down")
	client := NewClient(server.URL, &fakeTokens{token: "stale", refreshErr: refreshErr})

	err := client.Post(context.Background(), "/api/settings", nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.ErrorIs(t, err, refreshErr)
	assert.Equal(t, int32(1), calls.Load())
}

// TestClient_Do_NoTokenRetry проверяет отключение автоматического повтора
func TestClient_Do_NoTokenRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(StatusTokenExpired)
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "stale", next: []string{"fresh"}}
	client := NewClient(server.URL, tokens)

	err := client.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/x", NoTokenRetry: true}, nil)

	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, tokens.refreshCount())
}

// TestClient_Do_Unauthenticated проверяет политику 401
func TestClient_Do_Unauthenticated(t *testing.T) {
	tests := []struct {
		name         string
		req          Request
		wantRedirect int
	}{
		{
			name:         "probe is silent",
			req:          Request{Method: http.MethodGet, Path: PathUser, Probe: true},
			wantRedirect: 0,
		},
		{
			name:         "explicit action redirects",
			req:          Request{Method: http.MethodPost, Path: "/api/members"},
			wantRedirect: 1,
		},
		{
			name:         "anonymous endpoint does not redirect",
			req:          Request{Method: http.MethodPost, Path: PathLogin, Anonymous: true},
			wantRedirect: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"Unauthenticated."}`))
			}))
			defer server.Close()

			redirects := 0
			client := NewClient(server.URL, &fakeTokens{token: "t"},
				WithRedirector(RedirectFunc(func(ctx context.Context) { redirects++ })))

			req := tt.req
			err := client.Do(context.Background(), &req, nil)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnauthenticated)
			assert.Equal(t, tt.wantRedirect, redirects)
		})
	}
}

// TestClient_Do_ValidationFailed проверяет извлечение первого сообщения по полю
func TestClient_Do_ValidationFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"The email has already been taken.","errors":{"email":["already taken","second"]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, &fakeTokens{token: "t"})

	_, err := client.Register(context.Background(), api.RegisterRequest{Email: "a@b.com"})

	require.Error(t, err)
	assert.Equal(t, "already taken", err.Error())

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindValidationFailed, apiErr.Kind)
	assert.Equal(t, "already taken", apiErr.Field("email"))
}

// TestClient_Do_NetworkUnreachable проверяет ошибку транспорта
func TestClient_Do_NetworkUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, nil)
	err := client.Get(context.Background(), "/api/pages", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkUnreachable)
	assert.Equal(t, KindNetworkUnreachable, KindOf(err))
}

// TestClient_Do_Timeout проверяет ограничение времени запроса
func TestClient_Do_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, nil, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	err := client.Get(context.Background(), "/slow", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkUnreachable)
}

// TestClient_Do_ServerErrorMessage проверяет, что сырой ответ 5xx не показывается
func TestClient_Do_ServerErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("stack trace: at App\\Http\\Kernel ..."))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	err := client.Get(context.Background(), "/api/pages", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.NotContains(t, err.Error(), "stack trace")
}

// TestClient_GetUser проверяет декодирование пользователя
func TestClient_GetUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, PathUser, r.URL.Path)
		_, _ = w.Write([]byte(`{"id":1,"name":"A","email":"a@b.com","email_verified_at":null,"roles":[{"name":"admin","guard_name":"web"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	user, err := client.GetUser(context.Background(), true)

	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "A", user.Name)
	assert.Nil(t, user.EmailVerifiedAt)
	require.Len(t, user.Roles, 1)
	assert.Equal(t, "admin", user.Roles[0].Name)
}

// TestClient_Login проверяет тело запроса логина
func TestClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathLogin, r.URL.Path)
		var req api.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a@b.com", req.Email)
		assert.Equal(t, "x", req.Password)
		_, _ = w.Write([]byte(`{"redirect_url":"/admin"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, &fakeTokens{token: "t"})
	resp, err := client.Login(context.Background(), api.LoginRequest{Email: "a@b.com", Password: "x"})

	require.NoError(t, err)
	assert.Equal(t, "/admin", resp.RedirectURL)
}

// TestClient_Do_RawBytesResult проверяет получение тела ответа как есть
func TestClient_Do_RawBytesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[1,2,3]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	var raw []byte
	require.NoError(t, client.Get(context.Background(), "/api/members", &raw))
	assert.JSONEq(t, `{"data":[1,2,3]}`, string(raw))
}
