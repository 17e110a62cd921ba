// Package servertest поднимает dev-бэкенд в httptest для тестов клиента
package servertest

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/labportal/internal/config"
	"github.com/iudanet/labportal/internal/crypto"
	"github.com/iudanet/labportal/internal/models"
	"github.com/iudanet/labportal/internal/server"
	"github.com/iudanet/labportal/internal/server/handlers"
	"github.com/iudanet/labportal/internal/server/storage/sqlite"
)

const (
	AdminEmail     = "admin@lab.example.org"
	AdminPassword  = "admin-password"
	MemberEmail    = "member@lab.example.org"
	MemberPassword = "member-password"
)

// Notifier запоминает выданные токены сброса пароля
type Notifier struct {
	tokens map[string]string
	mu     sync.Mutex
}

// SendResetLink implements handlers.ResetNotifier
func (n *Notifier) SendResetLink(ctx context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[email] = token
	return nil
}

// Token последний токен для email
func (n *Notifier) Token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

// Env запущенный dev-бэкенд
type Env struct {
	Server   *server.Server
	HTTP     *httptest.Server
	Store    *sqlite.Storage
	Notifier *Notifier
	URL      string
}

// Start поднимает сервер с in-memory базой, админом и участником.
// Все ресурсы освобождаются через t.Cleanup.
func Start(t testing.TB) *Env {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	cfg := config.Default().Server
	cfg.RateLimit = 10000

	notifier := &Notifier{}
	srv := server.New(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)),
		server.WithNotifier(notifier),
		server.WithVersion("test"),
	)
	t.Cleanup(srv.Close)

	require.NoError(t, srv.SeedAdmin(ctx, AdminEmail, AdminPassword))

	hash, err := crypto.HashPassword(MemberPassword)
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(ctx, &models.Account{
		FirstName:    "Marie",
		LastName:     "Curie",
		Email:        MemberEmail,
		PasswordHash: hash,
		Status:       "researcher",
		Roles:        []string{handlers.RoleMember},
	}))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &Env{
		Server:   srv,
		HTTP:     ts,
		Store:    store,
		Notifier: notifier,
		URL:      ts.URL,
	}
}

// ClientConfig конфигурация клиента, направленная на этот сервер
func (e *Env) ClientConfig(sessionDB string) config.ClientConfig {
	cfg := config.Default().Client
	cfg.BaseURL = e.URL
	cfg.SessionDB = sessionDB
	return cfg
}

// Restart теряет все сессии, как перезапуск процесса
func (e *Env) Restart() {
	e.Server.Sessions.Flush()
}
