package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/iudanet/labportal/internal/client/api"
	"github.com/iudanet/labportal/internal/models"
	pkgapi "github.com/iudanet/labportal/pkg/api"
)

// Credentials данные для входа
type Credentials struct {
	Email    string
	Password string
}

// Session - единственный источник истины о текущем пользователе.
// Состояние меняется только через CheckAuth, Login, Logout и ClearError.
//
// Правило гонок: завершившийся Login или Logout авторитетнее проверки,
// начатой до него. Такая проверка свой результат не применяет.
type Session struct {
	backend     Backend
	logger      *slog.Logger
	changed     chan struct{}
	probe       *probeCall
	onLogout    []func(ctx context.Context) error
	state       State
	redirectURL string
	epoch       uint64
	probeSeq    uint64
	ops         int
	mu          sync.Mutex
}

// probeCall - выполняющийся запрос "кто я"
type probeCall struct {
	done       chan struct{}
	err        error
	epoch      uint64
	seq        uint64
	joined     int
	prevStatus Status
}

func (p *probeCall) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option настраивает Session
type Option func(*Session)

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithLogoutHook добавляет действие после выхода (например, очистка
// сохраненной сессии). Выполняется независимо от результата запроса.
func WithLogoutHook(hook func(ctx context.Context) error) Option {
	return func(s *Session) {
		s.onLogout = append(s.onLogout, hook)
	}
}

// NewSession создает сессию в состоянии StatusUninitialized.
// Сервер при создании не опрашивается.
func NewSession(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend: backend,
		changed: make(chan struct{}),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "auth_session")
	return s
}

// Snapshot возвращает копию текущего состояния
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.User = st.User.Clone()
	return st
}

// Changed возвращает канал, который закрывается при следующем изменении состояния
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// RedirectURL возвращает redirect_url последнего успешного входа
func (s *Session) RedirectURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirectURL
}

// CheckAuth проверяет сессию запросом GET /api/user.
// Если проверка уже идет и force=false, вызов присоединяется к ней.
// 401 переводит в StatusUnauthenticated без ошибки; прочие ошибки
// записываются в состояние и возвращаются.
func (s *Session) CheckAuth(ctx context.Context, force bool) error {
	s.mu.Lock()
	if p := s.probe; p != nil && !force {
		p.joined++
		s.mu.Unlock()
		return p.wait(ctx)
	}

	s.probeSeq++
	p := &probeCall{
		done:       make(chan struct{}),
		seq:        s.probeSeq,
		epoch:      s.epoch,
		prevStatus: s.state.Status,
	}
	if s.probe != nil {
		p.prevStatus = s.probe.prevStatus
	}
	s.probe = p
	s.state.Status = StatusChecking
	s.state.Loading = true
	s.notifyLocked()
	s.mu.Unlock()

	resp, err := s.backend.GetUser(ctx, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(p.done)

	if api.KindOf(err) != api.KindUnauthenticated {
		p.err = err
	}

	latest := s.probe == p
	if latest {
		s.probe = nil
	}

	switch {
	case p.epoch != s.epoch:
		// результат не применен: ожидающим его ошибка не нужна
		p.err = nil
		s.logger.DebugContext(ctx, "discarding session probe superseded by login/logout", "probe", p.seq)
	case !latest:
		p.err = nil
		s.logger.DebugContext(ctx, "discarding session probe superseded by newer probe", "probe", p.seq)
	case err != nil && ctx.Err() != nil:
		// проверку отменили: результат неизвестен, возвращаем прежнее состояние
		s.state.Status = p.prevStatus
	default:
		s.applyProbeLocked(ctx, resp, err)
	}

	s.updateLoadingLocked()
	s.notifyLocked()
	return p.err
}

func (s *Session) applyProbeLocked(ctx context.Context, resp *pkgapi.UserResponse, err error) {
	switch {
	case err == nil:
		s.state.User = models.UserFromAPI(resp)
		s.state.Status = StatusAuthenticated
		s.state.Error = nil
	case api.KindOf(err) == api.KindUnauthenticated:
		// пассивная проверка: отсутствие сессии не ошибка
		s.state.User = nil
		s.state.Status = StatusUnauthenticated
		s.state.Error = nil
	default:
		s.logger.WarnContext(ctx, "session probe failed", "kind", api.KindOf(err).String())
		s.state.User = nil
		s.state.Status = StatusUnauthenticated
		s.state.Error = err
	}
}

// Login выполняет вход и затем запрашивает пользователя через GET /api/user.
// Ответ логина не считается авторитетным источником данных пользователя.
// При ошибке она записывается в состояние и возвращается вызывающему.
func (s *Session) Login(ctx context.Context, creds Credentials) (*models.User, error) {
	s.mu.Lock()
	s.ops++
	s.state.Error = nil
	s.updateLoadingLocked()
	s.notifyLocked()
	s.mu.Unlock()

	loginResp, err := s.backend.Login(ctx, pkgapi.LoginRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.ops--
		s.state.Error = err
		s.updateLoadingLocked()
		s.notifyLocked()
		return nil, err
	}

	resp, err := s.backend.GetUser(ctx, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops--
	s.epoch++
	// проверки, начатые до входа, больше не применяются
	s.probe = nil

	if err != nil {
		s.logger.WarnContext(ctx, "failed to load user after login", "kind", api.KindOf(err).String())
		s.state.User = nil
		s.state.Status = StatusUnauthenticated
		s.state.Error = err
		s.updateLoadingLocked()
		s.notifyLocked()
		return nil, err
	}

	user := models.UserFromAPI(resp)
	s.state.User = user
	s.state.Status = StatusAuthenticated
	s.state.Error = nil
	s.redirectURL = loginResp.RedirectURL
	s.updateLoadingLocked()
	s.notifyLocked()

	s.logger.InfoContext(ctx, "logged in", "user_id", user.ID)
	return user.Clone(), nil
}

// Logout завершает сессию. После возврата пользователь всегда nil,
// даже если запрос к серверу не удался.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.ops++
	// проверка, начатая до выхода, не должна вернуть пользователя
	s.epoch++
	s.probe = nil
	s.state.Status = StatusLoggingOut
	s.updateLoadingLocked()
	s.notifyLocked()
	s.mu.Unlock()

	err := s.backend.Logout(ctx)
	if api.KindOf(err) == api.KindUnauthenticated {
		// сессии на сервере уже нет
		err = nil
	}

	var hookErrs []error
	for _, hook := range s.onLogout {
		if hookErr := hook(ctx); hookErr != nil {
			s.logger.WarnContext(ctx, "logout hook failed", "error", hookErr)
			hookErrs = append(hookErrs, hookErr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops--
	s.epoch++
	s.probe = nil
	s.state.User = nil
	s.state.Status = StatusUnauthenticated
	s.state.Error = err
	s.redirectURL = ""
	s.updateLoadingLocked()
	s.notifyLocked()

	if err != nil {
		s.logger.WarnContext(ctx, "logout request failed, local session cleared", "kind", api.KindOf(err).String())
	}

	return errors.Join(append([]error{err}, hookErrs...)...)
}

// ClearError сбрасывает только ошибку
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Error == nil {
		return
	}
	s.state.Error = nil
	s.notifyLocked()
}

func (s *Session) updateLoadingLocked() {
	s.state.Loading = s.probe != nil || s.ops > 0
}

func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
