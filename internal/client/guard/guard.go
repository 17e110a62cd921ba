// Package guard решает, показать ли защищенный ресурс, подождать проверки
// сессии или отправить пользователя на вход.
package guard

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/iudanet/labportal/internal/client/auth"
	"github.com/iudanet/labportal/internal/models"
)

// DefaultLoginPath точка входа по умолчанию
const DefaultLoginPath = "/login"

// SessionView - то, что guard использует от auth.Session
type SessionView interface {
	Snapshot() auth.State
	Changed() <-chan struct{}
	CheckAuth(ctx context.Context, force bool) error
}

// Kind тип решения
type Kind int

const (
	// Loading - проверка еще идет: не показывать ресурс и не перенаправлять
	Loading Kind = iota
	// Render - показать защищенный ресурс
	Render
	// Redirect - перенаправить на вход
	Redirect
	// Forbidden - пользователь вошел, но нужной роли нет
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Forbidden:
		return "forbidden"
	}
	return "unknown"
}

// Decision результат оценки guard
type Decision struct {
	// User пользователь для Render и Forbidden
	User *models.User
	// Err ошибка последней проверки сессии, если была
	Err error
	// Target адрес входа для Redirect, с исходным адресом в параметре redirect
	Target string
	Kind   Kind
}

// Guard защищает один вид ресурсов
type Guard struct {
	session      SessionView
	logger       *slog.Logger
	requiredRole string
	loginPath    string
}

// Option настраивает Guard
type Option func(*Guard)

// WithRole требует роль у пользователя
func WithRole(role string) Option {
	return func(g *Guard) {
		g.requiredRole = role
	}
}

// WithLoginPath задает путь страницы входа
func WithLoginPath(path string) Option {
	return func(g *Guard) {
		g.loginPath = path
	}
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// New создает Guard
func New(session SessionView, opts ...Option) *Guard {
	g := &Guard{
		session:   session,
		loginPath: DefaultLoginPath,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "route_guard")
	return g
}

// Mount создает экземпляр guard для одного показа ресурса.
// Проверка сессии, запущенная экземпляром, не отменяется вместе с ctx:
// она общая для сессии, а экземпляр лишь перестает ждать ее результат.
func (g *Guard) Mount(ctx context.Context) *Instance {
	return &Instance{
		guard: g,
		ctx:   context.WithoutCancel(ctx),
		done:  make(chan struct{}),
	}
}

// Instance - смонтированный guard. Запускает не больше одной проверки
// сессии за время жизни.
type Instance struct {
	guard      *Guard
	ctx        context.Context
	probeErr   atomic.Pointer[error]
	done       chan struct{}
	mountOnce  sync.Once
	dispatched atomic.Bool
	probeDone  atomic.Bool
	unmounted  atomic.Bool
}

// Evaluate возвращает решение для запрошенного адреса location.
// Повторные вызовы до завершения проверки новых запросов не создают.
func (in *Instance) Evaluate(location string) Decision {
	g := in.guard
	// решение о проверке принимается один раз, при первой оценке;
	// чужая проверка, идущая в этот момент, заменяет собственную
	in.mountOnce.Do(func() {
		st := g.session.Snapshot()
		if st.User == nil && st.Status != auth.StatusChecking && !in.unmounted.Load() {
			in.dispatch()
		}
	})

	st := g.session.Snapshot()

	// Пользователь, появившийся во время проверки (например, после входа),
	// авторитетен: результат своей проверки не ждем
	if st.User != nil {
		if g.requiredRole != "" && !st.User.HasRole(g.requiredRole) {
			return Decision{Kind: Forbidden, User: st.User}
		}
		return Decision{Kind: Render, User: st.User}
	}

	if st.Loading || st.Status == auth.StatusChecking || (in.dispatched.Load() && !in.probeDone.Load()) {
		return Decision{Kind: Loading}
	}

	d := Decision{Kind: Redirect, Target: g.loginTarget(location), Err: st.Error}
	if errp := in.probeErr.Load(); errp != nil && d.Err == nil {
		d.Err = *errp
	}
	return d
}

// Await ждет решения, отличного от Loading
func (in *Instance) Await(ctx context.Context, location string) (Decision, error) {
	for {
		changed := in.guard.session.Changed()
		d := in.Evaluate(location)
		if d.Kind != Loading {
			return d, nil
		}

		select {
		case <-changed:
		case <-in.done:
		case <-ctx.Done():
			return d, ctx.Err()
		}
	}
}

// Unmount завершает жизнь экземпляра: результат его проверки больше
// ни на что не влияет
func (in *Instance) Unmount() {
	in.unmounted.Store(true)
}

func (in *Instance) dispatch() {
	if !in.dispatched.CompareAndSwap(false, true) {
		return
	}
	in.guard.logger.DebugContext(in.ctx, "dispatching session probe")

	go func() {
		err := in.guard.session.CheckAuth(in.ctx, true)
		if in.unmounted.Load() {
			return
		}
		if err != nil {
			in.probeErr.Store(&err)
		}
		in.probeDone.Store(true)
		close(in.done)
	}()
}

func (g *Guard) loginTarget(location string) string {
	u, err := url.Parse(g.loginPath)
	if err != nil {
		return g.loginPath
	}
	if location == "" || location == u.Path {
		return u.String()
	}
	q := u.Query()
	q.Set("redirect", location)
	u.RawQuery = q.Encode()
	return u.String()
}
