// Package jar содержит cookie jar клиента: in-memory для библиотеки и
// сохраняемый между запусками для CLI.
package jar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/iudanet/labportal/internal/client/storage"
	"github.com/iudanet/labportal/internal/crypto"
)

// New создает in-memory cookie jar с publicsuffix списком
func New() (*cookiejar.Jar, error) {
	j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return j, nil
}

// Persistent - cookie jar, который сохраняет cookie одного origin в
// storage.SessionStorage. Значения шифруются ключом, выведенным из мастер-ключа
// для этого origin. Клиент никогда не изменяет значения cookie сам:
// сохраняется ровно то, что пришло в Set-Cookie.
type Persistent struct {
	inner   *cookiejar.Jar
	store   storage.SessionStorage
	origin  *url.URL
	logger  *slog.Logger
	now     func() time.Time
	cookies map[string]storage.Cookie
	key     []byte
	mu      sync.Mutex
}

// Option настраивает Persistent
type Option func(*Persistent)

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persistent) {
		p.logger = logger
	}
}

// WithClock задает источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(p *Persistent) {
		p.now = now
	}
}

// NewPersistent создает jar для origin и восстанавливает сохраненную сессию.
// masterKey - локальный ключ (crypto.LoadOrCreateKey).
func NewPersistent(ctx context.Context, origin string, store storage.SessionStorage, masterKey []byte, opts ...Option) (*Persistent, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	u = &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}

	key, err := crypto.DeriveKey(masterKey, "labportal session "+originKey(u))
	if err != nil {
		return nil, err
	}

	inner, err := New()
	if err != nil {
		return nil, err
	}

	p := &Persistent{
		inner:   inner,
		store:   store,
		origin:  u,
		key:     key,
		cookies: make(map[string]storage.Cookie),
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "cookie_jar")

	if err := p.restore(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// SetCookies implements http.CookieJar
func (p *Persistent) SetCookies(u *url.URL, cookies []*http.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inner.SetCookies(u, cookies)

	if !p.sameOrigin(u) {
		return
	}

	now := p.now()
	for _, c := range cookies {
		sc := toStored(c, u, now)
		id := cookieID(sc)
		if c.MaxAge < 0 || sc.Expired(now) {
			delete(p.cookies, id)
			continue
		}
		p.cookies[id] = sc
	}

	if err := p.persistLocked(context.Background()); err != nil {
		// Сессия в памяти остается рабочей, теряется только восстановление
		p.logger.Warn("failed to persist session cookies", "error", err)
	}
}

// Cookies implements http.CookieJar
func (p *Persistent) Cookies(u *url.URL) []*http.Cookie {
	p.mu.Lock()
	inner := p.inner
	p.mu.Unlock()
	return inner.Cookies(u)
}

// Clear удаляет все cookie из памяти и хранилища (logout)
func (p *Persistent) Clear(ctx context.Context) error {
	inner, err := New()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.inner = inner
	p.cookies = make(map[string]storage.Cookie)

	if err := p.store.DeleteCookies(ctx, originKey(p.origin)); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	p.logger.DebugContext(ctx, "session cleared")
	return nil
}

func (p *Persistent) restore(ctx context.Context) error {
	stored, err := p.store.LoadCookies(ctx, originKey(p.origin))
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	now := p.now()
	byPath := make(map[string][]*http.Cookie)
	for _, sc := range stored {
		if sc.Expired(now) {
			continue
		}
		value, err := crypto.OpenString(p.key, sc.Value, aad(sc))
		if err != nil {
			// Запись от другого ключа или поврежденная: сессию начинаем заново
			p.logger.WarnContext(ctx, "dropping unreadable session cookie", "name", sc.Name, "error", err)
			continue
		}
		sc.Value = value
		p.cookies[cookieID(sc)] = sc
		byPath[sc.Path] = append(byPath[sc.Path], fromStored(sc))
	}

	for cookiePath, cookies := range byPath {
		u := *p.origin
		u.Path = cookiePath
		p.inner.SetCookies(&u, cookies)
	}

	p.logger.DebugContext(ctx, "session restored", "cookies", len(p.cookies))
	return nil
}

func (p *Persistent) persistLocked(ctx context.Context) error {
	out := make([]storage.Cookie, 0, len(p.cookies))
	for _, sc := range p.cookies {
		sealed, err := crypto.SealString(p.key, sc.Value, aad(sc))
		if err != nil {
			return err
		}
		sc.Value = sealed
		out = append(out, sc)
	}
	return p.store.SaveCookies(ctx, originKey(p.origin), out)
}

func (p *Persistent) sameOrigin(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Host, p.origin.Host)
}

func toStored(c *http.Cookie, u *url.URL, now time.Time) storage.Cookie {
	sc := storage.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
	if sc.Path == "" || !strings.HasPrefix(sc.Path, "/") {
		sc.Path = defaultPath(u.Path)
	}
	switch {
	case c.MaxAge > 0:
		sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		sc.Expires = c.Expires
	}
	return sc
}

func fromStored(sc storage.Cookie) *http.Cookie {
	return &http.Cookie{
		Name:     sc.Name,
		Value:    sc.Value,
		Domain:   sc.Domain,
		Path:     sc.Path,
		Expires:  sc.Expires,
		Secure:   sc.Secure,
		HttpOnly: sc.HttpOnly,
	}
}

// defaultPath как в RFC 6265 5.1.4
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	dir := path.Dir(p)
	if dir == "." {
		return "/"
	}
	return dir
}

func cookieID(sc storage.Cookie) string {
	return sc.Name + "|" + strings.ToLower(sc.Domain) + "|" + sc.Path
}

func aad(sc storage.Cookie) []byte {
	return []byte(cookieID(sc))
}

func originKey(u *url.URL) string {
	return u.Scheme + "://" + strings.ToLower(u.Host)
}
