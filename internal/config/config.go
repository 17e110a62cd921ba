// Package config загружает настройки клиента labctl и dev-сервера labapi-dev.
//
// Порядок источников (каждый следующий перекрывает предыдущий):
//  1. значения по умолчанию (Default)
//  2. YAML файл из --config или LABPORTAL_CONFIG
//  3. переменные окружения LABPORTAL_*
//  4. флаги командной строки
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "LABPORTAL_"

// ErrInvalidConfig возвращается Validate при некорректных значениях
var ErrInvalidConfig = errors.New("invalid config")

// Config корневая конфигурация
type Config struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ClientConfig настройки HTTP клиента портала
type ClientConfig struct {
	// BaseURL адрес REST API, например https://lab.example.org
	BaseURL string `yaml:"base_url"`

	// CSRFPath эндпоинт выдачи CSRF cookie (Sanctum: /sanctum/csrf-cookie)
	CSRFPath string `yaml:"csrf_path"`

	// CookieName имя cookie, в которой сервер отдает CSRF токен
	CookieName string `yaml:"cookie_name"`

	// HeaderName имя заголовка, в который клиент зеркалирует токен
	HeaderName string `yaml:"header_name"`

	// LoginPath точка входа, на которую guard перенаправляет анонимов
	LoginPath string `yaml:"login_path"`

	// SessionDB путь к BoltDB файлу с cookie сессии; пусто - только в памяти
	SessionDB string `yaml:"session_db"`

	// Timeout ограничение на один HTTP запрос
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig настройки dev-сервера
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"db_path"`
	// AdminEmail учетная запись с ролью admin, создается при старте;
	// пароль берется из LABPORTAL_ADMIN_PASSWORD
	AdminEmail      string        `yaml:"admin_email"`
	RateWindow      time.Duration `yaml:"rate_window"`
	SessionLifetime time.Duration `yaml:"session_lifetime"`
	RateLimit       int           `yaml:"rate_limit"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	sessionDB := "labctl-session.db"
	if home, err := os.UserHomeDir(); err == nil {
		sessionDB = filepath.Join(home, ".labctl", "session.db")
	}

	return &Config{
		Client: ClientConfig{
			BaseURL:    "http://localhost:8000",
			CSRFPath:   "/sanctum/csrf-cookie",
			CookieName: "XSRF-TOKEN",
			HeaderName: "X-XSRF-TOKEN",
			LoginPath:  "/login",
			SessionDB:  sessionDB,
			Timeout:    30 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			DBPath:          "labapi-dev.db",
			RateLimit:       60,
			RateWindow:      time.Minute,
			SessionLifetime: 120 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile накладывает значения из YAML файла на cfg
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv накладывает переменные окружения LABPORTAL_* на cfg.
// lookup обычно os.LookupEnv, в тестах подменяется.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"BASE_URL":    &c.Client.BaseURL,
		"CSRF_PATH":   &c.Client.CSRFPath,
		"COOKIE_NAME": &c.Client.CookieName,
		"HEADER_NAME": &c.Client.HeaderName,
		"LOGIN_PATH":  &c.Client.LoginPath,
		"SESSION_DB":  &c.Client.SessionDB,
		"SERVER_ADDR": &c.Server.Addr,
		"SERVER_DB":   &c.Server.DBPath,
		"ADMIN_EMAIL": &c.Server.AdminEmail,
		"LOG_LEVEL":   &c.Log.Level,
		"LOG_FORMAT":  &c.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":          &c.Client.Timeout,
		"RATE_WINDOW":      &c.Server.RateWindow,
		"SESSION_LIFETIME": &c.Server.SessionLifetime,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err)
		}
		c.Server.RateLimit = n
	}

	return nil
}

// BindClientFlags регистрирует флаги клиента
func (c *Config) BindClientFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Client.BaseURL, "server", c.Client.BaseURL, "Portal API base URL")
	fs.StringVar(&c.Client.SessionDB, "session-db", c.Client.SessionDB, "Path to local session database (empty: in-memory session)")
	fs.DurationVar(&c.Client.Timeout, "timeout", c.Client.Timeout, "Per-request timeout")
	c.bindLogFlags(fs)
}

// BindServerFlags регистрирует флаги dev-сервера
func (c *Config) BindServerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Server.Addr, "addr", c.Server.Addr, "Listen address")
	fs.StringVar(&c.Server.DBPath, "db", c.Server.DBPath, "Path to SQLite database")
	fs.StringVar(&c.Server.AdminEmail, "admin-email", c.Server.AdminEmail, "Seed an approved admin account with this email")
	fs.IntVar(&c.Server.RateLimit, "rate-limit", c.Server.RateLimit, "Requests per window per client IP")
	c.bindLogFlags(fs)
}

func (c *Config) bindLogFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "Log format (text, json)")
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("%w: base URL is empty", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.Client.BaseURL, "http://") && !strings.HasPrefix(c.Client.BaseURL, "https://") {
		return fmt.Errorf("%w: base URL must start with http:// or https://", ErrInvalidConfig)
	}
	if c.Client.CookieName == "" || c.Client.HeaderName == "" {
		return fmt.Errorf("%w: CSRF cookie and header names are required", ErrInvalidConfig)
	}
	if c.Client.CookieName == c.Client.HeaderName {
		// double-submit: cookie и заголовок должны называться по-разному
		return fmt.Errorf("%w: CSRF cookie and header must have distinct names", ErrInvalidConfig)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.Server.RateLimit <= 0 || c.Server.RateWindow <= 0 {
		return fmt.Errorf("%w: rate limit and window must be positive", ErrInvalidConfig)
	}
	return nil
}

// Load собирает конфигурацию из всех источников.
// bind регистрирует флаги конкретного бинарника (BindClientFlags/BindServerFlags).
// Возвращает FlagSet, чтобы вызывающий мог получить позиционные аргументы.
func Load(name string, args []string, bind func(*Config, *pflag.FlagSet)) (*Config, *pflag.FlagSet, error) {
	cfg := Default()

	configPath := configPathFromArgs(args)
	if configPath == "" {
		configPath = os.Getenv(EnvPrefix + "CONFIG")
	}
	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return nil, nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, nil, err
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", configPath, "Path to YAML config file")
	fs.Bool("version", false, "Show version information")
	fs.SetInterspersed(false)
	bind(cfg, fs)

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fs, err
	}

	return cfg, fs, nil
}

// configPathFromArgs ищет --config до разбора остальных флагов,
// так как файл должен быть применен раньше флагов
func configPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return ""
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
