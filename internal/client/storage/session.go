package storage

import (
	"context"
	"time"
)

//go:generate moq -out session_mock.go . SessionStorage

// SessionStorage хранит cookie сессии CLI между запусками.
// Это нижний слой: значения cookie сохраняются как есть (уже зашифрованные),
// шифрование выполняет jar.Persistent.
type SessionStorage interface {
	// SaveCookies заменяет все сохраненные cookie для origin
	SaveCookies(ctx context.Context, origin string, cookies []Cookie) error

	// LoadCookies возвращает cookie для origin.
	// Returns ErrSessionNotFound if nothing was saved
	LoadCookies(ctx context.Context, origin string) ([]Cookie, error)

	// DeleteCookies удаляет сессию для origin (logout)
	DeleteCookies(ctx context.Context, origin string) error
}

// Cookie сохраненная cookie.
// Value на уровне хранилища зашифровано (base64 шифротекст),
// в памяти jar оно в открытом виде.
type Cookie struct {
	Expires  time.Time `json:"expires,omitempty"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Expired сообщает, истек ли срок cookie (нулевой Expires - сессионная cookie)
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}
