package auth

import (
	"github.com/iudanet/labportal/internal/client/api"
	"github.com/iudanet/labportal/internal/models"
)

// Status состояние сессии
type Status int

const (
	// StatusUninitialized - проверка еще не запрашивалась
	StatusUninitialized Status = iota
	// StatusChecking - выполняется запрос "кто я"
	StatusChecking
	// StatusAuthenticated - пользователь известен
	StatusAuthenticated
	// StatusUnauthenticated - сессии нет
	StatusUnauthenticated
	// StatusLoggingOut - выполняется выход
	StatusLoggingOut
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusChecking:
		return "checking"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusLoggingOut:
		return "logging_out"
	}
	return "unknown"
}

// State - снимок состояния сессии для чтения.
// Пока Loading=true, User не считается окончательным.
type State struct {
	User    *models.User
	Error   error
	Status  Status
	Loading bool
}

// Resolved сообщает, что результат проверки окончательный
func (s State) Resolved() bool {
	return !s.Loading && (s.Status == StatusAuthenticated || s.Status == StatusUnauthenticated)
}

// ErrorMessage возвращает сообщение ошибки для показа пользователю
func (s State) ErrorMessage() string {
	return api.Message(s.Error)
}
