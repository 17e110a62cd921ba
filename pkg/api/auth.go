package api

import "time"

// Role представляет роль пользователя (spatie/laravel-permission)
type Role struct {
	Name      string `json:"name"`                 // имя роли, например "admin"
	GuardName string `json:"guard_name,omitempty"` // guard scope роли ("web", "api")
}

// UserResponse представляет ответ GET /api/user
type UserResponse struct {
	EmailVerifiedAt *time.Time `json:"email_verified_at"` // null если email не подтвержден
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Roles           []Role     `json:"roles"`
	ID              int64      `json:"id"`
	IsBlocked       bool       `json:"is_blocked"`
	IsApproved      bool       `json:"is_approved"`
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse представляет ответ на успешный логин
// Тело ответа не считается авторитетным источником данных пользователя,
// после логина клиент всегда делает GET /api/user
type LoginResponse struct {
	Message     string `json:"message,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"` // куда направить пользователя после входа
}

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Status               string `json:"status"` // статус в лаборатории (student, researcher, ...)
}

// ForgotPasswordRequest представляет запрос на отправку ссылки сброса пароля
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest представляет запрос на установку нового пароля
type ResetPasswordRequest struct {
	Email                string `json:"email"`
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// MessageResponse представляет ответ с текстовым сообщением
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse представляет ответ с ошибкой в формате Laravel.
// Для 422 поле Errors содержит список сообщений по каждому полю формы.
type ErrorResponse struct {
	Errors  map[string][]string `json:"errors,omitempty"`
	Message string              `json:"message"`
}
