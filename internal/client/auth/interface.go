package auth

import (
	"context"

	pkgapi "github.com/iudanet/labportal/pkg/api"
)

//go:generate moq -out backend_mock.go . Backend FlowBackend

// Backend - вызовы API, через которые Session меняет состояние.
// Реализуется api.Client.
type Backend interface {
	// GetUser запрашивает текущего пользователя; probe=true для фоновой проверки
	GetUser(ctx context.Context, probe bool) (*pkgapi.UserResponse, error)

	// Login выполняет аутентификацию
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.LoginResponse, error)

	// Logout завершает сессию на сервере
	Logout(ctx context.Context) error
}

// FlowBackend - вызовы API для одноразовых потоков, не меняющих состояние сессии
type FlowBackend interface {
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.MessageResponse, error)
	ForgotPassword(ctx context.Context, req pkgapi.ForgotPasswordRequest) (*pkgapi.MessageResponse, error)
	ResetPassword(ctx context.Context, req pkgapi.ResetPasswordRequest) (*pkgapi.MessageResponse, error)

	// HasToken сообщает, выдан ли CSRF токен
	HasToken() bool
	// RefreshToken запрашивает новую CSRF cookie
	RefreshToken(ctx context.Context) error
}
