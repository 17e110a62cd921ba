package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/iudanet/labportal/pkg/api"
)

// Пути REST API портала
const (
	PathUser           = "/api/user"
	PathLogin          = "/api/login"
	PathLogout         = "/api/logout"
	PathRegister       = "/api/register"
	PathForgotPassword = "/api/forgot-password"
	PathResetPassword  = "/api/reset-password"
)

// GetUser запрашивает текущего пользователя ("who am I").
// probe=true - фоновая проверка сессии, 401 не приводит к редиректу.
func (c *Client) GetUser(ctx context.Context, probe bool) (*api.UserResponse, error) {
	var resp api.UserResponse
	err := c.Do(ctx, &Request{Method: http.MethodGet, Path: PathUser, Probe: probe}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	err := c.Do(ctx, &Request{Method: http.MethodPost, Path: PathLogin, Body: req, Anonymous: true}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout завершает сессию на сервере
func (c *Client) Logout(ctx context.Context) error {
	// 401 при выходе означает, что сессии уже нет: редирект не нужен
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: PathLogout, Anonymous: true}, nil)
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.MessageResponse, error) {
	var resp api.MessageResponse
	err := c.Do(ctx, &Request{Method: http.MethodPost, Path: PathRegister, Body: req, Anonymous: true}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPassword запрашивает письмо со ссылкой сброса пароля.
// Повтор после 419 выполняет вызывающий поток (auth.Flows).
func (c *Client) ForgotPassword(ctx context.Context, req api.ForgotPasswordRequest) (*api.MessageResponse, error) {
	var resp api.MessageResponse
	err := c.Do(ctx, &Request{
		Method:       http.MethodPost,
		Path:         PathForgotPassword,
		Body:         req,
		Anonymous:    true,
		NoTokenRetry: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResetPassword устанавливает новый пароль по токену из письма
func (c *Client) ResetPassword(ctx context.Context, req api.ResetPasswordRequest) (*api.MessageResponse, error) {
	var resp api.MessageResponse
	err := c.Do(ctx, &Request{Method: http.MethodPost, Path: PathResetPassword, Body: req, Anonymous: true}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get выполняет GET запрос к произвольному ресурсу (страницы, настройки ...)
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path}, result)
}

// Post выполняет POST запрос; body может быть *Multipart для загрузки файлов
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, result)
}

// Put выполняет PUT запрос
func (c *Client) Put(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, result)
}

// Delete выполняет DELETE запрос
func (c *Client) Delete(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("delete: empty path")
	}
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path}, nil)
}
