package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/iudanet/labportal/internal/client/api"
	pkgapi "github.com/iudanet/labportal/pkg/api"
)

// RegisterInput данные формы регистрации
type RegisterInput struct {
	FirstName            string
	LastName             string
	Email                string
	Password             string
	PasswordConfirmation string
	Status               string
}

// ResetPasswordInput данные формы сброса пароля
type ResetPasswordInput struct {
	Email                string
	Token                string
	Password             string
	PasswordConfirmation string
}

// Flows - одноразовые потоки регистрации и восстановления пароля.
// Состояние Session они не меняют. Ошибки возвращаются без обертки:
// Error() у ошибки валидации - первое сообщение первого поля.
type Flows struct {
	backend FlowBackend
	logger  *slog.Logger
}

// NewFlows создает Flows
func NewFlows(backend FlowBackend, logger *slog.Logger) *Flows {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Flows{
		backend: backend,
		logger:  logger.With("component", "auth_flows"),
	}
}

// Register регистрирует пользователя и возвращает сообщение сервера
func (f *Flows) Register(ctx context.Context, in RegisterInput) (string, error) {
	resp, err := f.backend.Register(ctx, pkgapi.RegisterRequest{
		FirstName:            in.FirstName,
		LastName:             in.LastName,
		Email:                in.Email,
		Password:             in.Password,
		PasswordConfirmation: in.PasswordConfirmation,
		Status:               in.Status,
	})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ForgotPassword запрашивает письмо для сброса пароля.
// Эндпоинт вызывается до появления сессии, поэтому поток сам владеет
// точкой повтора: при 419 токен обновляется и запрос повторяется один раз.
func (f *Flows) ForgotPassword(ctx context.Context, email string) (string, error) {
	if !f.backend.HasToken() {
		if err := f.backend.RefreshToken(ctx); err != nil {
			return "", err
		}
	}

	req := pkgapi.ForgotPasswordRequest{Email: email}
	resp, err := f.backend.ForgotPassword(ctx, req)
	if errors.Is(err, api.ErrTokenExpired) {
		f.logger.InfoContext(ctx, "csrf token expired on forgot-password, refreshing")
		if refreshErr := f.backend.RefreshToken(ctx); refreshErr != nil {
			return "", err
		}
		resp, err = f.backend.ForgotPassword(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ResetPassword устанавливает новый пароль по токену из письма
func (f *Flows) ResetPassword(ctx context.Context, in ResetPasswordInput) (string, error) {
	resp, err := f.backend.ResetPassword(ctx, pkgapi.ResetPasswordRequest{
		Email:                in.Email,
		Token:                in.Token,
		Password:             in.Password,
		PasswordConfirmation: in.PasswordConfirmation,
	})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}
