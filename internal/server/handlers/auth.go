package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/iudanet/labportal/internal/crypto"
	"github.com/iudanet/labportal/internal/models"
	"github.com/iudanet/labportal/internal/server/middleware"
	"github.com/iudanet/labportal/internal/server/session"
	"github.com/iudanet/labportal/internal/server/storage"
	"github.com/iudanet/labportal/internal/validation"
	"github.com/iudanet/labportal/pkg/api"
)

const (
	// ResetTokenTTL время жизни токена сброса пароля
	ResetTokenTTL = 60 * time.Minute

	// RoleAdmin роль администратора портала
	RoleAdmin = "admin"
	// RoleMember роль, выдаваемая при регистрации
	RoleMember = "member"

	resetTokenBytes = 32
)

// MemberStatuses допустимые статусы участника лаборатории
var MemberStatuses = []string{"student", "researcher", "professor", "alumni"}

// Сообщения ответов в формате Laravel
const (
	msgBadCredentials = "These credentials do not match our records."
	msgBlocked        = "Your account has been blocked."
	msgUnauthorized   = "This action is unauthorized."
	msgUnauthenticate = "Unauthenticated."
	msgServerError    = "Server Error"
	msgEmailTaken     = "The email has already been taken."
	msgUnknownEmail   = "We can't find a user with that email address."
	msgInvalidReset   = "This password reset token is invalid."
)

// ResetNotifier доставляет ссылку сброса пароля
type ResetNotifier interface {
	SendResetLink(ctx context.Context, email, token string) error
}

// LogNotifier пишет ссылку сброса в лог вместо отправки письма
// (аналог mail driver "log" для локальной разработки)
type LogNotifier struct {
	Logger  *slog.Logger
	BaseURL string
}

// SendResetLink implements ResetNotifier
func (n LogNotifier) SendResetLink(ctx context.Context, email, token string) error {
	link := n.BaseURL + "/reset-password?token=" + url.QueryEscape(token) + "&email=" + url.QueryEscape(email)
	n.Logger.InfoContext(ctx, "password reset link", slog.String("email", email), slog.String("link", link))
	return nil
}

// AuthHandler обрабатывает запросы аутентификации
type AuthHandler struct {
	logger   *slog.Logger
	accounts storage.AccountStorage
	resets   storage.ResetStorage
	sessions *session.Manager
	notifier ResetNotifier
	now      func() time.Time
}

// Option настраивает AuthHandler
type Option func(*AuthHandler)

// WithClock подменяет часы (для тестов)
func WithClock(now func() time.Time) Option {
	return func(h *AuthHandler) {
		h.now = now
	}
}

// NewAuthHandler создает новый handler для аутентификации
func NewAuthHandler(
	logger *slog.Logger,
	accounts storage.AccountStorage,
	resets storage.ResetStorage,
	sessions *session.Manager,
	notifier ResetNotifier,
	opts ...Option,
) *AuthHandler {
	h := &AuthHandler{
		logger:   logger,
		accounts: accounts,
		resets:   resets,
		sessions: sessions,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CSRFCookie обрабатывает GET /sanctum/csrf-cookie.
// Cookie выставляет middleware сессии, тело пустое.
func (h *AuthHandler) CSRFCookie(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// User обрабатывает GET /api/user
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}
	sendJSON(h.logger, w, account.ToAPI(), http.StatusOK)
}

// Login обрабатывает POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}

	var errs validation.Errors
	errs.Check("email", validation.ValidateEmail(req.Email))
	if req.Password == "" {
		errs.Add("password", "The password field is required.")
	}
	if errs.Err() != nil {
		sendValidation(h.logger, w, errs)
		return
	}

	account, err := h.accounts.GetAccountByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			h.logger.WarnContext(ctx, "login for unknown email")
			sendMessage(h.logger, w, msgBadCredentials, http.StatusUnauthorized)
			return
		}
		h.serverError(w, r, "failed to get account", err)
		return
	}

	if err := crypto.VerifyPassword(req.Password, account.PasswordHash); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			h.logger.WarnContext(ctx, "invalid password", slog.Int64("user_id", account.ID))
			sendMessage(h.logger, w, msgBadCredentials, http.StatusUnauthorized)
			return
		}
		h.serverError(w, r, "failed to verify password", err)
		return
	}

	if account.IsBlocked {
		h.logger.WarnContext(ctx, "blocked account login", slog.Int64("user_id", account.ID))
		sendMessage(h.logger, w, msgBlocked, http.StatusForbidden)
		return
	}

	s, err := h.sessions.Login(middleware.SessionFrom(r).ID, account.ID)
	if err != nil {
		h.serverError(w, r, "failed to bind session", err)
		return
	}
	middleware.ReplaceSession(r, s)

	redirect := "/"
	if account.IsApproved {
		redirect = "/admin"
	}

	h.logger.InfoContext(ctx, "user logged in", slog.Int64("user_id", account.ID))

	sendJSON(h.logger, w, api.LoginResponse{
		Message:     "Login successful.",
		RedirectURL: redirect,
	}, http.StatusOK)
}

// Logout обрабатывает POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	current := middleware.SessionFrom(r)

	s, err := h.sessions.Invalidate(current.ID)
	if err != nil {
		h.serverError(w, r, "failed to invalidate session", err)
		return
	}
	middleware.ReplaceSession(r, s)

	h.logger.InfoContext(r.Context(), "user logged out", slog.Int64("user_id", current.UserID))
	w.WriteHeader(http.StatusNoContent)
}

// Register обрабатывает POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}

	var errs validation.Errors
	errs.Check("first_name", validation.ValidateRequired("first_name", req.FirstName))
	errs.Check("last_name", validation.ValidateRequired("last_name", req.LastName))
	errs.Check("email", validation.ValidateEmail(req.Email))
	if !errs.Has("email") {
		_, err := h.accounts.GetAccountByEmail(ctx, req.Email)
		switch {
		case err == nil:
			errs.Add("email", msgEmailTaken)
		case !errors.Is(err, storage.ErrAccountNotFound):
			h.serverError(w, r, "failed to check email", err)
			return
		}
	}
	errs.Check("password", validation.ValidatePassword(req.Password))
	if !errs.Has("password") {
		errs.Check("password", validation.ValidatePasswordConfirmation(req.Password, req.PasswordConfirmation))
	}
	if err := validation.ValidateRequired("status", req.Status); err != nil {
		errs.Check("status", err)
	} else if !slices.Contains(MemberStatuses, req.Status) {
		errs.Add("status", "The selected status is invalid.")
	}

	if errs.Err() != nil {
		h.logger.WarnContext(ctx, "registration rejected", slog.Int("errors", len(errs)))
		sendValidation(h.logger, w, errs)
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		h.serverError(w, r, "failed to hash password", err)
		return
	}

	account := &models.Account{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		Status:       req.Status,
		Roles:        []string{RoleMember},
		CreatedAt:    h.now(),
	}

	if err := h.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrAccountAlreadyExists) {
			errs.Add("email", msgEmailTaken)
			sendValidation(h.logger, w, errs)
			return
		}
		h.serverError(w, r, "failed to create account", err)
		return
	}

	h.logger.InfoContext(ctx, "user registered", slog.Int64("user_id", account.ID))

	sendMessage(h.logger, w, "Registration successful. Your account is awaiting approval.", http.StatusCreated)
}

// ForgotPassword обрабатывает POST /api/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ForgotPasswordRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}

	var errs validation.Errors
	errs.Check("email", validation.ValidateEmail(req.Email))
	if errs.Err() != nil {
		sendValidation(h.logger, w, errs)
		return
	}

	if _, err := h.accounts.GetAccountByEmail(ctx, req.Email); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			errs.Add("email", msgUnknownEmail)
			sendValidation(h.logger, w, errs)
			return
		}
		h.serverError(w, r, "failed to get account", err)
		return
	}

	token, err := crypto.NewToken(resetTokenBytes)
	if err != nil {
		h.serverError(w, r, "failed to generate reset token", err)
		return
	}

	err = h.resets.SaveReset(ctx, &models.PasswordReset{
		Email:     req.Email,
		TokenHash: crypto.HashToken(token),
		CreatedAt: h.now(),
	})
	if err != nil {
		h.serverError(w, r, "failed to save reset token", err)
		return
	}

	if err := h.notifier.SendResetLink(ctx, req.Email, token); err != nil {
		h.serverError(w, r, "failed to send reset link", err)
		return
	}

	sendMessage(h.logger, w, "We have emailed your password reset link.", http.StatusOK)
}

// ResetPassword обрабатывает POST /api/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ResetPasswordRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}

	var errs validation.Errors
	errs.Check("token", validation.ValidateRequired("token", req.Token))
	errs.Check("email", validation.ValidateEmail(req.Email))
	errs.Check("password", validation.ValidatePassword(req.Password))
	if !errs.Has("password") {
		errs.Check("password", validation.ValidatePasswordConfirmation(req.Password, req.PasswordConfirmation))
	}
	if errs.Err() != nil {
		sendValidation(h.logger, w, errs)
		return
	}

	reset, err := h.resets.GetReset(ctx, req.Email)
	if err != nil && !errors.Is(err, storage.ErrResetNotFound) {
		h.serverError(w, r, "failed to get reset token", err)
		return
	}
	if err != nil ||
		!crypto.TokenEqual(crypto.HashToken(req.Token), reset.TokenHash) ||
		h.now().Sub(reset.CreatedAt) > ResetTokenTTL {
		errs.Add("email", msgInvalidReset)
		sendValidation(h.logger, w, errs)
		return
	}

	account, err := h.accounts.GetAccountByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			errs.Add("email", msgUnknownEmail)
			sendValidation(h.logger, w, errs)
			return
		}
		h.serverError(w, r, "failed to get account", err)
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		h.serverError(w, r, "failed to hash password", err)
		return
	}
	if err := h.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		h.serverError(w, r, "failed to update password", err)
		return
	}
	if err := h.resets.DeleteReset(ctx, req.Email); err != nil && !errors.Is(err, storage.ErrResetNotFound) {
		h.logger.WarnContext(ctx, "failed to delete used reset token", slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "password reset", slog.Int64("user_id", account.ID))

	sendMessage(h.logger, w, "Your password has been reset.", http.StatusOK)
}

// AdminPing обрабатывает GET /api/admin/ping (только для роли admin)
func (h *AuthHandler) AdminPing(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}
	if !slices.Contains(account.Roles, RoleAdmin) {
		h.logger.WarnContext(r.Context(), "admin route denied", slog.Int64("user_id", account.ID))
		sendMessage(h.logger, w, msgUnauthorized, http.StatusForbidden)
		return
	}
	sendMessage(h.logger, w, "pong", http.StatusOK)
}

// currentAccount загружает учетную запись сессии.
// Если ее удалили, сессия сбрасывается и клиент получает 401.
func (h *AuthHandler) currentAccount(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	s := middleware.SessionFrom(r)
	if !s.Authenticated() {
		sendMessage(h.logger, w, msgUnauthenticate, http.StatusUnauthorized)
		return nil, false
	}

	account, err := h.accounts.GetAccountByID(r.Context(), s.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			if fresh, err := h.sessions.Invalidate(s.ID); err == nil {
				middleware.ReplaceSession(r, fresh)
			}
			sendMessage(h.logger, w, msgUnauthenticate, http.StatusUnauthorized)
			return nil, false
		}
		h.serverError(w, r, "failed to get account", err)
		return nil, false
	}
	return account, true
}

func (h *AuthHandler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, slog.Any("error", err))
	sendMessage(h.logger, w, msgServerError, http.StatusInternalServerError)
}
