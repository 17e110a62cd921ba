package models

import (
	"time"

	"github.com/iudanet/labportal/pkg/api"
)

// Role представляет роль пользователя, используется только для грубой
// проверки прав ("есть ли роль admin")
type Role struct {
	Name       string `json:"name"`
	GuardScope string `json:"guard_scope,omitempty"`
}

// User представляет аутентифицированного пользователя портала.
// Владелец - auth.Session, остальные компоненты только читают его.
type User struct {
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Roles           []Role     `json:"roles"`
	ID              int64      `json:"id"`
	IsBlocked       bool       `json:"is_blocked"`
	IsApproved      bool       `json:"is_approved"`
}

// HasRole проверяет наличие роли у пользователя
func (u *User) HasRole(name string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию пользователя
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		c.EmailVerifiedAt = &t
	}
	c.Roles = append([]Role(nil), u.Roles...)
	return &c
}

// UserFromAPI конвертирует ответ GET /api/user в модель
func UserFromAPI(resp *api.UserResponse) *User {
	if resp == nil {
		return nil
	}
	user := &User{
		ID:              resp.ID,
		Name:            resp.Name,
		Email:           resp.Email,
		EmailVerifiedAt: resp.EmailVerifiedAt,
		IsBlocked:       resp.IsBlocked,
		IsApproved:      resp.IsApproved,
		Roles:           make([]Role, 0, len(resp.Roles)),
	}
	for _, r := range resp.Roles {
		user.Roles = append(user.Roles, Role{Name: r.Name, GuardScope: r.GuardName})
	}
	return user
}

// Account представляет учетную запись пользователя на стороне dev-сервера
type Account struct {
	CreatedAt       time.Time  `json:"created_at"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"` // bcrypt хеш пароля
	Status          string     `json:"status"`
	Roles           []string   `json:"roles"`
	ID              int64      `json:"id"`
	IsBlocked       bool       `json:"is_blocked"`
	IsApproved      bool       `json:"is_approved"`
}

// FullName возвращает отображаемое имя учетной записи
func (a *Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// ToAPI конвертирует учетную запись в ответ GET /api/user
func (a *Account) ToAPI() api.UserResponse {
	resp := api.UserResponse{
		ID:              a.ID,
		Name:            a.FullName(),
		Email:           a.Email,
		EmailVerifiedAt: a.EmailVerifiedAt,
		IsBlocked:       a.IsBlocked,
		IsApproved:      a.IsApproved,
		Roles:           make([]api.Role, 0, len(a.Roles)),
	}
	for _, name := range a.Roles {
		resp.Roles = append(resp.Roles, api.Role{Name: name, GuardName: "web"})
	}
	return resp
}

// PasswordReset представляет выданный токен сброса пароля
type PasswordReset struct {
	CreatedAt time.Time `json:"created_at"`
	Email     string    `json:"email"`
	TokenHash string    `json:"token_hash"` // SHA256 хеш токена
}
