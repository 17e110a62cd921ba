package validation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		errMsg  string
		wantErr bool
	}{
		{name: "valid", email: "a@b.com"},
		{name: "valid with subdomain", email: "ada.lovelace@lab.example.org"},
		{name: "empty", email: "", wantErr: true, errMsg: "required"},
		{name: "spaces", email: "   ", wantErr: true, errMsg: "required"},
		{name: "no at", email: "ada.example.org", wantErr: true, errMsg: "valid email"},
		{name: "display name", email: "Ada <ada@lab.org>", wantErr: true, errMsg: "valid email"},
		{name: "too long", email: strings.Repeat("a", 250) + "@b.com", wantErr: true, errMsg: "greater than 255"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		errMsg   string
		wantErr  bool
	}{
		{name: "valid", password: "password1"},
		{name: "exactly min", password: "12345678"},
		{name: "unicode counts runes", password: "пароль12"},
		{name: "empty", password: "", wantErr: true, errMsg: "required"},
		{name: "short", password: "1234567", wantErr: true, errMsg: "at least 8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePasswordConfirmation(t *testing.T) {
	assert.NoError(t, ValidatePasswordConfirmation("secret123", "secret123"))
	assert.EqualError(t, ValidatePasswordConfirmation("secret123", "secret124"), "The password field confirmation does not match.")
}

func TestValidateRequired(t *testing.T) {
	assert.NoError(t, ValidateRequired("first_name", "Ada"))
	assert.EqualError(t, ValidateRequired("first_name", " "), "The first name field is required.")
	assert.Error(t, ValidateRequired("last_name", strings.Repeat("x", 256)))
}

func TestErrors(t *testing.T) {
	var errs Errors
	assert.NoError(t, errs.Err())
	assert.Equal(t, "", errs.Error())

	errs.Check("email", nil)
	errs.Check("email", errors.New("already taken"))
	errs.Add("password", "too short")
	errs.Add("password", "needs digit")

	require.Error(t, errs.Err())
	assert.Equal(t, "already taken", errs.Error())
	assert.True(t, errs.Has("password"))
	assert.False(t, errs.Has("first_name"))
	assert.Equal(t, map[string][]string{
		"email":    {"already taken"},
		"password": {"too short", "needs digit"},
	}, errs.Map())
}

func TestErrors_MarshalJSON_KeepsFieldOrder(t *testing.T) {
	var errs Errors
	errs.Add("password", "too short")
	errs.Add("email", "already taken")
	errs.Add("password", "needs digit")

	data, err := json.Marshal(struct {
		Errors Errors `json:"errors"`
	}{errs})
	require.NoError(t, err)
	assert.Equal(t, `{"errors":{"password":["too short","needs digit"],"email":["already taken"]}}`, string(data))
}
