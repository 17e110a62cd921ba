package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/labportal/pkg/api"
)

func TestUser_HasRole(t *testing.T) {
	user := &User{Roles: []Role{{Name: "editor"}, {Name: "admin", GuardScope: "web"}}}

	assert.True(t, user.HasRole("admin"))
	assert.False(t, user.HasRole("owner"))

	var nilUser *User
	assert.False(t, nilUser.HasRole("admin"))
}

func TestUser_Clone(t *testing.T) {
	verified := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	user := &User{ID: 1, Name: "A", EmailVerifiedAt: &verified, Roles: []Role{{Name: "admin"}}}

	clone := user.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, user, clone)

	// Изменение копии не затрагивает оригинал
	clone.Roles[0].Name = "guest"
	*clone.EmailVerifiedAt = time.Time{}
	assert.Equal(t, "admin", user.Roles[0].Name)
	assert.Equal(t, verified, *user.EmailVerifiedAt)

	var nilUser *User
	assert.Nil(t, nilUser.Clone())
}

func TestUserFromAPI(t *testing.T) {
	assert.Nil(t, UserFromAPI(nil))

	user := UserFromAPI(&api.UserResponse{
		ID:         1,
		Name:       "A",
		Email:      "a@b.com",
		IsApproved: true,
		Roles:      []api.Role{{Name: "admin", GuardName: "web"}},
	})

	require.NotNil(t, user)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "a@b.com", user.Email)
	assert.Nil(t, user.EmailVerifiedAt)
	assert.True(t, user.IsApproved)
	assert.Equal(t, []Role{{Name: "admin", GuardScope: "web"}}, user.Roles)
}

func TestAccount_FullNameAndToAPI(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		want    string
	}{
		{name: "both", account: Account{FirstName: "Ada", LastName: "Lovelace"}, want: "Ada Lovelace"},
		{name: "first only", account: Account{FirstName: "Ada"}, want: "Ada"},
		{name: "last only", account: Account{LastName: "Lovelace"}, want: "Lovelace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.account.FullName())
		})
	}

	acc := Account{ID: 5, FirstName: "Ada", Email: "ada@lab.org", Roles: []string{"admin", "editor"}, IsBlocked: true}
	resp := acc.ToAPI()
	assert.Equal(t, int64(5), resp.ID)
	assert.Equal(t, "Ada", resp.Name)
	assert.True(t, resp.IsBlocked)
	assert.Equal(t, []api.Role{{Name: "admin", GuardName: "web"}, {Name: "editor", GuardName: "web"}}, resp.Roles)
}
