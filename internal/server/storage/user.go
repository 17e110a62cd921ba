package storage

import (
	"context"

	"github.com/iudanet/labportal/internal/models"
)

// AccountStorage defines interface for portal account persistence
type AccountStorage interface {
	// CreateAccount creates a new account and fills account.ID
	// Returns ErrAccountAlreadyExists if email is taken
	CreateAccount(ctx context.Context, account *models.Account) error

	// GetAccountByEmail retrieves account with roles by email
	// Returns ErrAccountNotFound if account doesn't exist
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)

	// GetAccountByID retrieves account with roles by ID
	// Returns ErrAccountNotFound if account doesn't exist
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)

	// UpdatePassword replaces password hash
	// Returns ErrAccountNotFound if account doesn't exist
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// SetFlags updates approval and block flags
	// Returns ErrAccountNotFound if account doesn't exist
	SetFlags(ctx context.Context, id int64, approved, blocked bool) error

	// AssignRole grants role to account; granting twice is not an error
	// Returns ErrAccountNotFound if account doesn't exist
	AssignRole(ctx context.Context, id int64, role string) error
}
