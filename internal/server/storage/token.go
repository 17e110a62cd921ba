package storage

import (
	"context"
	"time"

	"github.com/iudanet/labportal/internal/models"
)

// ResetStorage defines interface for password reset token persistence
type ResetStorage interface {
	// SaveReset stores reset token hash for email
	// An earlier token for the same email is replaced
	SaveReset(ctx context.Context, reset *models.PasswordReset) error

	// GetReset retrieves reset record by email
	// Returns ErrResetNotFound if there is none
	GetReset(ctx context.Context, email string) (*models.PasswordReset, error)

	// DeleteReset deletes reset record by email
	// Returns ErrResetNotFound if there is none
	DeleteReset(ctx context.Context, email string) error

	// DeleteExpiredResets removes records created before the given time
	// Returns number of deleted records
	DeleteExpiredResets(ctx context.Context, before time.Time) (int, error)
}
