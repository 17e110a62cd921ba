package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/labportal/internal/models"
	"github.com/iudanet/labportal/internal/server/storage"
)

// SaveReset stores reset token hash, replacing an earlier one for the email
func (s *Storage) SaveReset(ctx context.Context, reset *models.PasswordReset) error {
	query := `
		INSERT OR REPLACE INTO password_resets (email, token_hash, created_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		reset.Email,
		reset.TokenHash,
		reset.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save password reset: %w", err)
	}

	return nil
}

// GetReset retrieves reset record by email
func (s *Storage) GetReset(ctx context.Context, email string) (*models.PasswordReset, error) {
	query := `
		SELECT email, token_hash, created_at
		FROM password_resets
		WHERE email = ?
	`

	reset := &models.PasswordReset{}

	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&reset.Email,
		&reset.TokenHash,
		&reset.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrResetNotFound
		}
		return nil, fmt.Errorf("failed to get password reset: %w", err)
	}

	return reset, nil
}

// DeleteReset deletes reset record by email
func (s *Storage) DeleteReset(ctx context.Context, email string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM password_resets WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("failed to delete password reset: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrResetNotFound
	}

	return nil
}

// DeleteExpiredResets removes records created before the given time
func (s *Storage) DeleteExpiredResets(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM password_resets WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired resets: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}
