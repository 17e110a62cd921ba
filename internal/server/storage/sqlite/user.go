package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/labportal/internal/models"
	"github.com/iudanet/labportal/internal/server/storage"
)

const accountColumns = `id, first_name, last_name, email, password_hash, status,
	email_verified_at, is_approved, is_blocked, created_at`

// CreateAccount creates a new account and fills account.ID
func (s *Storage) CreateAccount(ctx context.Context, account *models.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO users (first_name, last_name, email, password_hash, status,
			email_verified_at, is_approved, is_blocked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, query,
		account.FirstName,
		account.LastName,
		account.Email,
		account.PasswordHash,
		account.Status,
		account.EmailVerifiedAt,
		account.IsApproved,
		account.IsBlocked,
		account.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get account id: %w", err)
	}

	for _, role := range account.Roles {
		if err := assignRole(ctx, tx, id, role); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account: %w", err)
	}

	account.ID = id
	return nil
}

// GetAccountByEmail retrieves account with roles by email
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.getAccount(ctx, `SELECT `+accountColumns+` FROM users WHERE email = ?`, email)
}

// GetAccountByID retrieves account with roles by ID
func (s *Storage) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.getAccount(ctx, `SELECT `+accountColumns+` FROM users WHERE id = ?`, id)
}

// UpdatePassword replaces password hash
func (s *Storage) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireAffected(result)
}

// SetFlags updates approval and block flags
func (s *Storage) SetFlags(ctx context.Context, id int64, approved, blocked bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_approved = ?, is_blocked = ? WHERE id = ?`,
		approved, blocked, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update account flags: %w", err)
	}
	return requireAffected(result)
}

// AssignRole grants role to account
func (s *Storage) AssignRole(ctx context.Context, id int64, role string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrAccountNotFound
		}
		return fmt.Errorf("failed to get account: %w", err)
	}

	if err := assignRole(ctx, tx, id, role); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role: %w", err)
	}
	return nil
}

func assignRole(ctx context.Context, tx *sql.Tx, userID int64, role string) error {
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO roles (name) VALUES (?)`, role); err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO user_roles (user_id, role_id)
		SELECT ?, id FROM roles WHERE name = ?
	`
	if _, err := tx.ExecContext(ctx, query, userID, role); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (s *Storage) getAccount(ctx context.Context, query string, arg any) (*models.Account, error) {
	account := &models.Account{}
	var verifiedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID,
		&account.FirstName,
		&account.LastName,
		&account.Email,
		&account.PasswordHash,
		&account.Status,
		&verifiedAt,
		&account.IsApproved,
		&account.IsBlocked,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if verifiedAt.Valid {
		account.EmailVerifiedAt = &verifiedAt.Time
	}

	account.Roles, err = s.accountRoles(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	return account, nil
}

func (s *Storage) accountRoles(ctx context.Context, userID int64) ([]string, error) {
	query := `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ?
		ORDER BY r.name
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return roles, nil
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}
