package storage

import "errors"

// Common storage errors
var (
	// ErrAccountNotFound indicates that account was not found in storage
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists indicates that account with this email already exists
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrResetNotFound indicates that password reset token was not found
	ErrResetNotFound = errors.New("password reset not found")
)
