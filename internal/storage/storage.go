package storage

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUsernameExists      = errors.New("username already exists")
	ErrEmailExists         = errors.New("email already exists")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTokenRevoked        = errors.New("token already revoked")
)
