package models

import "time"

// User is an account holder. PasswordHash never leaves the server.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PasswordHash []byte `json:"-"`
}

// RevokedToken is an entry of the refresh token blacklist.
type RevokedToken struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}
