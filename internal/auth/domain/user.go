package domain

import "time"

type User struct {
	ID           int64
	Email        string // lower case, unique
	DisplayName  string
	PasswordHash string // bcrypt encoded
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
