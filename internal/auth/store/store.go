package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface implemented by the drivers. It
// exposes sub-repositories so a transaction-scoped Store can hand out the
// same repositories bound to the transaction.
type Store interface {
	Users() Users
	AdminAudit() AdminAudit

	ApplyMigrations() error

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id int64) (domain.User, error)

	// GetUserByEmail is used during login. Emails are compared in lower case.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts u and returns it with ID and timestamps filled in.
	// A duplicate email is ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)

	// UpdateDisplayName mutates display_name and bumps updated_at.
	UpdateDisplayName(ctx context.Context, id int64, displayName string) error

	// UpdatePasswordHash sets password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// SetAdmin grants or revokes the admin role.
	SetAdmin(ctx context.Context, id int64, admin bool) error

	DeleteUser(ctx context.Context, id int64) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

// AdminAudit is the append-only trail of admin route outcomes.
type AdminAudit interface {
	// RecordAdminAction appends e and returns it with ID and CreatedAt set.
	RecordAdminAction(ctx context.Context, e domain.AdminAuditEntry) (domain.AdminAuditEntry, error)

	// ListAdminActions returns up to limit entries, newest first.
	ListAdminActions(ctx context.Context, limit int) ([]domain.AdminAuditEntry, error)
}
