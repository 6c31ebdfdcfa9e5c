package sqlite

import (
	"context"
	"strings"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
)

type usersRepo struct {
	q *queries
}

func (r *usersRepo) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	row, err := r.q.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row, err := r.q.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	now := r.q.now().UTC()
	u.Email = normalizeEmail(u.Email)

	id, err := r.q.CreateUser(ctx, createUserParams{
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    formatTime(now),
	})
	if err != nil {
		return domain.User{}, mapConstraint(err)
	}

	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return u, nil
}

func (r *usersRepo) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	return affected(r.q.UpdateUserDisplayName(ctx, id, displayName))
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return affected(r.q.UpdateUserPasswordHash(ctx, id, hash))
}

func (r *usersRepo) SetAdmin(ctx context.Context, id int64, admin bool) error {
	return affected(r.q.UpdateUserAdmin(ctx, id, admin))
}

func (r *usersRepo) DeleteUser(ctx context.Context, id int64) error {
	return affected(r.q.DeleteUser(ctx, id))
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	count, err := r.q.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// affected reports store.ErrNotFound when a write touched no rows.
func affected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
