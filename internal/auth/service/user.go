package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
)

type UserService struct {
	Store store.Store
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID int64) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// IsAdmin reports whether the user holds the admin role. An unknown user is
// not an admin.
func (s *UserService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// PromoteAdmins grants the admin role to each listed email that has an
// account. Unknown emails are logged and skipped so an operator can list an
// admin before they register.
func (s *UserService) PromoteAdmins(ctx context.Context, emails []string) error {
	l := slogx.FromContext(ctx)

	return s.Store.WithTx(ctx, func(tx store.Store) error {
		for _, email := range emails {
			email = normalizeEmail(email)
			if email == "" {
				continue
			}

			u, err := tx.Users().GetUserByEmail(ctx, email)
			if errors.Is(err, store.ErrNotFound) {
				l.Warn("admin email has no account yet", slog.String("email", email))
				continue
			}
			if err != nil {
				return err
			}
			if u.IsAdmin {
				continue
			}
			if err := tx.Users().SetAdmin(ctx, u.ID, true); err != nil {
				return err
			}
			l.Info("granted admin role", slog.Int64("user_id", u.ID))
		}
		return nil
	})
}
