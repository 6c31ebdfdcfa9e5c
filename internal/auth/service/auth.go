package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
)

const (
	// DefaultRefreshGrace is how long after expiry a token may still be
	// exchanged for a new one.
	DefaultRefreshGrace = 24 * time.Hour

	MinPasswordLength  = 8
	MaxPasswordLength  = 72 // bcrypt ignores anything longer
	MaxDisplayNameRune = 64
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidInput       = errors.New("invalid_request")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidToken       = errors.New("invalid_token")
)

// AuthEvents receives the outcome of logins and refreshes.
type AuthEvents interface {
	Login(result string)
	Refresh(result string)
}

type noEvents struct{}

func (noEvents) Login(string)   {}
func (noEvents) Refresh(string) {}

// AuthService signs users in and issues session tokens.
type AuthService struct {
	Store        store.Store
	Codec        *jwtx.Codec
	RefreshGrace time.Duration
	Events       AuthEvents
}

func (s *AuthService) events() AuthEvents {
	if s.Events == nil {
		return noEvents{}
	}
	return s.Events
}

func (s *AuthService) grace() time.Duration {
	if s.RefreshGrace <= 0 {
		return DefaultRefreshGrace
	}
	return s.RefreshGrace
}

// Login checks an email and password and returns a new session token. An
// unknown email and a wrong password both yield ErrInvalidCredentials and
// take about as long, so the response does not reveal which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (jwtx.SessionUser, string, error) {
	l := slogx.FromContext(ctx)

	email = normalizeEmail(email)
	if email == "" || password == "" {
		s.events().Login("invalid")
		return jwtx.SessionUser{}, "", ErrInvalidCredentials
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		cryptox.BurnVerify(password)
		l.Info("login for unknown email")
		s.events().Login("invalid")
		return jwtx.SessionUser{}, "", ErrInvalidCredentials
	}
	if err != nil {
		s.events().Login("error")
		return jwtx.SessionUser{}, "", fmt.Errorf("lookup user: %w", err)
	}

	if !cryptox.VerifyPassword(password, u.PasswordHash) {
		l.Info("login with wrong password", slog.Int64("user_id", u.ID))
		s.events().Login("invalid")
		return jwtx.SessionUser{}, "", ErrInvalidCredentials
	}

	user, token, err := s.issue(u)
	if err != nil {
		s.events().Login("error")
		return jwtx.SessionUser{}, "", err
	}
	s.events().Login("success")
	return user, token, nil
}

// Register creates an account and signs it in.
func (s *AuthService) Register(
	ctx context.Context,
	email, password, displayName string,
) (jwtx.SessionUser, string, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if err := validateRegistration(email, password, displayName); err != nil {
		return jwtx.SessionUser{}, "", err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return jwtx.SessionUser{}, "", fmt.Errorf("hash password: %w", err)
	}

	u, err := s.Store.Users().CreateUser(ctx, domain.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return jwtx.SessionUser{}, "", ErrEmailTaken
	}
	if err != nil {
		return jwtx.SessionUser{}, "", fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered", slog.Int64("user_id", u.ID))
	return s.issue(u)
}

// Refresh exchanges token for a new one. The token must carry a valid
// signature, be no more than RefreshGrace past expiry, belong to userID and
// name a user that still exists; otherwise the error is ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, token string, userID int64) (string, error) {
	l := slogx.FromContext(ctx)

	claimed, ok := s.Codec.VerifyForRefresh(token, s.grace())
	if !ok {
		l.Debug("refresh rejected", slog.String("token_fp", cryptox.FingerprintToken(token)))
		s.events().Refresh("invalid")
		return "", ErrInvalidToken
	}
	if userID != 0 && claimed.ID != userID {
		l.Warn("refresh user mismatch", slog.Int64("token_user", claimed.ID), slog.Int64("body_user", userID))
		s.events().Refresh("invalid")
		return "", ErrInvalidToken
	}

	u, err := s.Store.Users().GetUserByID(ctx, claimed.ID)
	if errors.Is(err, store.ErrNotFound) {
		s.events().Refresh("invalid")
		return "", ErrInvalidToken
	}
	if err != nil {
		s.events().Refresh("error")
		return "", fmt.Errorf("lookup user: %w", err)
	}

	_, fresh, err := s.issue(u)
	if err != nil {
		s.events().Refresh("error")
		return "", err
	}
	s.events().Refresh("success")
	return fresh, nil
}

// issue signs a token carrying the user's current profile.
func (s *AuthService) issue(u domain.User) (jwtx.SessionUser, string, error) {
	user := SessionUser(u)
	token, err := s.Codec.Create(user)
	if err != nil {
		return jwtx.SessionUser{}, "", fmt.Errorf("create token: %w", err)
	}
	return user, token, nil
}

// SessionUser is the token view of u.
func SessionUser(u domain.User) jwtx.SessionUser {
	return jwtx.SessionUser{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

func validateRegistration(email, password, displayName string) error {
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, " <>") {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		return fmt.Errorf("%w: password must be %d to %d bytes", ErrInvalidInput, MinPasswordLength, MaxPasswordLength)
	}
	if len([]rune(displayName)) > MaxDisplayNameRune {
		return fmt.Errorf("%w: display name too long", ErrInvalidInput)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
