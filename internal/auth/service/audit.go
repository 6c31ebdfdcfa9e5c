package service

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/pkg/guard"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
)

// AuditService persists the admin audit trail.
type AuditService struct {
	Store store.Store
}

// RecordAdminEvent stores ev. A store failure is logged and swallowed so
// auditing never changes the response to the request being audited.
func (s *AuditService) RecordAdminEvent(ctx context.Context, ev guard.AuditEvent) {
	l := slogx.FromContext(ctx)

	_, err := s.Store.AdminAudit().RecordAdminAction(ctx, domain.AdminAuditEntry{
		Action:    ev.Action,
		UserID:    ev.UserID,
		Success:   ev.Success,
		Reason:    ev.Reason,
		Path:      ev.Path,
		IP:        ev.IP,
		UserAgent: ev.UserAgent,
	})
	if err != nil {
		l.Error("failed to record admin action", slog.String("action", ev.Action), slog.Any("err", err))
		return
	}

	if !ev.Success {
		l.Warn("admin action refused",
			slog.String("action", ev.Action),
			slog.String("reason", ev.Reason),
			slog.Int64("user_id", ev.UserID),
			slog.String("ip", ev.IP),
		)
	}
}

// RecentAdminActions returns up to limit audit entries, newest first.
func (s *AuditService) RecentAdminActions(ctx context.Context, limit int) ([]domain.AdminAuditEntry, error) {
	return s.Store.AdminAudit().ListAdminActions(ctx, limit)
}
