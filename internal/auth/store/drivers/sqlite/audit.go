package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
)

const auditColumns = `id, action, user_id, success, reason, path, ip, user_agent, created_at`

type auditRow struct {
	ID        int64
	Action    string
	UserID    sql.NullInt64
	Success   bool
	Reason    string
	Path      string
	IP        string
	UserAgent string
	CreatedAt string
}

const insertAdminAudit = `INSERT INTO admin_audit_log (action, user_id, success, reason, path, ip, user_agent, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *queries) InsertAdminAudit(ctx context.Context, r auditRow) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, insertAdminAudit,
		r.Action,
		r.UserID,
		r.Success,
		r.Reason,
		r.Path,
		r.IP,
		r.UserAgent,
		r.CreatedAt,
	).Scan(&id)
	return id, err
}

const listAdminAudit = `SELECT ` + auditColumns + ` FROM admin_audit_log ORDER BY id DESC LIMIT ?`

func (q *queries) ListAdminAudit(ctx context.Context, limit int) ([]auditRow, error) {
	rows, err := q.db.QueryContext(ctx, listAdminAudit, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auditRow
	for rows.Next() {
		var r auditRow
		if err := rows.Scan(
			&r.ID,
			&r.Action,
			&r.UserID,
			&r.Success,
			&r.Reason,
			&r.Path,
			&r.IP,
			&r.UserAgent,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type auditRepo struct {
	q *queries
}

func (r *auditRepo) RecordAdminAction(ctx context.Context, e domain.AdminAuditEntry) (domain.AdminAuditEntry, error) {
	if e.Action == "" {
		return domain.AdminAuditEntry{}, errors.New("audit entry without action")
	}
	now := r.q.now().UTC()

	id, err := r.q.InsertAdminAudit(ctx, auditRow{
		Action:    e.Action,
		UserID:    sql.NullInt64{Int64: e.UserID, Valid: e.UserID > 0},
		Success:   e.Success,
		Reason:    e.Reason,
		Path:      e.Path,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: formatTime(now),
	})
	if err != nil {
		return domain.AdminAuditEntry{}, err
	}

	e.ID = id
	e.CreatedAt = now
	return e, nil
}

func (r *auditRepo) ListAdminActions(ctx context.Context, limit int) ([]domain.AdminAuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.ListAdminAudit(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AdminAuditEntry, 0, len(rows))
	for _, row := range rows {
		created, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.AdminAuditEntry{
			ID:        row.ID,
			Action:    row.Action,
			UserID:    row.UserID.Int64,
			Success:   row.Success,
			Reason:    row.Reason,
			Path:      row.Path,
			IP:        row.IP,
			UserAgent: row.UserAgent,
			CreatedAt: created,
		})
	}
	return out, nil
}
