package domain

import "time"

// Admin audit actions.
const (
	AuditAdminAccessGranted = "ADMIN_ACCESS_GRANTED"
	AuditAdminAuthFailed    = "ADMIN_AUTH_FAILED"
	AuditRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)

// AdminAuditEntry is one row of the admin audit trail. UserID is zero when
// the caller could not be identified.
type AdminAuditEntry struct {
	ID        int64
	Action    string
	UserID    int64
	Success   bool
	Reason    string
	Path      string
	IP        string
	UserAgent string
	CreatedAt time.Time
}
