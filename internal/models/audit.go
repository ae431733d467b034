package models

import (
	"context"
	"time"
)

// AuditAction constants represent promotion actions to be logged.
const (
	AuditActionPromotionCommit = "PROMOTION_COMMIT"
	AuditActionSchoolYearLock  = "SCHOOL_YEAR_LOCK"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type auditOriginKey struct{}

// AuditOrigin is where a request came from, attached to audit rows.
type AuditOrigin struct {
	IPAddress string
	UserAgent string
}

// WithAuditOrigin returns a context carrying origin.
func WithAuditOrigin(ctx context.Context, origin AuditOrigin) context.Context {
	return context.WithValue(ctx, auditOriginKey{}, origin)
}

// AuditOriginFrom returns the origin stored in ctx, if any.
func AuditOriginFrom(ctx context.Context) (AuditOrigin, bool) {
	origin, ok := ctx.Value(auditOriginKey{}).(AuditOrigin)
	return origin, ok
}
