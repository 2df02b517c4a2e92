package store

import (
	"context"
	"time"

	"github.com/pitsense/pitsense/internal/models"
)

// InsertAudit appends an operator action record.
func (q *Queries) InsertAudit(ctx context.Context, a *models.AuditLog, now time.Time) error {
	const op = "store.InsertAudit"
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_logs (tenant_id, user_id, action, resource_type, resource_id,
			old_value, new_value, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intArg(a.TenantID), intArg(a.UserID), a.Action, a.ResourceType, a.ResourceID,
		a.OldValue, a.NewValue, a.IP, a.UserAgent, unix(now))
	if err != nil {
		return wrap(op, err)
	}
	a.ID, _ = res.LastInsertId()
	a.CreatedAt = now.UTC()
	return nil
}
