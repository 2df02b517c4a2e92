package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pitsense/pitsense/internal/models"
)

const commandColumns = `id, device_id, tenant_id, command, reason, payload, status,
	sent_at, acked_at, issuer_user_id, created_at`

func scanCommand(row scanner) (*models.Command, error) {
	var (
		c               models.Command
		reason, payload sql.NullString
		sentAt, ackedAt sql.NullInt64
		issuer          sql.NullInt64
		createdAt       int64
	)
	err := row.Scan(&c.ID, &c.DeviceID, &c.TenantID, &c.Command, &reason, &payload, &c.Status,
		&sentAt, &ackedAt, &issuer, &createdAt)
	if err != nil {
		return nil, err
	}
	c.Reason = strEmpty(reason)
	c.Payload = strEmpty(payload)
	c.SentAt = fromNullUnix(sentAt)
	c.AckedAt = fromNullUnix(ackedAt)
	c.IssuerUserID = intOrNil(issuer)
	c.CreatedAt = fromUnix(createdAt)
	return &c, nil
}

// InsertCommand persists an outbound command in pending state.
func (q *Queries) InsertCommand(ctx context.Context, c *models.Command, now time.Time) error {
	const op = "store.InsertCommand"
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO commands (device_id, tenant_id, command, reason, payload, status, issuer_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.DeviceID, c.TenantID, c.Command, c.Reason, c.Payload,
		models.CommandPending, intArg(c.IssuerUserID), unix(now))
	if err != nil {
		return wrap(op, err)
	}
	c.ID, _ = res.LastInsertId()
	c.Status = models.CommandPending
	c.CreatedAt = now.UTC()
	return nil
}

// MarkCommandSent transitions pending to sent after a successful
// publish.
func (q *Queries) MarkCommandSent(ctx context.Context, id int64, now time.Time) error {
	const op = "store.MarkCommandSent"
	_, err := q.db.ExecContext(ctx,
		`UPDATE commands SET status = ?, sent_at = ? WHERE id = ?`,
		models.CommandSent, unix(now), id)
	return wrap(op, err)
}

// MarkCommandFailed records a publish failure.
func (q *Queries) MarkCommandFailed(ctx context.Context, id int64) error {
	const op = "store.MarkCommandFailed"
	_, err := q.db.ExecContext(ctx,
		`UPDATE commands SET status = ? WHERE id = ?`, models.CommandFailed, id)
	return wrap(op, err)
}

// AcknowledgeCommand transitions a sent command to acknowledged when
// the device reports the command id on its status topic.
func (q *Queries) AcknowledgeCommand(ctx context.Context, id int64, deviceID string, now time.Time) error {
	const op = "store.AcknowledgeCommand"
	res, err := q.db.ExecContext(ctx, `
		UPDATE commands SET status = ?, acked_at = ?
		WHERE id = ? AND device_id = ? AND status = ?`,
		models.CommandAcknowledged, unix(now), id, deviceID, models.CommandSent)
	if err != nil {
		return wrap(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrap(op, sql.ErrNoRows)
	}
	return nil
}

// GetCommand returns a command by primary key.
func (q *Queries) GetCommand(ctx context.Context, id int64) (*models.Command, error) {
	const op = "store.GetCommand"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)
	c, err := scanCommand(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return c, nil
}

// ListCommandsForDevice returns a device's command history newest-first.
func (q *Queries) ListCommandsForDevice(ctx context.Context, deviceID string, page, pageSize int) (Page[models.Command], error) {
	const op = "store.ListCommandsForDevice"
	var total int64
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM commands WHERE device_id = ?`, deviceID).Scan(&total); err != nil {
		return Page[models.Command]{}, wrap(op, err)
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		deviceID, pageSize, offset(page, pageSize))
	if err != nil {
		return Page[models.Command]{}, wrap(op, err)
	}
	defer rows.Close()

	var items []models.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return Page[models.Command]{}, wrap(op, err)
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return Page[models.Command]{}, wrap(op, err)
	}
	return NewPage(items, total, page, pageSize), nil
}
