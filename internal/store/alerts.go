package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pitsense/pitsense/internal/models"
)

const alertColumns = `id, tenant_id, location_id, device_id, type, severity, message,
	trigger_value, threshold_value, is_acknowledged, acked_by, acked_at,
	resolved_at, sms_sent, email_sent, created_at`

func scanAlert(row scanner) (*models.Alert, error) {
	var (
		a                  models.Alert
		locationID         sql.NullInt64
		deviceID           sql.NullString
		trigger, threshold sql.NullFloat64
		ackedBy            sql.NullInt64
		ackedAt, resolved  sql.NullInt64
		createdAt          int64
	)
	err := row.Scan(&a.ID, &a.TenantID, &locationID, &deviceID, &a.Type, &a.Severity, &a.Message,
		&trigger, &threshold, &a.IsAcknowledged, &ackedBy, &ackedAt,
		&resolved, &a.SMSSent, &a.EmailSent, &createdAt)
	if err != nil {
		return nil, err
	}
	a.LocationID = intOrNil(locationID)
	a.DeviceID = strOrNil(deviceID)
	a.TriggerValue = floatOrNil(trigger)
	a.ThresholdValue = floatOrNil(threshold)
	a.AckedBy = intOrNil(ackedBy)
	a.AckedAt = fromNullUnix(ackedAt)
	a.ResolvedAt = fromNullUnix(resolved)
	a.CreatedAt = fromUnix(createdAt)
	return &a, nil
}

// InsertAlert persists a new alert.
func (q *Queries) InsertAlert(ctx context.Context, a *models.Alert, now time.Time) error {
	const op = "store.InsertAlert"
	var deviceArg any
	if a.DeviceID != nil {
		deviceArg = *a.DeviceID
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO alerts (tenant_id, location_id, device_id, type, severity, message,
			trigger_value, threshold_value, is_acknowledged, sms_sent, email_sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		a.TenantID, intArg(a.LocationID), deviceArg, a.Type, a.Severity, a.Message,
		floatArg(a.TriggerValue), floatArg(a.ThresholdValue), a.SMSSent, a.EmailSent, unix(now))
	if err != nil {
		return wrap(op, err)
	}
	a.ID, _ = res.LastInsertId()
	a.CreatedAt = now.UTC()
	return nil
}

// HasUnacknowledgedSince reports whether an unacknowledged alert of the
// same (device, location, type) exists after the cutoff. Drives the
// anti-flap cooldown.
func (q *Queries) HasUnacknowledgedSince(ctx context.Context, deviceID string, locationID *int64, alertType models.AlertType, since time.Time) (bool, error) {
	const op = "store.HasUnacknowledgedSince"
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE device_id = ? AND location_id IS ? AND type = ?
		  AND is_acknowledged = 0 AND created_at >= ?`,
		deviceID, intArg(locationID), alertType, unix(since)).Scan(&n)
	if err != nil {
		return false, wrap(op, err)
	}
	return n > 0, nil
}

// HasAlertSince reports whether any alert of the given type exists for
// the device after the cutoff, acknowledged or not. Used to dedupe
// expiry warnings per 24-hour window.
func (q *Queries) HasAlertSince(ctx context.Context, tenantID int64, deviceID *string, alertType models.AlertType, since time.Time) (bool, error) {
	const op = "store.HasAlertSince"
	var deviceArg any
	if deviceID != nil {
		deviceArg = *deviceID
	}
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE tenant_id = ? AND device_id IS ? AND type = ? AND created_at >= ?`,
		tenantID, deviceArg, alertType, unix(since)).Scan(&n)
	if err != nil {
		return false, wrap(op, err)
	}
	return n > 0, nil
}

// AcknowledgeAlert records a manual acknowledgement.
func (q *Queries) AcknowledgeAlert(ctx context.Context, id, userID int64, now time.Time) error {
	const op = "store.AcknowledgeAlert"
	res, err := q.db.ExecContext(ctx, `
		UPDATE alerts SET is_acknowledged = 1, acked_by = ?, acked_at = ?
		WHERE id = ? AND is_acknowledged = 0`,
		userID, unix(now), id)
	if err != nil {
		return wrap(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrap(op, sql.ErrNoRows)
	}
	return nil
}

// ListAlerts returns alerts for a tenant newest-first.
func (q *Queries) ListAlerts(ctx context.Context, tenantID int64, unackedOnly bool, page, pageSize int) (Page[models.Alert], error) {
	const op = "store.ListAlerts"
	where := " WHERE tenant_id = ?"
	args := []any{tenantID}
	if unackedOnly {
		where += " AND is_acknowledged = 0"
	}

	var total int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`+where, args...).Scan(&total); err != nil {
		return Page[models.Alert]{}, wrap(op, err)
	}

	args = append(args, pageSize, offset(page, pageSize))
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return Page[models.Alert]{}, wrap(op, err)
	}
	defer rows.Close()

	var items []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return Page[models.Alert]{}, wrap(op, err)
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return Page[models.Alert]{}, wrap(op, err)
	}
	return NewPage(items, total, page, pageSize), nil
}
