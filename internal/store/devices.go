package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/models"
)

const deviceColumns = `id, device_id, license_key, tenant_id, location_id,
	primary_sensor_type, aq_sensor_type, firmware_version, mac, ip,
	status, is_online, last_seen, last_message, report_interval_seconds,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*models.Device, error) {
	var (
		d                     models.Device
		licenseKey, aqType    sql.NullString
		firmware, mac, ip     sql.NullString
		tenantID, locationID  sql.NullInt64
		lastSeen, lastMessage sql.NullInt64
		createdAt, updatedAt  int64
	)
	err := row.Scan(&d.ID, &d.DeviceID, &licenseKey, &tenantID, &locationID,
		&d.PrimarySensorType, &aqType, &firmware, &mac, &ip,
		&d.Status, &d.IsOnline, &lastSeen, &lastMessage, &d.ReportIntervalSeconds,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	d.LicenseKey = strOrNil(licenseKey)
	d.TenantID = intOrNil(tenantID)
	d.LocationID = intOrNil(locationID)
	d.AQSensorType = strOrNil(aqType)
	d.FirmwareVersion = strEmpty(firmware)
	d.MAC = strEmpty(mac)
	d.IP = strEmpty(ip)
	d.LastSeen = fromNullUnix(lastSeen)
	d.LastMessage = fromNullUnix(lastMessage)
	d.CreatedAt = fromUnix(createdAt)
	d.UpdatedAt = fromUnix(updatedAt)
	return &d, nil
}

// GetDevice returns the device with the given opaque device identifier.
func (q *Queries) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	const op = "store.GetDevice"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID)
	d, err := scanDevice(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return d, nil
}

// CreateAnnouncedDevice inserts a freshly announced device in pending
// state. The announced attributes and online marker are recorded.
func (q *Queries) CreateAnnouncedDevice(ctx context.Context, d *models.Device, now time.Time) error {
	const op = "store.CreateAnnouncedDevice"
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, primary_sensor_type, aq_sensor_type,
			firmware_version, mac, ip, status, is_online, last_seen,
			report_interval_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		d.DeviceID, d.PrimarySensorType, d.AQSensorType,
		d.FirmwareVersion, d.MAC, d.IP, models.DevicePending, unix(now),
		d.ReportIntervalSeconds, unix(now), unix(now))
	if err != nil {
		return wrap(op, err)
	}
	d.ID, _ = res.LastInsertId()
	d.Status = models.DevicePending
	d.IsOnline = true
	return nil
}

// RefreshAnnouncedDevice updates the volatile attributes of a pending
// device that announced itself again.
func (q *Queries) RefreshAnnouncedDevice(ctx context.Context, deviceID, ip, firmwareVersion string, now time.Time) error {
	const op = "store.RefreshAnnouncedDevice"
	_, err := q.db.ExecContext(ctx, `
		UPDATE devices SET ip = ?, firmware_version = ?, is_online = 1,
			last_seen = ?, updated_at = ?
		WHERE device_id = ?`,
		ip, firmwareVersion, unix(now), unix(now), deviceID)
	return wrap(op, err)
}

// UpdateDeviceHealth marks the device online after an accepted reading.
// Idempotent; safe under at-least-once delivery.
func (q *Queries) UpdateDeviceHealth(ctx context.Context, deviceID string, now time.Time) error {
	const op = "store.UpdateDeviceHealth"
	_, err := q.db.ExecContext(ctx, `
		UPDATE devices SET is_online = 1, last_seen = ?, last_message = ?, updated_at = ?
		WHERE device_id = ?`,
		unix(now), unix(now), unix(now), deviceID)
	return wrap(op, err)
}

// TouchDevice refreshes is_online and last_seen from a status message.
func (q *Queries) TouchDevice(ctx context.Context, deviceID string, now time.Time) error {
	const op = "store.TouchDevice"
	_, err := q.db.ExecContext(ctx, `
		UPDATE devices SET is_online = 1, last_seen = ?, updated_at = ?
		WHERE device_id = ?`,
		unix(now), unix(now), deviceID)
	return wrap(op, err)
}

// ActivateDevice binds a pending device to a tenant under a freshly
// minted license key. Only a pending device activates; a concurrent
// approval loses the race and gets Conflict.
func (q *Queries) ActivateDevice(ctx context.Context, deviceID, licenseKey string, tenantID int64, locationID *int64, now time.Time) error {
	const op = "store.ActivateDevice"
	var locArg any
	if locationID != nil {
		locArg = *locationID
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE devices SET license_key = ?, tenant_id = ?, location_id = ?,
			status = ?, updated_at = ?
		WHERE device_id = ? AND status = ?`,
		licenseKey, tenantID, locArg, models.DeviceActive, unix(now), deviceID, models.DevicePending)
	if err != nil {
		return wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if n == 0 {
		return errors.Ef(errors.KindConflict, op, "device %s is not pending", deviceID)
	}
	return nil
}

// UnassignDevice clears the license and tenant binding, returning the
// device to pending. A new key is minted on the next approval.
func (q *Queries) UnassignDevice(ctx context.Context, deviceID string, now time.Time) error {
	const op = "store.UnassignDevice"
	_, err := q.db.ExecContext(ctx, `
		UPDATE devices SET license_key = NULL, tenant_id = NULL, location_id = NULL,
			status = ?, updated_at = ?
		WHERE device_id = ?`,
		models.DevicePending, unix(now), deviceID)
	return wrap(op, err)
}

// SetDeviceStatus transitions the device lifecycle state.
func (q *Queries) SetDeviceStatus(ctx context.Context, deviceID string, status models.DeviceStatus, now time.Time) error {
	const op = "store.SetDeviceStatus"
	_, err := q.db.ExecContext(ctx, `
		UPDATE devices SET status = ?, updated_at = ? WHERE device_id = ?`,
		status, unix(now), deviceID)
	return wrap(op, err)
}

// MarkDeviceOffline flips is_online off without touching last_seen.
func (q *Queries) MarkDeviceOffline(ctx context.Context, deviceID string, now time.Time) error {
	const op = "store.MarkDeviceOffline"
	_, err := q.db.ExecContext(ctx, `
		UPDATE devices SET is_online = 0, updated_at = ? WHERE device_id = ?`,
		unix(now), deviceID)
	return wrap(op, err)
}

// ListDevices returns devices newest-first with the shared pagination
// envelope. A zero tenantID lists across tenants.
func (q *Queries) ListDevices(ctx context.Context, tenantID int64, page, pageSize int) (Page[models.Device], error) {
	const op = "store.ListDevices"
	where := ""
	args := []any{}
	if tenantID != 0 {
		where = " WHERE tenant_id = ?"
		args = append(args, tenantID)
	}

	var total int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`+where, args...).Scan(&total); err != nil {
		return Page[models.Device]{}, wrap(op, err)
	}

	args = append(args, pageSize, offset(page, pageSize))
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return Page[models.Device]{}, wrap(op, err)
	}
	defer rows.Close()

	var items []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return Page[models.Device]{}, wrap(op, err)
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return Page[models.Device]{}, wrap(op, err)
	}
	return NewPage(items, total, page, pageSize), nil
}

// ListStaleOnlineDevices returns devices still marked online whose
// last_seen is older than their tenant's offline threshold (or the
// fallback for unassigned devices).
func (q *Queries) ListStaleOnlineDevices(ctx context.Context, now time.Time, fallbackOfflineS int) ([]models.Device, error) {
	const op = "store.ListStaleOnlineDevices"
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+qualify(deviceColumns, "d")+`
		FROM devices d
		LEFT JOIN tenant_thresholds t ON t.tenant_id = d.tenant_id
		WHERE d.is_online = 1
		  AND d.last_seen IS NOT NULL
		  AND d.last_seen < ? - COALESCE(t.device_offline_s, ?)`,
		unix(now), fallbackOfflineS)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var items []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		items = append(items, *d)
	}
	return items, wrap(op, rows.Err())
}
