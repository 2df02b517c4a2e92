package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/pitsense/pitsense/internal/models"
)

// GetTenantThresholds returns the tenant's alarm configuration, or the
// built-in defaults when the tenant has no stored row.
func (q *Queries) GetTenantThresholds(ctx context.Context, tenantID int64) (models.TenantThresholds, error) {
	const op = "store.GetTenantThresholds"
	var (
		t          models.TenantThresholds
		webhookURL sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT tenant_id, temp_min, temp_max, humidity_max,
			pm25_warn, pm25_crit, pm10_warn, pm10_crit, iaq_warn, iaq_crit,
			device_offline_s, camera_offline_s,
			notify_sms, notify_email, notify_webhook, webhook_url
		FROM tenant_thresholds WHERE tenant_id = ?`, tenantID).
		Scan(&t.TenantID, &t.TempMin, &t.TempMax, &t.HumidityMax,
			&t.PM25Warn, &t.PM25Crit, &t.PM10Warn, &t.PM10Crit, &t.IAQWarn, &t.IAQCrit,
			&t.DeviceOfflineS, &t.CameraOfflineS,
			&t.NotifySMS, &t.NotifyEmail, &t.NotifyWebhook, &webhookURL)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.DefaultTenantThresholds(tenantID), nil
	}
	if err != nil {
		return models.TenantThresholds{}, wrap(op, err)
	}
	t.WebhookURL = strEmpty(webhookURL)
	return t, nil
}

// UpsertTenantThresholds writes the tenant alarm configuration.
func (q *Queries) UpsertTenantThresholds(ctx context.Context, t *models.TenantThresholds) error {
	const op = "store.UpsertTenantThresholds"
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tenant_thresholds (tenant_id, temp_min, temp_max, humidity_max,
			pm25_warn, pm25_crit, pm10_warn, pm10_crit, iaq_warn, iaq_crit,
			device_offline_s, camera_offline_s,
			notify_sms, notify_email, notify_webhook, webhook_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			temp_min = excluded.temp_min,
			temp_max = excluded.temp_max,
			humidity_max = excluded.humidity_max,
			pm25_warn = excluded.pm25_warn,
			pm25_crit = excluded.pm25_crit,
			pm10_warn = excluded.pm10_warn,
			pm10_crit = excluded.pm10_crit,
			iaq_warn = excluded.iaq_warn,
			iaq_crit = excluded.iaq_crit,
			device_offline_s = excluded.device_offline_s,
			camera_offline_s = excluded.camera_offline_s,
			notify_sms = excluded.notify_sms,
			notify_email = excluded.notify_email,
			notify_webhook = excluded.notify_webhook,
			webhook_url = excluded.webhook_url`,
		t.TenantID, t.TempMin, t.TempMax, t.HumidityMax,
		t.PM25Warn, t.PM25Crit, t.PM10Warn, t.PM10Crit, t.IAQWarn, t.IAQCrit,
		t.DeviceOfflineS, t.CameraOfflineS,
		t.NotifySMS, t.NotifyEmail, t.NotifyWebhook, t.WebhookURL)
	return wrap(op, err)
}

// GetLocationThresholds returns the per-pit overrides, or nil when the
// location has none. A nil field inside the row means "inherit".
func (q *Queries) GetLocationThresholds(ctx context.Context, locationID int64) (*models.LocationThresholds, error) {
	const op = "store.GetLocationThresholds"
	var (
		l                    models.LocationThresholds
		tempMin, tempMax     sql.NullFloat64
		humidityMax          sql.NullFloat64
		pm25Warn, pm25Crit   sql.NullFloat64
		pm10Warn, pm10Crit   sql.NullFloat64
		iaqWarn, iaqCrit     sql.NullFloat64
		deviceOff, cameraOff sql.NullInt64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT location_id, temp_min, temp_max, humidity_max,
			pm25_warn, pm25_crit, pm10_warn, pm10_crit, iaq_warn, iaq_crit,
			device_offline_s, camera_offline_s
		FROM location_thresholds WHERE location_id = ?`, locationID).
		Scan(&l.LocationID, &tempMin, &tempMax, &humidityMax,
			&pm25Warn, &pm25Crit, &pm10Warn, &pm10Crit, &iaqWarn, &iaqCrit,
			&deviceOff, &cameraOff)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	l.TempMin = floatOrNil(tempMin)
	l.TempMax = floatOrNil(tempMax)
	l.HumidityMax = floatOrNil(humidityMax)
	l.PM25Warn = floatOrNil(pm25Warn)
	l.PM25Crit = floatOrNil(pm25Crit)
	l.PM10Warn = floatOrNil(pm10Warn)
	l.PM10Crit = floatOrNil(pm10Crit)
	l.IAQWarn = floatOrNil(iaqWarn)
	l.IAQCrit = floatOrNil(iaqCrit)
	if deviceOff.Valid {
		n := int(deviceOff.Int64)
		l.DeviceOfflineS = &n
	}
	if cameraOff.Valid {
		n := int(cameraOff.Int64)
		l.CameraOfflineS = &n
	}
	return &l, nil
}

// UpsertLocationThresholds writes the per-pit override row.
func (q *Queries) UpsertLocationThresholds(ctx context.Context, l *models.LocationThresholds) error {
	const op = "store.UpsertLocationThresholds"
	var deviceOff, cameraOff any
	if l.DeviceOfflineS != nil {
		deviceOff = *l.DeviceOfflineS
	}
	if l.CameraOfflineS != nil {
		cameraOff = *l.CameraOfflineS
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO location_thresholds (location_id, temp_min, temp_max, humidity_max,
			pm25_warn, pm25_crit, pm10_warn, pm10_crit, iaq_warn, iaq_crit,
			device_offline_s, camera_offline_s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location_id) DO UPDATE SET
			temp_min = excluded.temp_min,
			temp_max = excluded.temp_max,
			humidity_max = excluded.humidity_max,
			pm25_warn = excluded.pm25_warn,
			pm25_crit = excluded.pm25_crit,
			pm10_warn = excluded.pm10_warn,
			pm10_crit = excluded.pm10_crit,
			iaq_warn = excluded.iaq_warn,
			iaq_crit = excluded.iaq_crit,
			device_offline_s = excluded.device_offline_s,
			camera_offline_s = excluded.camera_offline_s`,
		l.LocationID, floatArg(l.TempMin), floatArg(l.TempMax), floatArg(l.HumidityMax),
		floatArg(l.PM25Warn), floatArg(l.PM25Crit), floatArg(l.PM10Warn), floatArg(l.PM10Crit),
		floatArg(l.IAQWarn), floatArg(l.IAQCrit), deviceOff, cameraOff)
	return wrap(op, err)
}
