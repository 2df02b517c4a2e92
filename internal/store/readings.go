package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pitsense/pitsense/internal/models"
)

const readingColumns = `id, device_id, location_id, tenant_id,
	primary_sensor_type, aq_sensor_type,
	temperature, humidity, pressure, gas_resistance, iaq, iaq_accuracy,
	pm1, pm25, pm10,
	particles_03um, particles_05um, particles_10um, particles_25um, particles_50um, particles_100um,
	is_valid, validation_notes, device_timestamp, created_at`

func scanReading(row scanner) (*models.Reading, error) {
	var (
		r                models.Reading
		primary, aq      sql.NullString
		temp, hum, press sql.NullFloat64
		gas, iaq         sql.NullFloat64
		iaqAcc           sql.NullInt64
		pm1, pm25, pm10  sql.NullFloat64
		p03, p05, p10    sql.NullInt64
		p25, p50, p100   sql.NullInt64
		notes            sql.NullString
		deviceTS         sql.NullInt64
		createdAt        int64
	)
	err := row.Scan(&r.ID, &r.DeviceID, &r.LocationID, &r.TenantID,
		&primary, &aq,
		&temp, &hum, &press, &gas, &iaq, &iaqAcc,
		&pm1, &pm25, &pm10,
		&p03, &p05, &p10, &p25, &p50, &p100,
		&r.IsValid, &notes, &deviceTS, &createdAt)
	if err != nil {
		return nil, err
	}
	r.PrimarySensorType = strOrNil(primary)
	r.AQSensorType = strOrNil(aq)
	r.Temperature = floatOrNil(temp)
	r.Humidity = floatOrNil(hum)
	r.Pressure = floatOrNil(press)
	r.GasResistance = floatOrNil(gas)
	r.IAQ = floatOrNil(iaq)
	r.IAQAccuracy = intOrNil(iaqAcc)
	r.PM1 = floatOrNil(pm1)
	r.PM25 = floatOrNil(pm25)
	r.PM10 = floatOrNil(pm10)
	r.Particles03um = intOrNil(p03)
	r.Particles05um = intOrNil(p05)
	r.Particles10um = intOrNil(p10)
	r.Particles25um = intOrNil(p25)
	r.Particles50um = intOrNil(p50)
	r.Particles100um = intOrNil(p100)
	r.ValidationNotes = strEmpty(notes)
	r.DeviceTimestamp = fromNullUnix(deviceTS)
	r.CreatedAt = fromUnix(createdAt)
	return &r, nil
}

func floatArg(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func intArg(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

// InsertReading appends a reading row. Append-only; the same payload
// twice produces two rows.
func (q *Queries) InsertReading(ctx context.Context, r *models.Reading, now time.Time) error {
	const op = "store.InsertReading"
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO readings (device_id, location_id, tenant_id,
			primary_sensor_type, aq_sensor_type,
			temperature, humidity, pressure, gas_resistance, iaq, iaq_accuracy,
			pm1, pm25, pm10,
			particles_03um, particles_05um, particles_10um, particles_25um, particles_50um, particles_100um,
			is_valid, validation_notes, device_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DeviceID, r.LocationID, r.TenantID,
		r.PrimarySensorType, r.AQSensorType,
		floatArg(r.Temperature), floatArg(r.Humidity), floatArg(r.Pressure),
		floatArg(r.GasResistance), floatArg(r.IAQ), intArg(r.IAQAccuracy),
		floatArg(r.PM1), floatArg(r.PM25), floatArg(r.PM10),
		intArg(r.Particles03um), intArg(r.Particles05um), intArg(r.Particles10um),
		intArg(r.Particles25um), intArg(r.Particles50um), intArg(r.Particles100um),
		r.IsValid, r.ValidationNotes, unixPtr(r.DeviceTimestamp), unix(now))
	if err != nil {
		return wrap(op, err)
	}
	r.ID, _ = res.LastInsertId()
	r.CreatedAt = now.UTC()
	return nil
}

// LatestReadingForLocation returns the newest reading for one pit.
func (q *Queries) LatestReadingForLocation(ctx context.Context, locationID int64) (*models.Reading, error) {
	const op = "store.LatestReadingForLocation"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+readingColumns+` FROM readings
		 WHERE location_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, locationID)
	r, err := scanReading(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return r, nil
}

// LatestReadingsForTenant returns the newest reading per location for
// a tenant's dashboard.
func (q *Queries) LatestReadingsForTenant(ctx context.Context, tenantID int64) ([]models.Reading, error) {
	const op = "store.LatestReadingsForTenant"
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+qualify(readingColumns, "r")+`
		FROM readings r
		JOIN (
			SELECT location_id, MAX(id) AS max_id
			FROM readings WHERE tenant_id = ?
			GROUP BY location_id
		) latest ON latest.max_id = r.id`, tenantID)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var items []models.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		items = append(items, *r)
	}
	return items, wrap(op, rows.Err())
}

// ReadingFilter narrows a paginated history query. Zero values mean
// "no constraint".
type ReadingFilter struct {
	TenantID   int64
	LocationID int64
	DeviceID   string
	Since      time.Time
	Until      time.Time
}

// ListReadings returns reading history newest-first.
func (q *Queries) ListReadings(ctx context.Context, f ReadingFilter, page, pageSize int) (Page[models.Reading], error) {
	const op = "store.ListReadings"
	where := " WHERE 1=1"
	args := []any{}
	if f.TenantID != 0 {
		where += " AND tenant_id = ?"
		args = append(args, f.TenantID)
	}
	if f.LocationID != 0 {
		where += " AND location_id = ?"
		args = append(args, f.LocationID)
	}
	if f.DeviceID != "" {
		where += " AND device_id = ?"
		args = append(args, f.DeviceID)
	}
	if !f.Since.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, unix(f.Since))
	}
	if !f.Until.IsZero() {
		where += " AND created_at < ?"
		args = append(args, unix(f.Until))
	}

	var total int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`+where, args...).Scan(&total); err != nil {
		return Page[models.Reading]{}, wrap(op, err)
	}

	args = append(args, pageSize, offset(page, pageSize))
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM readings`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return Page[models.Reading]{}, wrap(op, err)
	}
	defer rows.Close()

	var items []models.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return Page[models.Reading]{}, wrap(op, err)
		}
		items = append(items, *r)
	}
	if err := rows.Err(); err != nil {
		return Page[models.Reading]{}, wrap(op, err)
	}
	return NewPage(items, total, page, pageSize), nil
}

// PruneReadings deletes readings older than the retention horizon and
// reports how many rows went away.
func (q *Queries) PruneReadings(ctx context.Context, olderThan time.Time) (int64, error) {
	const op = "store.PruneReadings"
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM readings WHERE created_at < ?`, unix(olderThan))
	if err != nil {
		return 0, wrap(op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
