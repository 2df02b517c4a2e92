package store

import (
	"context"

	"github.com/pitsense/pitsense/internal/models"
)

// UpsertSensorType writes a catalog row keyed by code.
func (q *Queries) UpsertSensorType(ctx context.Context, st *models.SensorType) error {
	const op = "store.UpsertSensorType"
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sensor_types (code, name, capabilities, is_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			capabilities = excluded.capabilities,
			is_active = excluded.is_active`,
		st.Code, st.Name, st.Capabilities, st.IsActive)
	return wrap(op, err)
}

// GetSensorType returns a catalog row by code.
func (q *Queries) GetSensorType(ctx context.Context, code string) (*models.SensorType, error) {
	const op = "store.GetSensorType"
	var st models.SensorType
	err := q.db.QueryRowContext(ctx, `
		SELECT id, code, name, capabilities, is_active FROM sensor_types WHERE code = ?`, code).
		Scan(&st.ID, &st.Code, &st.Name, &st.Capabilities, &st.IsActive)
	if err != nil {
		return nil, wrap(op, err)
	}
	return &st, nil
}

// ListSensorTypes returns the active catalog.
func (q *Queries) ListSensorTypes(ctx context.Context) ([]models.SensorType, error) {
	const op = "store.ListSensorTypes"
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, code, name, capabilities, is_active FROM sensor_types WHERE is_active = 1 ORDER BY code`)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var items []models.SensorType
	for rows.Next() {
		var st models.SensorType
		if err := rows.Scan(&st.ID, &st.Code, &st.Name, &st.Capabilities, &st.IsActive); err != nil {
			return nil, wrap(op, err)
		}
		items = append(items, st)
	}
	return items, wrap(op, rows.Err())
}

// SeedSensorTypes installs the known sensor catalog when the table is
// empty.
func (q *Queries) SeedSensorTypes(ctx context.Context) error {
	const op = "store.SeedSensorTypes"
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_types`).Scan(&n); err != nil {
		return wrap(op, err)
	}
	if n > 0 {
		return nil
	}
	seed := []models.SensorType{
		{Code: models.SensorDHT22, Name: "DHT22 temperature/humidity", Capabilities: models.CapTemperature | models.CapHumidity, IsActive: true},
		{Code: models.SensorDHT11, Name: "DHT11 temperature/humidity", Capabilities: models.CapTemperature | models.CapHumidity, IsActive: true},
		{Code: models.SensorPMS5003, Name: "PMS5003 particulate matter", Capabilities: models.CapParticulates, IsActive: true},
		{Code: models.SensorBME680, Name: "BME680 environmental", Capabilities: models.CapTemperature | models.CapHumidity | models.CapPressure | models.CapGasResistance | models.CapIAQ, IsActive: true},
		{Code: models.SensorBME688, Name: "BME688 environmental", Capabilities: models.CapTemperature | models.CapHumidity | models.CapPressure | models.CapGasResistance | models.CapIAQ, IsActive: true},
	}
	for i := range seed {
		if err := q.UpsertSensorType(ctx, &seed[i]); err != nil {
			return err
		}
	}
	return nil
}
