package alerts

import "github.com/pitsense/pitsense/internal/models"

// Resolved is the flattened threshold set used for one evaluation.
// Resolution happens once per reading; the engine never consults the
// raw rows again.
type Resolved struct {
	TempMin        float64
	TempMax        float64
	HumidityMax    float64
	PM25Warn       float64
	PM25Crit       float64
	PM10Warn       float64
	PM10Crit       float64
	IAQWarn        float64
	IAQCrit        float64
	DeviceOfflineS int
	CameraOfflineS int
}

// Resolve applies the inheritance order: location override when set,
// else the tenant value. Tenant rows themselves default to the
// built-in values when absent, so every field is always populated.
func Resolve(t models.TenantThresholds, l *models.LocationThresholds) Resolved {
	r := Resolved{
		TempMin:        t.TempMin,
		TempMax:        t.TempMax,
		HumidityMax:    t.HumidityMax,
		PM25Warn:       t.PM25Warn,
		PM25Crit:       t.PM25Crit,
		PM10Warn:       t.PM10Warn,
		PM10Crit:       t.PM10Crit,
		IAQWarn:        t.IAQWarn,
		IAQCrit:        t.IAQCrit,
		DeviceOfflineS: t.DeviceOfflineS,
		CameraOfflineS: t.CameraOfflineS,
	}
	if l == nil {
		return r
	}
	if l.TempMin != nil {
		r.TempMin = *l.TempMin
	}
	if l.TempMax != nil {
		r.TempMax = *l.TempMax
	}
	if l.HumidityMax != nil {
		r.HumidityMax = *l.HumidityMax
	}
	if l.PM25Warn != nil {
		r.PM25Warn = *l.PM25Warn
	}
	if l.PM25Crit != nil {
		r.PM25Crit = *l.PM25Crit
	}
	if l.PM10Warn != nil {
		r.PM10Warn = *l.PM10Warn
	}
	if l.PM10Crit != nil {
		r.PM10Crit = *l.PM10Crit
	}
	if l.IAQWarn != nil {
		r.IAQWarn = *l.IAQWarn
	}
	if l.IAQCrit != nil {
		r.IAQCrit = *l.IAQCrit
	}
	if l.DeviceOfflineS != nil {
		r.DeviceOfflineS = *l.DeviceOfflineS
	}
	if l.CameraOfflineS != nil {
		r.CameraOfflineS = *l.CameraOfflineS
	}
	return r
}

// ClassifyRange reports good when min <= v <= max, warning otherwise.
func ClassifyRange(v *float64, min, max float64) models.SensorStatus {
	if v == nil {
		return models.StatusUnknown
	}
	if *v < min || *v > max {
		return models.StatusWarning
	}
	return models.StatusGood
}

// ClassifyMax reports good when v <= max, warning otherwise.
func ClassifyMax(v *float64, max float64) models.SensorStatus {
	if v == nil {
		return models.StatusUnknown
	}
	if *v > max {
		return models.StatusWarning
	}
	return models.StatusGood
}

// ClassifyTri applies the tri-level pattern: good below warn, warning
// in [warn, crit), critical at or above crit.
func ClassifyTri(v *float64, warn, crit float64) models.SensorStatus {
	if v == nil {
		return models.StatusUnknown
	}
	switch {
	case *v >= crit:
		return models.StatusCritical
	case *v >= warn:
		return models.StatusWarning
	default:
		return models.StatusGood
	}
}
