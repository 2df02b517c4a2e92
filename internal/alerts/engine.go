// Package alerts evaluates stored readings against the resolved
// threshold set and persists alerts with anti-flap suppression.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pitsense/pitsense/internal/identity"
	"github.com/pitsense/pitsense/internal/metrics"
	"github.com/pitsense/pitsense/internal/models"
	"github.com/pitsense/pitsense/internal/store"
)

// Cooldown is the suppression window for repeated alerts of the same
// (device, location, type).
const Cooldown = 5 * time.Minute

// Engine performs threshold evaluation. It carries no state beyond the
// clock; persistence goes through the query scope passed per call so
// evaluation joins the ingest transaction.
type Engine struct {
	clock identity.Clock
}

// NewEngine builds an alert engine.
func NewEngine(clock identity.Clock) *Engine {
	return &Engine{clock: clock}
}

// candidate is one signal that crossed a threshold.
type candidate struct {
	typ       models.AlertType
	severity  models.AlertSeverity
	message   string
	trigger   float64
	threshold float64
}

// Evaluate classifies every signal of the reading and persists the
// alerts that survive the cooldown. Returns the persisted alerts for
// fan-out.
func (e *Engine) Evaluate(ctx context.Context, q *store.Queries, r *models.Reading) ([]models.Alert, error) {
	tenantTh, err := q.GetTenantThresholds(ctx, r.TenantID)
	if err != nil {
		return nil, err
	}
	locTh, err := q.GetLocationThresholds(ctx, r.LocationID)
	if err != nil {
		return nil, err
	}
	resolved := Resolve(tenantTh, locTh)

	candidates := collect(r, resolved)
	if len(candidates) == 0 {
		return nil, nil
	}

	now := e.clock.Now()
	cutoff := now.Add(-Cooldown)

	var fired []models.Alert
	for _, c := range candidates {
		suppressed, err := q.HasUnacknowledgedSince(ctx, r.DeviceID, &r.LocationID, c.typ, cutoff)
		if err != nil {
			return nil, err
		}
		if suppressed {
			metrics.AlertsSuppressed.Inc()
			continue
		}

		deviceID := r.DeviceID
		locationID := r.LocationID
		trigger := c.trigger
		threshold := c.threshold
		alert := models.Alert{
			TenantID:       r.TenantID,
			LocationID:     &locationID,
			DeviceID:       &deviceID,
			Type:           c.typ,
			Severity:       c.severity,
			Message:        c.message,
			TriggerValue:   &trigger,
			ThresholdValue: &threshold,
		}
		if err := q.InsertAlert(ctx, &alert, now); err != nil {
			return nil, err
		}
		metrics.AlertsFired.WithLabelValues(string(c.typ), string(c.severity)).Inc()
		log.Info().
			Str("deviceId", r.DeviceID).
			Int64("locationId", r.LocationID).
			Str("type", string(c.typ)).
			Str("severity", string(c.severity)).
			Float64("value", c.trigger).
			Msg("Alert fired")
		fired = append(fired, alert)
	}
	return fired, nil
}

// collect classifies each signal independently and renders messages
// with the observed value at one decimal, the threshold, and the unit.
func collect(r *models.Reading, th Resolved) []candidate {
	var out []candidate

	if r.Temperature != nil {
		t := *r.Temperature
		if t < th.TempMin {
			out = append(out, candidate{
				typ:       models.AlertTempTooLow,
				severity:  models.SeverityWarning,
				message:   fmt.Sprintf("Temperature %.1f°C below min threshold of %.1f°C", t, th.TempMin),
				trigger:   t,
				threshold: th.TempMin,
			})
		} else if t > th.TempMax {
			out = append(out, candidate{
				typ:       models.AlertTempTooHigh,
				severity:  models.SeverityWarning,
				message:   fmt.Sprintf("Temperature %.1f°C exceeded max threshold of %.1f°C", t, th.TempMax),
				trigger:   t,
				threshold: th.TempMax,
			})
		}
	}

	if r.Humidity != nil && *r.Humidity > th.HumidityMax {
		out = append(out, candidate{
			typ:       models.AlertHumidityTooHigh,
			severity:  models.SeverityWarning,
			message:   fmt.Sprintf("Humidity %.1f%% exceeded max threshold of %.1f%%", *r.Humidity, th.HumidityMax),
			trigger:   *r.Humidity,
			threshold: th.HumidityMax,
		})
	}

	if c, ok := triCandidate(r.PM25, th.PM25Warn, th.PM25Crit, models.AlertHighPM25, "PM2.5", "µg/m³"); ok {
		out = append(out, c)
	}
	if c, ok := triCandidate(r.PM10, th.PM10Warn, th.PM10Crit, models.AlertHighPM10, "PM10", "µg/m³"); ok {
		out = append(out, c)
	}
	if c, ok := triCandidate(r.IAQ, th.IAQWarn, th.IAQCrit, models.AlertHighIAQ, "IAQ", ""); ok {
		out = append(out, c)
	}

	return out
}

func triCandidate(v *float64, warn, crit float64, typ models.AlertType, label, unit string) (candidate, bool) {
	status := ClassifyTri(v, warn, crit)
	switch status {
	case models.StatusWarning:
		return candidate{
			typ:       typ,
			severity:  models.SeverityWarning,
			message:   fmt.Sprintf("%s %.1f%s exceeded warning threshold of %.1f%s", label, *v, unit, warn, unit),
			trigger:   *v,
			threshold: warn,
		}, true
	case models.StatusCritical:
		return candidate{
			typ:       typ,
			severity:  models.SeverityCritical,
			message:   fmt.Sprintf("%s %.1f%s exceeded critical threshold of %.1f%s", label, *v, unit, crit, unit),
			trigger:   *v,
			threshold: crit,
		}, true
	default:
		return candidate{}, false
	}
}
