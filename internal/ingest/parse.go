package ingest

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// sensorMessage is the decoded inbound sensor body. The payload is an
// open map; required identity fields are typed and the rest stays raw
// for defensive numeric coercion.
type sensorMessage struct {
	DeviceID   string
	LicenseKey string
	SensorType string
	raw        map[string]any
}

// parseSensorMessage decodes the body and enforces the two required
// fields. Unknown keys are kept but ignored.
func parseSensorMessage(data []byte) (*sensorMessage, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}

	deviceID, _ := raw["device_id"].(string)
	licenseKey, _ := raw["license_key"].(string)
	if deviceID == "" || licenseKey == "" {
		return nil, false
	}
	sensorType, _ := raw["sensor_type"].(string)

	return &sensorMessage{
		DeviceID:   deviceID,
		LicenseKey: licenseKey,
		SensorType: sensorType,
		raw:        raw,
	}, true
}

// Float returns the named value as a float, or nil when the value is
// missing, unparseable, NaN, or infinite. The row is still stored.
func (m *sensorMessage) Float(key string) *float64 {
	v, ok := m.raw[key]
	if !ok || v == nil {
		return nil
	}
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		f = parsed
	case bool:
		return nil
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Int returns the named value as an integer, truncating floats the way
// the devices round their counters.
func (m *sensorMessage) Int(key string) *int64 {
	f := m.Float(key)
	if f == nil {
		return nil
	}
	n := int64(*f)
	return &n
}

// Timestamp parses the optional device-supplied ISO 8601 timestamp.
// Malformed values become nil without failing the reading.
func (m *sensorMessage) Timestamp() *time.Time {
	v, ok := m.raw["timestamp"].(string)
	if !ok || v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// statusMessage is the decoded inbound status body.
type statusMessage struct {
	DeviceID string `json:"device_id"`
	Ack      *int64 `json:"ack,omitempty"`
	Online   *bool  `json:"online,omitempty"`
}
