package broker

import (
	"fmt"
	"strings"
)

// Fixed subscription filters.
const (
	FilterSensors  = "workshop/+/pit/+/sensors"
	FilterStatus   = "workshop/+/device/+/status"
	FilterAnnounce = "provisioning/+/announce"
)

// TopicKind classifies an inbound topic against the subscription set.
type TopicKind int

const (
	KindUnknown TopicKind = iota
	KindSensors
	KindStatus
	KindAnnounce
)

func (k TopicKind) String() string {
	switch k {
	case KindSensors:
		return "sensors"
	case KindStatus:
		return "status"
	case KindAnnounce:
		return "announce"
	default:
		return "unknown"
	}
}

// Classify maps a concrete topic onto its kind and extracts the path
// identifiers: (tenant, pit) for sensors, (tenant, device) for status,
// (device) for announcements.
func Classify(topic string) (TopicKind, []string) {
	parts := strings.Split(topic, "/")
	switch {
	case len(parts) == 5 && parts[0] == "workshop" && parts[2] == "pit" && parts[4] == "sensors":
		return KindSensors, []string{parts[1], parts[3]}
	case len(parts) == 5 && parts[0] == "workshop" && parts[2] == "device" && parts[4] == "status":
		return KindStatus, []string{parts[1], parts[3]}
	case len(parts) == 3 && parts[0] == "provisioning" && parts[2] == "announce":
		return KindAnnounce, []string{parts[1]}
	default:
		return KindUnknown, nil
	}
}

// CommandTopic is where a device listens for runtime commands.
func CommandTopic(tenantID int64, deviceID string) string {
	return fmt.Sprintf("workshop/%d/device/%s/command", tenantID, deviceID)
}

// ConfigTopic is where a device receives its provisioning config.
func ConfigTopic(deviceID string) string {
	return fmt.Sprintf("provisioning/%s/config", deviceID)
}
