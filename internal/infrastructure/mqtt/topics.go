package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "smarthome"

// Device topic actions, the last segment of {prefix}/device/{id}/{action}.
const (
	ActionSet     = "set"
	ActionExec    = "exec"
	ActionUpdated = "updated"
	ActionState   = "state"
)

// Topics builds the service's MQTT topics under a common prefix.
//
//	topics := mqtt.NewTopics("smarthome")
//	topics.DeviceSet("kitchen-light") // "smarthome/device/kitchen-light/set"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder for prefix, or DefaultTopicPrefix if
// prefix is empty. Trailing slashes are dropped.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

func (t Topics) device(id, action string) string {
	return fmt.Sprintf("%s/device/%s/%s", t.prefix, id, action)
}

// DeviceSet is the inbound topic carrying new states for a device.
func (t Topics) DeviceSet(id string) string { return t.device(id, ActionSet) }

// DeviceExec is the inbound topic carrying a partial update for a device.
func (t Topics) DeviceExec(id string) string { return t.device(id, ActionExec) }

// DeviceUpdated is the outbound topic on which a device's owner receives
// the full states after a notified change.
func (t Topics) DeviceUpdated(id string) string { return t.device(id, ActionUpdated) }

// DeviceState is the outbound retained topic with the latest state report.
func (t Topics) DeviceState(id string) string { return t.device(id, ActionState) }

// AllDeviceSets matches DeviceSet for every device.
func (t Topics) AllDeviceSets() string { return t.device("+", ActionSet) }

// AllDeviceExecs matches DeviceExec for every device.
func (t Topics) AllDeviceExecs() string { return t.device("+", ActionExec) }

// SystemStatus is the retained online/offline topic, also used for the LWT.
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// ParseDeviceTopic splits {prefix}/device/{id}/{action} into its device id
// and action.
func (t Topics) ParseDeviceTopic(topic string) (id, action string, err error) {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/device/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrNotDeviceTopic, topic)
	}
	idx := strings.LastIndex(rest, "/")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrNotDeviceTopic, topic)
	}
	return rest[:idx], rest[idx+1:], nil
}
