package bridge

import (
	"time"

	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/device"
)

// UpdatedMessage is published on the updated topic after a notified change.
type UpdatedMessage struct {
	DeviceID  string        `json:"device_id"`
	States    device.States `json:"states"`
	Timestamp time.Time     `json:"timestamp"`
}

// ExecMessage is the payload of an exec topic. Notify defaults to true.
type ExecMessage struct {
	device.Partial
	Notify *bool `json:"notify,omitempty"`
}

func (m ExecMessage) notify() bool {
	return m.Notify == nil || *m.Notify
}
