package device

import "time"

// Properties holds the static description of a device: its type, traits,
// names, attributes, device info and customData. Keys are free-form.
type Properties map[string]any

// States holds the mutable runtime state of a device (online, on,
// brightness, and so on). Keys are free-form.
type States map[string]any

// ExecutionStates is an opaque list of execution results kept alongside a
// device. It is always replaced as a whole, never merged.
type ExecutionStates []any

// Partial is a partial update of a device record.
//
// A nil field is absent and leaves the stored value untouched. Properties
// and States are merged key by key. A non-nil ExecutionStates replaces the
// stored list, even when it is empty.
type Partial struct {
	Properties      Properties      `json:"properties,omitempty"`
	States          States          `json:"states,omitempty"`
	ExecutionStates ExecutionStates `json:"executionStates"`
}

// Record is a device record built by a device owner for registration.
//
// The embedded Partial is flattened when encoded as JSON, so a record looks
// like {"id": ..., "properties": ..., "states": ...}.
type Record struct {
	ID string `json:"id"`
	Partial
}

// Status is the full stored record of a registered device.
//
// All three fields are non-nil for a registered device.
type Status struct {
	States          States          `json:"states"`
	Properties      Properties      `json:"properties"`
	ExecutionStates ExecutionStates `json:"executionStates"`
}

// DeviceRef references a device inside a request payload. Entries without
// an ID are ignored by GetDeviceIDs.
type DeviceRef struct {
	ID         string         `json:"id,omitempty"`
	CustomData map[string]any `json:"customData,omitempty"`
}

// Report describes a state change after a notified merge.
type Report struct {
	DeviceID string    `json:"device_id"`
	States   States    `json:"states"`
	Version  uint64    `json:"version"`
	Time     time.Time `json:"timestamp"`
}

// Owner is the handle of the component that registered a device. The
// registry calls Updated with the device's full states after every
// notified merge.
type Owner interface {
	ID() string
	Updated(states States)
}

// Reporter receives a Report after every notified merge.
type Reporter interface {
	ReportState(report Report)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Report)

// ReportState calls f(report).
func (f ReporterFunc) ReportState(report Report) {
	f(report)
}

type funcOwner struct {
	id string
	fn func(States)
}

func (o funcOwner) ID() string { return o.id }

func (o funcOwner) Updated(states States) {
	if o.fn != nil {
		o.fn(states)
	}
}

// NewOwner returns an Owner with the given id that forwards notifications
// to fn. A nil fn is allowed and discards notifications.
func NewOwner(id string, fn func(States)) Owner {
	return funcOwner{id: id, fn: fn}
}

// deepCopy returns a fully independent copy of the status.
func (s *Status) deepCopy() Status {
	return Status{
		States:          States(deepCopyMap(s.States)),
		Properties:      Properties(deepCopyMap(s.Properties)),
		ExecutionStates: ExecutionStates(deepCopySlice(s.ExecutionStates)),
	}
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopySlice(s []any) []any {
	if s == nil {
		return nil
	}
	cpy := make([]any, len(s))
	for i, elem := range s {
		cpy[i] = deepCopyValue(elem)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return deepCopyMap(val)
	case Properties:
		return Properties(deepCopyMap(val))
	case States:
		return States(deepCopyMap(val))
	case []any:
		return deepCopySlice(val)
	case ExecutionStates:
		return ExecutionStates(deepCopySlice(val))
	case []string:
		cpy := make([]string, len(val))
		copy(cpy, val)
		return cpy
	case map[string]string:
		cpy := make(map[string]string, len(val))
		for k, s := range val {
			cpy[k] = s
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}
