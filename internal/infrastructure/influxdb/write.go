package influxdb

import (
	"sort"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDeviceState is the measurement written by WriteDeviceState.
const MeasurementDeviceState = "device_state"

// WriteDeviceState records the numeric and boolean states of a device as
// one point tagged with device_id. Nested objects are flattened with dots
// (color.temperatureK); strings and lists are skipped. The write is
// non-blocking and batched.
func (c *Client) WriteDeviceState(deviceID string, states map[string]any, version uint64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := StateFields(states)
	if len(fields) == 0 {
		return
	}
	fields["version"] = int64(version) // #nosec G115 -- registry versions stay far below MaxInt64

	c.WritePoint(write.NewPoint(
		MeasurementDeviceState,
		map[string]string{"device_id": deviceID},
		fields,
		ts,
	))
}

// WritePoint writes a pre-built point.
func (c *Client) WritePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

// StateFields converts device states into InfluxDB fields.
func StateFields(states map[string]any) map[string]any {
	fields := make(map[string]any)
	flattenStates("", states, fields)
	return fields
}

func flattenStates(prefix string, states map[string]any, fields map[string]any) {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch v := states[k].(type) {
		case bool:
			fields[name] = v
		case float64:
			fields[name] = v
		case float32:
			fields[name] = float64(v)
		case int:
			fields[name] = float64(v)
		case int64:
			fields[name] = float64(v)
		case map[string]any:
			flattenStates(name, v, fields)
		}
	}
}
