package report

import (
	"context"
	"time"

	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/device"
)

// defaultHistoryTimeout bounds a single audit trail write.
const defaultHistoryTimeout = 5 * time.Second

// Logger is the logging interface used by the reporters.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// Publisher is the subset of the MQTT client used by MQTTPublisher.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// TopicFunc returns the topic a device's state is published to.
type TopicFunc func(deviceID string) string

// MQTTPublisher publishes each report as retained JSON.
type MQTTPublisher struct {
	pub    Publisher
	topic  TopicFunc
	logger Logger
}

// NewMQTTPublisher creates a reporter publishing to topic(deviceID).
func NewMQTTPublisher(pub Publisher, topic TopicFunc, logger Logger) *MQTTPublisher {
	return &MQTTPublisher{pub: pub, topic: topic, logger: orNoop(logger)}
}

// ReportState implements device.Reporter.
func (p *MQTTPublisher) ReportState(r device.Report) {
	topic := p.topic(r.DeviceID)
	if err := p.pub.PublishJSON(topic, r, true); err != nil {
		p.logger.Warn("state publish failed", "device_id", r.DeviceID, "topic", topic, "error", err)
	}
}

// MetricWriter is the subset of the InfluxDB client used by Telemetry.
type MetricWriter interface {
	WriteDeviceState(deviceID string, states map[string]any, version uint64, ts time.Time)
}

// Telemetry forwards each report to a time-series writer.
type Telemetry struct {
	w MetricWriter
}

// NewTelemetry creates a telemetry reporter.
func NewTelemetry(w MetricWriter) *Telemetry {
	return &Telemetry{w: w}
}

// ReportState implements device.Reporter.
func (t *Telemetry) ReportState(r device.Report) {
	t.w.WriteDeviceState(r.DeviceID, r.States, r.Version, r.Time)
}

// History records each report in the state history repository.
type History struct {
	repo    device.StateHistoryRepository
	timeout time.Duration
	logger  Logger
}

// NewHistory creates an audit trail reporter. A non-positive timeout uses
// the default of five seconds.
func NewHistory(repo device.StateHistoryRepository, timeout time.Duration, logger Logger) *History {
	if timeout <= 0 {
		timeout = defaultHistoryTimeout
	}
	return &History{repo: repo, timeout: timeout, logger: orNoop(logger)}
}

// ReportState implements device.Reporter.
func (h *History) ReportState(r device.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.repo.RecordStateChange(ctx, r.DeviceID, r.States, r.Version); err != nil {
		h.logger.Warn("state history write failed", "device_id", r.DeviceID, "error", err)
		return
	}
	h.logger.Debug("state history recorded", "device_id", r.DeviceID, "version", r.Version)
}
