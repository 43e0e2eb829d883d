package bridge

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/device"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/config"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of the MQTT client used by the bridge.
type MQTTClient interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Bridge.
type Options struct {
	Registry *device.Registry
	MQTT     MQTTClient
	Topics   mqtt.Topics
	QoS      byte
	Logger   Logger
}

// Bridge relays device commands and updates between MQTT and the registry.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	registry *device.Registry
	mqtt     MQTTClient
	topics   mqtt.Topics
	qos      byte
	logger   Logger

	mu      sync.Mutex
	started bool

	sets     atomic.Uint64
	execs    atomic.Uint64
	rejected atomic.Uint64
	updates  atomic.Uint64
}

// New creates a bridge. Registry and MQTT are required.
func New(opts Options) (*Bridge, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("bridge: registry is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("bridge: mqtt client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		registry: opts.Registry,
		mqtt:     opts.MQTT,
		topics:   opts.Topics,
		qos:      opts.QoS,
		logger:   logger,
	}, nil
}

// Start subscribes to the set and exec topics of all devices.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	if err := b.mqtt.Subscribe(b.topics.AllDeviceSets(), b.qos, b.handleSet); err != nil {
		return fmt.Errorf("subscribing to set topics: %w", err)
	}
	if err := b.mqtt.Subscribe(b.topics.AllDeviceExecs(), b.qos, b.handleExec); err != nil {
		//nolint:errcheck // best-effort rollback of the first subscription
		b.mqtt.Unsubscribe(b.topics.AllDeviceSets())
		return fmt.Errorf("subscribing to exec topics: %w", err)
	}

	b.started = true
	b.logger.Info("mqtt bridge started", "set", b.topics.AllDeviceSets(), "exec", b.topics.AllDeviceExecs())
	return nil
}

// Stop unsubscribes from the device topics.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	for _, topic := range []string{b.topics.AllDeviceSets(), b.topics.AllDeviceExecs()} {
		if err := b.mqtt.Unsubscribe(topic); err != nil {
			b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
	}
	b.started = false
}

// Owner returns a device owner with the given id that publishes every
// notified state change to the device's updated topic.
func (b *Bridge) Owner(id string) device.Owner {
	return device.NewOwner(id, func(states device.States) {
		msg := UpdatedMessage{DeviceID: id, States: states, Timestamp: time.Now().UTC()}
		if err := b.mqtt.PublishJSON(b.topics.DeviceUpdated(id), msg, false); err != nil {
			b.logger.Warn("publishing device update failed", "device_id", id, "error", err)
			return
		}
		b.updates.Add(1)
	})
}

// RegisterDevices registers the configured devices with bridge owners and
// returns how many were added. Devices that are already registered or use
// an unknown category are skipped and logged.
func (b *Bridge) RegisterDevices(devices []config.DeviceConfig) int {
	registered := 0
	for _, d := range devices {
		if !b.registry.NewDevice(d.Category, b.Owner(d.ID), d.Name) {
			b.logger.Warn("device not registered", "device_id", d.ID, "category", d.Category)
			continue
		}
		registered++
	}
	b.logger.Info("configured devices registered", "count", registered, "declared", len(devices))
	return registered
}

func (b *Bridge) handleSet(topic string, payload []byte) error {
	id, err := b.deviceID(topic, mqtt.ActionSet)
	if err != nil {
		return err
	}

	var states device.States
	if err := json.Unmarshal(payload, &states); err != nil {
		b.rejected.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, topic, err)
	}

	if !b.registry.Merge(id, device.Partial{States: states}, true) {
		b.rejected.Add(1)
		return b.mergeError(id)
	}
	b.sets.Add(1)
	b.logger.Debug("device state set over mqtt", "device_id", id)
	return nil
}

func (b *Bridge) handleExec(topic string, payload []byte) error {
	id, err := b.deviceID(topic, mqtt.ActionExec)
	if err != nil {
		return err
	}

	var msg ExecMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.rejected.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, topic, err)
	}

	if !b.registry.Merge(id, msg.Partial, msg.notify()) {
		b.rejected.Add(1)
		return b.mergeError(id)
	}
	b.execs.Add(1)
	b.logger.Debug("device merged over mqtt", "device_id", id, "notify", msg.notify())
	return nil
}

// mergeError tells an unknown device apart from a known device whose
// merge was refused because it has no owner to notify.
func (b *Bridge) mergeError(id string) error {
	statuses, _ := b.registry.GetStatus([]string{id}) //nolint:errcheck // ids is non-empty
	if _, ok := statuses[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return fmt.Errorf("%w: %s", ErrMergeRejected, id)
}

func (b *Bridge) deviceID(topic, want string) (string, error) {
	id, action, err := b.topics.ParseDeviceTopic(topic)
	if err != nil {
		b.rejected.Add(1)
		return "", err
	}
	if action != want {
		b.rejected.Add(1)
		return "", fmt.Errorf("%w: %s", mqtt.ErrNotDeviceTopic, topic)
	}
	return id, nil
}

// Metrics holds message counters of a bridge.
type Metrics struct {
	SetsHandled      uint64 `json:"sets_handled"`
	ExecsHandled     uint64 `json:"execs_handled"`
	MessagesRejected uint64 `json:"messages_rejected"`
	UpdatesPublished uint64 `json:"updates_published"`
}

// GetMetrics returns the current counters.
func (b *Bridge) GetMetrics() Metrics {
	return Metrics{
		SetsHandled:      b.sets.Load(),
		ExecsHandled:     b.execs.Load(),
		MessagesRejected: b.rejected.Load(),
		UpdatesPublished: b.updates.Load(),
	}
}
