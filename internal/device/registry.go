package device

import (
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory catalogue of registered devices.
//
// It keeps one Status per device id, the Owner of every device, and a
// version counter that increases by one on every successful merge.
// Nothing is persisted; a new Registry is always empty.
//
// All public methods are thread-safe. Owner and Reporter callbacks run
// after the lock has been released, so they may call back into the
// registry. Notifications are delivered strictly in version order: while
// one goroutine is delivering, notified merges from other goroutines (or
// from inside a callback) are queued and delivered by that goroutine once
// the current callback returns.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]*Status
	owners    map[string]Owner
	reporters []Reporter
	version   uint64
	logger    Logger

	pending    []notice
	delivering bool
}

// notice is the owner and reporter delivery of one notified merge.
type notice struct {
	owner     Owner
	reporters []Reporter
	report    Report
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Status),
		owners:  make(map[string]Owner),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// AddReporter adds a sink that receives a Report after every notified
// merge. Reporters are called in the order they were added.
func (r *Registry) AddReporter(rep Reporter) {
	if rep == nil {
		return
	}
	r.mu.Lock()
	r.reporters = append(r.reporters, rep)
	r.mu.Unlock()
}

// Register adds a new device owned by owner.
//
// It returns false without changing anything if rec.ID is already
// registered or owner is nil. Otherwise the device starts with empty
// properties, states and execution states, the owner is stored under
// owner.ID(), and rec's fields are merged in without notifying anyone.
//
// owner must be usable: a nil pointer wrapped in the Owner interface is not
// detected and panics when its ID is read.
func (r *Registry) Register(owner Owner, rec Record) bool {
	log := r.log()
	if owner == nil {
		log.Warn("device registration rejected, no owner", "device_id", rec.ID)
		return false
	}
	ownerID := owner.ID()

	r.mu.Lock()
	if _, exists := r.devices[rec.ID]; exists {
		r.mu.Unlock()
		log.Debug("device already registered", "device_id", rec.ID)
		return false
	}

	st := &Status{
		States:          States{},
		Properties:      Properties{},
		ExecutionStates: ExecutionStates{},
	}
	r.devices[rec.ID] = st
	r.owners[ownerID] = owner
	applyPartial(st, rec.Partial)
	r.version++
	version := r.version
	r.mu.Unlock()

	if ownerID != rec.ID {
		log.Warn("owner id differs from device id", "device_id", rec.ID, "owner_id", ownerID)
	}
	log.Info("device registered", "device_id", rec.ID, "version", version)
	return true
}

// Merge applies a partial update to a registered device.
//
// Properties and states are merged key by key, a non-nil ExecutionStates
// replaces the stored list, and the version counter is incremented once.
// When notify is true the device's owner and all reporters are told about
// the new full states after the update is committed.
//
// If another goroutine is already delivering notifications, Merge queues its
// own behind them and returns without waiting for delivery.
//
// Merge returns false and changes nothing if the device is unknown, or if
// notify is true and no owner is stored for id.
func (r *Registry) Merge(id string, p Partial, notify bool) bool {
	log := r.log()

	r.mu.Lock()
	st, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		log.Debug("merge ignored, device not registered", "device_id", id)
		return false
	}
	owner, hasOwner := r.owners[id]
	if notify && !hasOwner {
		r.mu.Unlock()
		log.Error("merge rejected, no owner to notify", "device_id", id)
		return false
	}

	applyPartial(st, p)
	r.version++
	version := r.version

	drain := false
	if notify {
		r.pending = append(r.pending, notice{
			owner:     owner,
			reporters: append([]Reporter(nil), r.reporters...),
			report: Report{
				DeviceID: id,
				States:   States(deepCopyMap(st.States)),
				Version:  version,
				Time:     time.Now().UTC(),
			},
		})
		if !r.delivering {
			r.delivering = true
			drain = true
		}
	}
	r.mu.Unlock()

	log.Debug("device merged", "device_id", id, "version", version, "notify", notify)

	if drain {
		r.drain()
	}
	return true
}

// SetState merges states into a registered device and notifies its owner.
//
// Unknown ids are ignored.
func (r *Registry) SetState(id string, states States) {
	r.Merge(id, Partial{States: states}, true)
}

// drain delivers queued notices until the queue is empty. Only one
// goroutine drains at a time.
func (r *Registry) drain() {
	finished := false
	defer func() {
		if !finished {
			// A callback panicked. The next notified merge resumes delivery.
			r.mu.Lock()
			r.delivering = false
			r.mu.Unlock()
		}
	}()

	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.delivering = false
			r.mu.Unlock()
			finished = true
			return
		}
		n := r.pending[0]
		r.pending[0] = notice{}
		r.pending = r.pending[1:]
		r.mu.Unlock()

		n.deliver()
	}
}

func (n notice) deliver() {
	n.owner.Updated(States(deepCopyMap(n.report.States)))

	for _, rep := range n.reporters {
		rc := n.report
		rc.States = States(deepCopyMap(n.report.States))
		rep.ReportState(rc)
	}
}

// applyPartial merges p into st. The caller must hold the write lock.
func applyPartial(st *Status, p Partial) {
	for k, v := range p.Properties {
		st.Properties[k] = deepCopyValue(v)
	}
	for k, v := range p.States {
		st.States[k] = deepCopyValue(v)
	}
	if p.ExecutionStates != nil {
		st.ExecutionStates = ExecutionStates(deepCopySlice(p.ExecutionStates))
	}
}

// GetProperties returns the properties of the requested devices.
//
// A nil ids slice returns every registered device. Otherwise only ids that
// are registered appear in the result. The returned maps are deep copies.
func (r *Registry) GetProperties(ids []string) map[string]Properties {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ids == nil {
		out := make(map[string]Properties, len(r.devices))
		for id, st := range r.devices {
			out[id] = Properties(deepCopyMap(st.Properties))
		}
		return out
	}

	out := make(map[string]Properties, len(ids))
	for _, id := range ids {
		if st, ok := r.devices[id]; ok {
			out[id] = Properties(deepCopyMap(st.Properties))
		}
	}
	return out
}

// GetStatus returns the full stored record of the requested devices.
//
// ok is false when ids is empty; there is no "all devices" form. Unknown
// ids are skipped. The returned records are deep copies.
func (r *Registry) GetStatus(ids []string) (statuses map[string]Status, ok bool) {
	if len(ids) == 0 {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses = make(map[string]Status, len(ids))
	for _, id := range ids {
		if st, exists := r.devices[id]; exists {
			statuses[id] = st.deepCopy()
		}
	}
	return statuses, true
}

// GetStates returns the states of the requested devices.
//
// An empty ids slice returns every registered device. Unknown ids are
// skipped. The returned maps are deep copies.
func (r *Registry) GetStates(ids []string) map[string]States {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statesLocked(ids)
}

// Snapshot is GetStates together with the version the states were read at.
// Reports at or below that version may still be in delivery and are already
// reflected in the returned states.
func (r *Registry) Snapshot(ids []string) (map[string]States, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statesLocked(ids), r.version
}

func (r *Registry) statesLocked(ids []string) map[string]States {
	if len(ids) == 0 {
		out := make(map[string]States, len(r.devices))
		for id, st := range r.devices {
			out[id] = States(deepCopyMap(st.States))
		}
		return out
	}

	out := make(map[string]States, len(ids))
	for _, id := range ids {
		if st, ok := r.devices[id]; ok {
			out[id] = States(deepCopyMap(st.States))
		}
	}
	return out
}

// Version returns the number of successful merges so far.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// GetDeviceCount returns the number of registered devices.
func (r *Registry) GetDeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int            `json:"total_devices"`
	Online       int            `json:"online"`
	ByType       map[string]int `json:"by_type"`
	Version      uint64         `json:"version"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.devices),
		ByType:       make(map[string]int),
		Version:      r.version,
	}

	for _, st := range r.devices {
		if t, ok := st.Properties["type"].(string); ok {
			stats.ByType[t]++
		}
		if online, ok := st.States["online"].(bool); ok && online {
			stats.Online++
		}
	}

	return stats
}

func (r *Registry) log() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// GetDeviceIDs returns the ids carried by refs, in order. Nil entries and
// entries without an id are skipped.
func GetDeviceIDs(refs []*DeviceRef) []string {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == nil || ref.ID == "" {
			continue
		}
		ids = append(ids, ref.ID)
	}
	return ids
}
