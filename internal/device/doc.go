// Package device provides the in-memory smart-home device registry.
//
// The registry is the catalogue of devices exposed to the voice assistant.
// Each device has static properties (type, traits, names, device info,
// customData), mutable states and a list of execution states, and is owned
// by the component that registered it.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                         Device Registry                           │
//	│                                                                   │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌───────────────┐ │
//	│  │     Registry     │   │    Categories    │   │ State History │ │
//	│  │  (registry.go)   │◀──│ (categories.go)  │   │  (SQLite)     │ │
//	│  │ • Register/Merge │   │ • light-onoff    │   │ • audit trail │ │
//	│  │ • Queries        │   │ • outlet, scene… │   └───────▲───────┘ │
//	│  │ • Version        │   └──────────────────┘           │         │
//	│  └────────┬─────────┘                                   │         │
//	└───────────│─────────────────────────────────────────────│─────────┘
//	            │ notified merges                             │
//	            ▼                                             │
//	  Owner.Updated(states)  ──▶  Reporter.ReportState(report)┘
//	  (MQTT bridge, API)          (MQTT, InfluxDB, WebSocket, history)
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//	registry.AddReporter(hub)
//
//	owner := device.NewOwner("kitchen-light", func(s device.States) {
//	    // forward to the physical device
//	})
//	registry.NewLightOnOff(owner, "Kitchen Light")
//
//	registry.SetState("kitchen-light", device.States{"on": true})
//	states := registry.GetStates(nil)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Every merge is applied under a
// single write lock and queries return deep copies. Owner and reporter
// callbacks run after the lock is released, one notification at a time and
// in version order.
package device
