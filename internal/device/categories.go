package device

import "sort"

// Device types and traits used by the built-in categories.
const (
	TypeLight      = "action.devices.types.LIGHT"
	TypeOutlet     = "action.devices.types.OUTLET"
	TypeSwitch     = "action.devices.types.SWITCH"
	TypeScene      = "action.devices.types.SCENE"
	TypeThermostat = "action.devices.types.THERMOSTAT"

	TraitOnOff              = "action.devices.traits.OnOff"
	TraitBrightness         = "action.devices.traits.Brightness"
	TraitColorSetting       = "action.devices.traits.ColorSetting"
	TraitScene              = "action.devices.traits.Scene"
	TraitTemperatureSetting = "action.devices.traits.TemperatureSetting"
)

// Category names of the built-in device builders.
const (
	CategoryLightOnOff     = "light-onoff"
	CategoryLightDimmable  = "light-dimmable"
	CategoryLightColorTemp = "light-colortemp"
	CategoryOutlet         = "outlet"
	CategorySwitch         = "switch"
	CategoryScene          = "scene"
	CategoryThermostat     = "thermostat"
)

const (
	deviceManufacturer = "Node-RED"
	deviceSWVersion    = "1.0"
	deviceHWVersion    = "1.0"
)

// Category describes how to build the record of one kind of device.
type Category struct {
	Name        string
	Type        string
	Traits      []string
	DefaultName string
	Model       string
	Attributes  map[string]any
	States      States
}

var categories = map[string]Category{
	CategoryLightOnOff: {
		Name:        CategoryLightOnOff,
		Type:        TypeLight,
		Traits:      []string{TraitOnOff},
		DefaultName: "Node-RED On/Off Light",
		Model:       "nr-light-onoff-v1",
		Attributes:  map[string]any{},
		States:      States{"online": true, "on": false},
	},
	CategoryLightDimmable: {
		Name:        CategoryLightDimmable,
		Type:        TypeLight,
		Traits:      []string{TraitOnOff, TraitBrightness},
		DefaultName: "Node-RED Dimmable Light",
		Model:       "nr-light-dimmable-v1",
		Attributes:  map[string]any{},
		States:      States{"online": true, "on": false, "brightness": float64(100)},
	},
	CategoryLightColorTemp: {
		Name:        CategoryLightColorTemp,
		Type:        TypeLight,
		Traits:      []string{TraitOnOff, TraitBrightness, TraitColorSetting},
		DefaultName: "Node-RED Color Temperature Light",
		Model:       "nr-light-colortemp-v1",
		Attributes: map[string]any{
			"colorTemperatureRange": map[string]any{
				"temperatureMinK": float64(2000),
				"temperatureMaxK": float64(6500),
			},
		},
		States: States{
			"online":     true,
			"on":         false,
			"brightness": float64(100),
			"color":      map[string]any{"temperatureK": float64(4000)},
		},
	},
	CategoryOutlet: {
		Name:        CategoryOutlet,
		Type:        TypeOutlet,
		Traits:      []string{TraitOnOff},
		DefaultName: "Node-RED Outlet",
		Model:       "nr-outlet-v1",
		Attributes:  map[string]any{},
		States:      States{"online": true, "on": false},
	},
	CategorySwitch: {
		Name:        CategorySwitch,
		Type:        TypeSwitch,
		Traits:      []string{TraitOnOff},
		DefaultName: "Node-RED Switch",
		Model:       "nr-switch-v1",
		Attributes:  map[string]any{},
		States:      States{"online": true, "on": false},
	},
	CategoryScene: {
		Name:        CategoryScene,
		Type:        TypeScene,
		Traits:      []string{TraitScene},
		DefaultName: "Node-RED Scene",
		Model:       "nr-scene-v1",
		Attributes:  map[string]any{"sceneReversible": true},
		States:      States{"online": true},
	},
	CategoryThermostat: {
		Name:        CategoryThermostat,
		Type:        TypeThermostat,
		Traits:      []string{TraitTemperatureSetting},
		DefaultName: "Node-RED Thermostat",
		Model:       "nr-thermostat-v1",
		Attributes: map[string]any{
			"availableThermostatModes":  []any{"off", "heat", "cool", "on"},
			"thermostatTemperatureUnit": "C",
		},
		States: States{
			"online":                        true,
			"thermostatMode":                "off",
			"thermostatTemperatureSetpoint": float64(20),
			"thermostatTemperatureAmbient":  float64(20),
		},
	},
}

// LookupCategory returns the built-in category with the given name.
func LookupCategory(name string) (Category, bool) {
	c, ok := categories[name]
	return c, ok
}

// CategoryNames returns the names of all built-in categories, sorted.
func CategoryNames() []string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Record builds the registration record of a device of this category.
// The device id is the owner's id; name is the user-facing device name.
// owner must not be nil.
func (c Category) Record(owner Owner, name string) Record {
	id := owner.ID()
	return Record{
		ID: id,
		Partial: Partial{
			Properties: Properties{
				"type":   c.Type,
				"traits": append([]string(nil), c.Traits...),
				"name": map[string]any{
					"defaultNames": []string{c.DefaultName},
					"name":         name,
				},
				"willReportState": true,
				"attributes":      deepCopyMap(c.Attributes),
				"deviceInfo": map[string]any{
					"manufacturer": deviceManufacturer,
					"model":        c.Model,
					"swVersion":    deviceSWVersion,
					"hwVersion":    deviceHWVersion,
				},
				"customData": map[string]any{
					"nodeid": id,
					"type":   c.Name,
				},
			},
			States: States(deepCopyMap(c.States)),
		},
	}
}

// NewDevice builds a device of the named category for owner and registers
// it. It returns false if the category is unknown or registration fails.
func (r *Registry) NewDevice(category string, owner Owner, name string) bool {
	c, ok := LookupCategory(category)
	if !ok {
		r.log().Warn("unknown device category", "category", category)
		return false
	}
	if owner == nil {
		return false
	}
	return r.Register(owner, c.Record(owner, name))
}

// NewLightOnOff registers an on/off light owned by owner.
func (r *Registry) NewLightOnOff(owner Owner, name string) bool {
	return r.NewDevice(CategoryLightOnOff, owner, name)
}
