package device

import "time"

// Device represents a controllable smart-home device normalized from a
// vendor platform.
//
// The model is a tagged variant: CapabilityType selects which payload
// pointer (Lock, Light, Thermostat, Switch) is populated. Generic devices
// carry no payload. CapabilityType is immutable after creation; only the
// payload, Attributes, Online and LastSeen change over a device's lifetime.
type Device struct {
	// Identity. ID is stable across vendors.
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`

	// Classification tag.
	CapabilityType CapabilityType `json:"capability_type"`

	// Location within the portfolio hierarchy. Property/unit/room records
	// are owned by the CRUD backend; only their identifiers appear here.
	PropertyID string  `json:"property_id"`
	UnitID     *string `json:"unit_id,omitempty"`
	RoomID     *string `json:"room_id,omitempty"`

	// Connectivity.
	Online   OnlineStatus `json:"online_status"`
	LastSeen *time.Time   `json:"last_seen,omitempty"`

	// Capabilities lists the command verbs this device accepts, in the
	// order the vendor reported them.
	Capabilities []string `json:"capabilities"`

	// Attributes holds vendor-specific key/value extensions.
	Attributes Attributes `json:"attributes,omitempty"`

	// Variant payloads. Exactly the one matching CapabilityType is set.
	Lock       *LockInfo       `json:"lock,omitempty"`
	Light      *LightInfo      `json:"light,omitempty"`
	Thermostat *ThermostatInfo `json:"thermostat,omitempty"`
	Switch     *SwitchInfo     `json:"switch,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attributes holds vendor-specific device attributes as a JSON map.
type Attributes map[string]any

// CapabilityType is the variant tag for a device.
type CapabilityType string

// CapabilityType constants.
const (
	CapabilityLock       CapabilityType = "lock"
	CapabilityLight      CapabilityType = "light"
	CapabilityThermostat CapabilityType = "thermostat"
	CapabilitySwitch     CapabilityType = "switch"
	CapabilityGeneric    CapabilityType = "generic"
)

// AllCapabilityTypes returns all valid capability type values.
func AllCapabilityTypes() []CapabilityType {
	return []CapabilityType{
		CapabilityLock, CapabilityLight, CapabilityThermostat,
		CapabilitySwitch, CapabilityGeneric,
	}
}

// OnlineStatus represents device connectivity as reported by the vendor.
type OnlineStatus string

// OnlineStatus constants.
const (
	StatusOnline  OnlineStatus = "online"
	StatusOffline OnlineStatus = "offline"
	StatusError   OnlineStatus = "error"
)

// AllOnlineStatuses returns all valid online status values.
func AllOnlineStatuses() []OnlineStatus {
	return []OnlineStatus{StatusOnline, StatusOffline, StatusError}
}

// LockState represents the physical state of a lock.
type LockState string

// LockState constants.
const (
	LockStateLocked   LockState = "locked"
	LockStateUnlocked LockState = "unlocked"
	LockStateJammed   LockState = "jammed"
	LockStateUnknown  LockState = "unknown"
)

// LockInfo is the variant payload for lock devices.
type LockInfo struct {
	State        LockState      `json:"state"`
	BatteryLevel int            `json:"battery_level"` // 0-100
	History      []AccessRecord `json:"access_history,omitempty"`
}

// AccessRecord is one entry in a lock's append-only access history.
type AccessRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	Operation     string    `json:"operation"` // lock, unlock
	UserID        string    `json:"user_id"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// ThermostatMode represents a thermostat operating mode.
type ThermostatMode string

// ThermostatMode constants.
const (
	ModeHeat ThermostatMode = "heat"
	ModeCool ThermostatMode = "cool"
	ModeAuto ThermostatMode = "auto"
	ModeOff  ThermostatMode = "off"
	ModeEco  ThermostatMode = "eco"
)

// AllThermostatModes returns all valid thermostat modes.
func AllThermostatModes() []ThermostatMode {
	return []ThermostatMode{ModeHeat, ModeCool, ModeAuto, ModeOff, ModeEco}
}

// ThermostatInfo is the variant payload for thermostat devices.
type ThermostatInfo struct {
	CurrentTemperature float64        `json:"current_temperature"`
	TargetTemperature  float64        `json:"target_temperature"`
	Mode               ThermostatMode `json:"mode"`
	IsHeating          bool           `json:"is_heating"`
	IsCooling          bool           `json:"is_cooling"`
	IsFanRunning       bool           `json:"is_fan_running"`
}

// Color holds HSB colour for lights that support it.
type Color struct {
	Hue        float64 `json:"hue"`        // 0-360
	Saturation float64 `json:"saturation"` // 0-100
	Brightness float64 `json:"brightness"` // 0-100
}

// LightInfo is the variant payload for light devices.
type LightInfo struct {
	On         bool   `json:"on"`
	Brightness int    `json:"brightness"` // 0-100
	Color      *Color `json:"color,omitempty"`
}

// SwitchInfo is the variant payload for switch devices.
type SwitchInfo struct {
	On bool `json:"on"`
}

// Command is a request to change device state, constrained to the target
// device's declared capabilities.
type Command struct {
	Name       string         `json:"name"` // verb, e.g. "lock", "setBrightness"
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Supports reports whether the device's declared capabilities include the
// given command verb.
func (d *Device) Supports(command string) bool {
	for _, c := range d.Capabilities {
		if c == command {
			return true
		}
	}
	return false
}

// AppendAccessRecord appends an entry to a lock's access history.
// It is a no-op for non-lock devices.
func (d *Device) AppendAccessRecord(rec AccessRecord) {
	if d.Lock == nil {
		return
	}
	d.Lock.History = append(d.Lock.History, rec)
}

// Payload returns the active variant payload for serialization keyed on
// the capability type tag. Generic devices return nil.
func (d *Device) Payload() any {
	switch d.CapabilityType {
	case CapabilityLock:
		return d.Lock
	case CapabilityLight:
		return d.Light
	case CapabilityThermostat:
		return d.Thermostat
	case CapabilitySwitch:
		return d.Switch
	default:
		return nil
	}
}

// DeepCopy creates a complete independent copy of the Device.
// All map, slice and payload fields are cloned so modifications to the
// copy do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // shallow copy of value fields

	cpy.Attributes = deepCopyMap(d.Attributes)

	if d.Capabilities != nil {
		cpy.Capabilities = make([]string, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	if d.Lock != nil {
		lock := *d.Lock
		if d.Lock.History != nil {
			lock.History = make([]AccessRecord, len(d.Lock.History))
			copy(lock.History, d.Lock.History)
		}
		cpy.Lock = &lock
	}
	if d.Light != nil {
		light := *d.Light
		if d.Light.Color != nil {
			colour := *d.Light.Color
			light.Color = &colour
		}
		cpy.Light = &light
	}
	if d.Thermostat != nil {
		thermo := *d.Thermostat
		cpy.Thermostat = &thermo
	}
	if d.Switch != nil {
		sw := *d.Switch
		cpy.Switch = &sw
	}

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
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

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
