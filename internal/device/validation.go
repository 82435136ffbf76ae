package device

import (
	"fmt"

	"github.com/google/uuid"
)

// maxNameLength is the maximum allowed device name length.
const maxNameLength = 128

// GenerateID returns a new unique device identifier.
func GenerateID() string {
	return "dev-" + uuid.NewString()[:8]
}

// Validate checks a device for structural errors: required header fields,
// recognised enum values, and variant payload consistency.
func Validate(d *Device) error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDevice)
	}
	if d.Name == "" || len(d.Name) > maxNameLength {
		return ErrInvalidName
	}
	if d.Manufacturer == "" {
		return fmt.Errorf("%w: missing manufacturer", ErrInvalidDevice)
	}
	if d.PropertyID == "" {
		return fmt.Errorf("%w: missing property id", ErrInvalidDevice)
	}

	if !validCapabilityType(d.CapabilityType) {
		return fmt.Errorf("%w: %q", ErrInvalidCapabilityType, d.CapabilityType)
	}
	if !validOnlineStatus(d.Online) {
		return fmt.Errorf("%w: %q", ErrInvalidOnlineStatus, d.Online)
	}

	return validatePayload(d)
}

// validatePayload enforces the tagged-variant invariant: the payload
// pointer set on the device must be exactly the one its tag selects.
func validatePayload(d *Device) error {
	set := 0
	if d.Lock != nil {
		set++
	}
	if d.Light != nil {
		set++
	}
	if d.Thermostat != nil {
		set++
	}
	if d.Switch != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("%w: multiple payloads set", ErrPayloadMismatch)
	}

	switch d.CapabilityType {
	case CapabilityLock:
		if d.Lock == nil || set != 1 {
			return fmt.Errorf("%w: lock device requires lock payload", ErrPayloadMismatch)
		}
		if d.Lock.BatteryLevel < 0 || d.Lock.BatteryLevel > 100 {
			return fmt.Errorf("%w: battery level out of range", ErrInvalidDevice)
		}
	case CapabilityLight:
		if d.Light == nil || set != 1 {
			return fmt.Errorf("%w: light device requires light payload", ErrPayloadMismatch)
		}
		if d.Light.Brightness < 0 || d.Light.Brightness > 100 {
			return fmt.Errorf("%w: brightness out of range", ErrInvalidDevice)
		}
		if c := d.Light.Color; c != nil {
			if c.Hue < 0 || c.Hue > 360 || c.Saturation < 0 || c.Saturation > 100 || c.Brightness < 0 || c.Brightness > 100 {
				return fmt.Errorf("%w: colour out of range", ErrInvalidDevice)
			}
		}
	case CapabilityThermostat:
		if d.Thermostat == nil || set != 1 {
			return fmt.Errorf("%w: thermostat device requires thermostat payload", ErrPayloadMismatch)
		}
	case CapabilitySwitch:
		if d.Switch == nil || set != 1 {
			return fmt.Errorf("%w: switch device requires switch payload", ErrPayloadMismatch)
		}
	case CapabilityGeneric:
		if set != 0 {
			return fmt.Errorf("%w: generic device must not carry a payload", ErrPayloadMismatch)
		}
	}

	return nil
}

func validCapabilityType(t CapabilityType) bool {
	for _, v := range AllCapabilityTypes() {
		if t == v {
			return true
		}
	}
	return false
}

func validOnlineStatus(s OnlineStatus) bool {
	for _, v := range AllOnlineStatuses() {
		if s == v {
			return true
		}
	}
	return false
}
