package device

import (
	"errors"
	"testing"
)

func validLight() *Device {
	return &Device{
		ID:             "light-1",
		Name:           "Kitchen Light",
		Manufacturer:   "hue",
		CapabilityType: CapabilityLight,
		PropertyID:     "prop-1",
		Online:         StatusOnline,
		Capabilities:   []string{"turnOn", "turnOff", "setBrightness"},
		Light:          &LightInfo{On: true, Brightness: 75},
	}
}

func TestValidateAcceptsWellFormedDevices(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Device)
	}{
		{"light", func(*Device) {}},
		{"light with colour", func(d *Device) {
			d.Light.Color = &Color{Hue: 120, Saturation: 50, Brightness: 90}
		}},
		{"generic", func(d *Device) {
			d.CapabilityType = CapabilityGeneric
			d.Light = nil
		}},
		{"offline", func(d *Device) { d.Online = StatusOffline }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validLight()
			tt.mutate(d)
			if err := Validate(d); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestValidateRejectsMalformedDevices(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Device)
		wantErr error
	}{
		{"missing id", func(d *Device) { d.ID = "" }, ErrInvalidDevice},
		{"empty name", func(d *Device) { d.Name = "" }, ErrInvalidName},
		{"missing manufacturer", func(d *Device) { d.Manufacturer = "" }, ErrInvalidDevice},
		{"missing property", func(d *Device) { d.PropertyID = "" }, ErrInvalidDevice},
		{"bad capability type", func(d *Device) { d.CapabilityType = "toaster" }, ErrInvalidCapabilityType},
		{"bad online status", func(d *Device) { d.Online = "sleeping" }, ErrInvalidOnlineStatus},
		{"missing payload", func(d *Device) { d.Light = nil }, ErrPayloadMismatch},
		{"wrong payload", func(d *Device) {
			d.Light = nil
			d.Lock = &LockInfo{State: LockStateLocked}
		}, ErrPayloadMismatch},
		{"two payloads", func(d *Device) {
			d.Switch = &SwitchInfo{}
		}, ErrPayloadMismatch},
		{"generic with payload", func(d *Device) {
			d.CapabilityType = CapabilityGeneric
		}, ErrPayloadMismatch},
		{"brightness out of range", func(d *Device) { d.Light.Brightness = 150 }, ErrInvalidDevice},
		{"hue out of range", func(d *Device) {
			d.Light.Color = &Color{Hue: 400}
		}, ErrInvalidDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validLight()
			tt.mutate(d)
			if err := Validate(d); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateLockBattery(t *testing.T) {
	d := validLight()
	d.CapabilityType = CapabilityLock
	d.Light = nil
	d.Lock = &LockInfo{State: LockStateLocked, BatteryLevel: 120}

	if err := Validate(d); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Validate() error = %v, want ErrInvalidDevice", err)
	}
}
