package mqtt

import "fmt"

// Topic prefixes for the Dwellio MQTT namespace.
//
// State topics carry the canonical device state published after every
// change; event topics carry vendor webhook payloads relayed onto the
// bus for other consumers.
const (
	// TopicPrefix is the base for all Dwellio topics.
	TopicPrefix = "dwellio"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "dwellio/system"
)

// Topics provides builders for Dwellio MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("lock-front-door")
//	// Returns: "dwellio/state/lock-front-door"
type Topics struct{}

// DeviceState returns the canonical state topic for a device.
//
// Example: dwellio/state/lock-front-door
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// VendorEvents returns the topic vendor webhook events are relayed on.
//
// Example: dwellio/events/smartthings
func (Topics) VendorEvents(vendor string) string {
	return fmt.Sprintf("%s/events/%s", TopicPrefix, vendor)
}

// AuditTrail returns the topic audit entries are mirrored on.
//
// Example: dwellio/audit
func (Topics) AuditTrail() string {
	return fmt.Sprintf("%s/audit", TopicPrefix)
}

// SystemStatus returns the system status topic, also used for the LWT.
//
// Example: dwellio/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: dwellio/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: dwellio/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllVendorEvents returns a pattern matching every vendor event topic.
//
// Pattern: dwellio/events/+
func (Topics) AllVendorEvents() string {
	return fmt.Sprintf("%s/events/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Dwellio topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: dwellio/#
func (Topics) AllTopics() string {
	return "dwellio/#"
}
