package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mbegale/dwellio-core/internal/device"
)

// WriteDeviceState records a snapshot of a device's reported state.
//
// This is the primary telemetry path: the state sync engine calls it after
// every accepted state change, giving a queryable history of lock states,
// brightness levels and temperatures per device. The write is non-blocking;
// points are batched and sent asynchronously.
//
// Tags carry the low-cardinality identity (device, vendor, capability,
// property) and fields carry the variant payload values.
func (c *Client) WriteDeviceState(d *device.Device) {
	if d == nil || !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id":       d.ID,
		"manufacturer":    d.Manufacturer,
		"capability_type": string(d.CapabilityType),
		"property_id":     d.PropertyID,
	}
	if d.UnitID != nil {
		tags["unit_id"] = *d.UnitID
	}

	fields := map[string]interface{}{
		"online": d.Online == device.StatusOnline,
	}

	switch {
	case d.Lock != nil:
		fields["lock_state"] = string(d.Lock.State)
		fields["battery_level"] = d.Lock.BatteryLevel
	case d.Light != nil:
		fields["on"] = d.Light.On
		fields["brightness"] = d.Light.Brightness
		if d.Light.Color != nil {
			fields["hue"] = d.Light.Color.Hue
			fields["saturation"] = d.Light.Color.Saturation
		}
	case d.Thermostat != nil:
		fields["current_temperature"] = d.Thermostat.CurrentTemperature
		fields["target_temperature"] = d.Thermostat.TargetTemperature
		fields["mode"] = string(d.Thermostat.Mode)
		fields["is_heating"] = d.Thermostat.IsHeating
		fields["is_cooling"] = d.Thermostat.IsCooling
	case d.Switch != nil:
		fields["on"] = d.Switch.On
	}

	point := write.NewPoint("device_state", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteDeviceMetric writes a single named device measurement.
//
// Use for scalar telemetry that does not belong to the variant payload,
// such as vendor round-trip latency or webhook event counts.
//
// Example:
//
//	client.WriteDeviceMetric("thermostat-01", "vendor_latency_ms", 412)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("sync_stats",
//	    map[string]string{"vendor": "smartthings"},
//	    map[string]interface{}{"polled": 42, "failed": 1})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now", such as replayed vendor events
// that carry their own occurrence time.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
