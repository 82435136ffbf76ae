// Package influxdb provides InfluxDB connectivity for Dwellio Core.
//
// It wraps the official influxdb-client-go v2 library with Dwellio-specific
// patterns for connection management, device telemetry writing, and health
// monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Device state history (lock states, brightness, temperatures)
//   - Scalar device telemetry (latency, battery trends)
//   - Sync and webhook processing statistics
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "dwellio",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record a device state snapshot
//	client.WriteDeviceState(dev)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are surfaced via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
