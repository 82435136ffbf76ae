package influxdb

import "errors"

// Telemetry sentinels, matched with errors.Is. Write failures mostly
// surface asynchronously through the SetOnError callback instead,
// because the write path is non-blocking.
var (
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")
)
