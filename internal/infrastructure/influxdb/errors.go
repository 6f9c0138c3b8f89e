package influxdb

import "errors"

// Sentinel errors, matched with errors.Is.
var (
	// ErrNotConnected is returned for operations after Close or before
	// a successful Connect.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps initial connection failures.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled means the integration is turned off in config. The
	// hub runs without telemetry history in that case.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
