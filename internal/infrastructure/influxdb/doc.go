// Package influxdb is the telemetry history sink for Nodo Core.
//
// Every sensor reading and actuator state report the hub accepts is
// written here for long-term storage, via the influxdb-client-go v2
// non-blocking write API. Points batch in memory and flush on a timer
// (batch_size and flush_interval in config), so the hub loop never
// waits on the database; write failures come back asynchronously
// through the SetOnError callback.
//
// The integration is optional. When influxdb.enabled is false in
// config, Connect returns ErrDisabled and the hub runs without
// history.
package influxdb
