// Package logging is the structured logging setup for Nodo Core.
//
// It is a thin layer over log/slog: config selects the format (JSON
// for machines, text for a terminal), the destination and the level,
// and every entry carries the service name and version. Components
// take the subset of the Logger interface they need and tag themselves
// via With:
//
//	log := logging.New(cfg.Logging, version)
//	bridgeLog := log.With("component", "radio")
//	bridgeLog.Info("bridge started", "topic", topic)
//
// Never log secrets: broker passwords, InfluxDB tokens and API keys
// stay out of log attributes.
package logging
