// Package gateway synchronises the hub with the upstream cloud gateway
// over MQTT.
//
// Three flows run through this package:
//
//   - Event drain: buffered hub events (telemetry, link transitions,
//     discoveries, command results, removals) are published in order to
//     nodo/gateway/events, one binary envelope per event, at QoS 1. The
//     hub's sync buffer is acknowledged only after the broker confirms
//     delivery, so a crash mid-drain retransmits rather than loses.
//     Event IDs are monotonic; the gateway de-duplicates replays.
//
//   - Snapshot: a message on nodo/gateway/snapshot/get triggers a full
//     device snapshot on nodo/gateway/snapshot/state. The gateway uses
//     this to resynchronise after its own restarts.
//
//   - Commands: requests on nodo/gateway/command are forwarded to the
//     hub dispatcher; terminal outcomes are published to
//     nodo/gateway/command/result.
//
// # Envelope
//
// Events cross the gateway link framed as:
//
//	magic(2) version(1) reserved(1) event_id(8) body_len(4) body crc(2)
//
// All integers little-endian. The body is the JSON event; the trailer
// is CRC-16/MODBUS over everything before it. The gateway rejects
// envelopes that fail any structural check, so a corrupt publish can
// never be half-applied upstream.
package gateway
