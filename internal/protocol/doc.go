// Package protocol implements the Nodo Core wire codec.
//
// The codec translates between raw transport frames and typed messages
// exchanged with peripheral nodes. It sits above any radio transport:
// the transport collaborator handles physical framing and fragmentation,
// this package handles addressing, sequencing and payload schemas.
//
// # Wire Frame
//
//	byte 0       : version
//	byte 1       : msg_type (0=telemetry, 1=command, 2=command_ack,
//	                         3=heartbeat, 4=discovery)
//	bytes 2-5    : device_id (u32, big-endian)
//	bytes 6-9    : sequence (u32, big-endian)
//	bytes 10-11  : payload_length (u16, big-endian)
//	bytes 12..N  : payload (type-specific)
//
// # Key Types
//
//   - Message: a single protocol-level unit (frame header + raw payload)
//   - SensorReading / ActuatorState: telemetry payload variants
//   - Command / CommandAck: actuator command payloads
//   - Discovery: node announcement payload
//
// Payload schemas are a closed enumeration validated at decode time;
// there is no runtime type inspection downstream of the codec.
//
// # Usage
//
//	msg, err := protocol.DecodeFrame(raw)
//	if err != nil {
//	    // drop the frame, log, never fatal
//	}
//	switch msg.Type {
//	case protocol.MsgTelemetry:
//	    reading, err := protocol.DecodeSensorReading(msg.Payload)
//	    ...
//	}
//
// Encoding never fails for valid in-memory messages. All functions are
// pure transformations with no side effects.
package protocol
