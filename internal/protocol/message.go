package protocol

// Version is the protocol version this build speaks. Frames carrying a
// higher version are rejected with ErrUnsupportedVersion; lower versions
// are accepted for backward compatibility.
const Version uint8 = 1

// MsgType identifies the kind of protocol message.
type MsgType uint8

// Message types, matching the wire encoding in byte 1 of the frame.
const (
	MsgTelemetry  MsgType = 0
	MsgCommand    MsgType = 1
	MsgCommandAck MsgType = 2
	MsgHeartbeat  MsgType = 3
	MsgDiscovery  MsgType = 4
)

// maxMsgType is the highest message type this build understands.
const maxMsgType = MsgDiscovery

// String returns a human-readable name for the message type.
func (t MsgType) String() string {
	switch t {
	case MsgTelemetry:
		return "telemetry"
	case MsgCommand:
		return "command"
	case MsgCommandAck:
		return "command_ack"
	case MsgHeartbeat:
		return "heartbeat"
	case MsgDiscovery:
		return "discovery"
	default:
		return "unknown"
	}
}

// Message is a single protocol-level unit exchanged with a peripheral
// node. DeviceID is the source for inbound messages and the target for
// outbound ones. Sequence is a per-device monotonic counter used for
// ordering and de-duplication.
type Message struct {
	Version  uint8
	Type     MsgType
	DeviceID uint32
	Sequence uint32
	Payload  []byte
}
