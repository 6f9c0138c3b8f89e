package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame layout offsets and sizes.
const (
	// headerSize is the fixed frame header length preceding the payload.
	headerSize = 12

	offVersion    = 0
	offMsgType    = 1
	offDeviceID   = 2
	offSequence   = 6
	offPayloadLen = 10

	// maxPayloadSize is bounded by the u16 payload_length field.
	maxPayloadSize = math.MaxUint16
)

// EncodeFrame encodes a message into its wire frame.
//
// Encoding never fails for valid in-memory messages. A payload longer
// than the u16 length field allows is a programming error: the typed
// encoders in this package never exceed the limit, so EncodeFrame
// panics rather than silently truncating on the wire.
func EncodeFrame(msg Message) []byte {
	payload := msg.Payload
	if len(payload) > maxPayloadSize {
		panic(fmt.Sprintf("protocol: payload %d bytes exceeds frame limit %d", len(payload), maxPayloadSize))
	}

	buf := make([]byte, headerSize+len(payload))
	buf[offVersion] = msg.Version
	buf[offMsgType] = byte(msg.Type)
	binary.BigEndian.PutUint32(buf[offDeviceID:], msg.DeviceID)
	binary.BigEndian.PutUint32(buf[offSequence:], msg.Sequence)
	binary.BigEndian.PutUint16(buf[offPayloadLen:], uint16(len(payload)))
	copy(buf[headerSize:], payload)
	return buf
}

// DecodeFrame parses a raw wire frame into a Message.
//
// Failure modes:
//   - ErrMalformedFrame: input shorter than the header, or the declared
//     payload_length does not match the bytes present
//   - ErrUnsupportedVersion: frame version exceeds Version
//   - ErrUnknownType: msg_type outside the closed enumeration
//   - ErrPayloadMismatch: payload does not satisfy the structural
//     minimum for its msg_type (full schema validation against the
//     device type happens in the typed payload decoders)
//
// The returned payload is a copy; the caller may retain it after the
// transport reuses its read buffer.
func DecodeFrame(data []byte) (Message, error) {
	if len(data) < headerSize {
		return Message{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedFrame, len(data), headerSize)
	}

	version := data[offVersion]
	if version > Version {
		return Message{}, fmt.Errorf("%w: %d (max %d)", ErrUnsupportedVersion, version, Version)
	}

	msgType := MsgType(data[offMsgType])
	if msgType > maxMsgType {
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownType, data[offMsgType])
	}

	declared := int(binary.BigEndian.Uint16(data[offPayloadLen:]))
	if declared != len(data)-headerSize {
		return Message{}, fmt.Errorf("%w: payload_length %d, %d bytes present",
			ErrMalformedFrame, declared, len(data)-headerSize)
	}

	var payload []byte
	if declared > 0 {
		payload = make([]byte, declared)
		copy(payload, data[headerSize:])
	}

	msg := Message{
		Version:  version,
		Type:     msgType,
		DeviceID: binary.BigEndian.Uint32(data[offDeviceID:]),
		Sequence: binary.BigEndian.Uint32(data[offSequence:]),
		Payload:  payload,
	}

	if err := checkPayloadShape(msg.Type, payload); err != nil {
		return Message{}, err
	}

	return msg, nil
}

// checkPayloadShape enforces the structural minimum for each message
// type. It catches frames that are well-formed at the header level but
// cannot possibly carry a valid payload for their declared type.
func checkPayloadShape(t MsgType, payload []byte) error {
	switch t {
	case MsgTelemetry:
		// Sensor readings and actuator state reports have different
		// lengths; both are at least the actuator report size.
		if len(payload) < actuatorStateSize {
			return fmt.Errorf("%w: telemetry payload %d bytes", ErrPayloadMismatch, len(payload))
		}
	case MsgCommand:
		if len(payload) != commandSize {
			return fmt.Errorf("%w: command payload %d bytes, want %d", ErrPayloadMismatch, len(payload), commandSize)
		}
	case MsgCommandAck:
		if len(payload) != commandAckSize {
			return fmt.Errorf("%w: command_ack payload %d bytes, want %d", ErrPayloadMismatch, len(payload), commandAckSize)
		}
	case MsgHeartbeat:
		// Empty, or a single battery-percent byte.
		if len(payload) > 1 {
			return fmt.Errorf("%w: heartbeat payload %d bytes", ErrPayloadMismatch, len(payload))
		}
	case MsgDiscovery:
		if len(payload) < 1 {
			return fmt.Errorf("%w: discovery payload empty", ErrPayloadMismatch)
		}
	}
	return nil
}
