package protocol

import "errors"

// Decode errors for the protocol package.
//
// All decode failures are locally recoverable: the caller drops the
// frame and logs. Check with errors.Is():
//
//	if errors.Is(err, protocol.ErrMalformedFrame) {
//	    // truncated or corrupt input
//	}
var (
	// ErrMalformedFrame is returned for truncated or corrupt input.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrUnsupportedVersion is returned when the frame version exceeds
	// what this build understands.
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")

	// ErrUnknownType is returned for an unrecognised msg_type.
	ErrUnknownType = errors.New("protocol: unknown message type")

	// ErrPayloadMismatch is returned when the payload shape does not
	// match the schema declared for the device type.
	ErrPayloadMismatch = errors.New("protocol: payload mismatch")
)
