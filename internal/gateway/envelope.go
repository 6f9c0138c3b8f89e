package gateway

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sigurn/crc16"

	"github.com/nodoproject/nodo-core/internal/syncbuf"
)

// Envelope layout constants.
const (
	// envelopeMagic marks the start of an event envelope ("NE").
	envelopeMagic uint16 = 0x454E

	// envelopeVersion is the current envelope format version.
	envelopeVersion uint8 = 1

	// headerSize is magic(2) + version(1) + reserved(1) + event_id(8) + body_len(4).
	headerSize = 16

	// trailerSize is the CRC-16 trailer.
	trailerSize = 2

	// maxBodySize bounds the JSON body. Events are small; anything
	// near this limit indicates corruption.
	maxBodySize = 64 * 1024
)

// Envelope decode errors, distinguishable with errors.Is.
var (
	ErrEnvelopeTooShort = errors.New("gateway: envelope too short")
	ErrBadMagic         = errors.New("gateway: bad envelope magic")
	ErrBadVersion       = errors.New("gateway: unsupported envelope version")
	ErrBodyTooLarge     = errors.New("gateway: envelope body too large")
	ErrLengthMismatch   = errors.New("gateway: envelope length mismatch")
	ErrIDMismatch       = errors.New("gateway: envelope id mismatch")
	ErrChecksum         = errors.New("gateway: envelope checksum mismatch")
)

var modbusTable = crc16.MakeTable(crc16.CRC16_MODBUS)

func crc16Modbus(data []byte) uint16 {
	return crc16.Checksum(data, modbusTable)
}

// EncodeEnvelope frames one sync buffer event for the gateway link.
// The event ID is duplicated in the header so the gateway can
// de-duplicate without parsing the body.
func EncodeEnvelope(ev syncbuf.Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal event %d: %w", ev.ID, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}

	buf := make([]byte, headerSize, headerSize+len(body)+trailerSize)
	binary.LittleEndian.PutUint16(buf[0:], envelopeMagic)
	buf[2] = envelopeVersion
	buf[3] = 0 // reserved
	binary.LittleEndian.PutUint64(buf[4:], ev.ID)
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(body)))

	buf = append(buf, body...)

	crc := crc16Modbus(buf)
	buf = append(buf, 0, 0)
	binary.LittleEndian.PutUint16(buf[len(buf)-trailerSize:], crc)

	return buf, nil
}

// DecodeEnvelope validates and unwraps an event envelope. Implemented
// here so tests can prove round-trip integrity; the production decoder
// lives on the gateway side of the link.
func DecodeEnvelope(data []byte) (syncbuf.Event, error) {
	if len(data) < headerSize+trailerSize {
		return syncbuf.Event{}, fmt.Errorf("%w: %d bytes", ErrEnvelopeTooShort, len(data))
	}

	if magic := binary.LittleEndian.Uint16(data[0:]); magic != envelopeMagic {
		return syncbuf.Event{}, fmt.Errorf("%w: 0x%04X", ErrBadMagic, magic)
	}
	if data[2] != envelopeVersion {
		return syncbuf.Event{}, fmt.Errorf("%w: %d", ErrBadVersion, data[2])
	}

	bodyLen := binary.LittleEndian.Uint32(data[12:])
	if bodyLen > maxBodySize {
		return syncbuf.Event{}, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, bodyLen)
	}
	if len(data) != headerSize+int(bodyLen)+trailerSize {
		return syncbuf.Event{}, fmt.Errorf("%w: header says %d, frame is %d",
			ErrLengthMismatch, headerSize+int(bodyLen)+trailerSize, len(data))
	}

	want := binary.LittleEndian.Uint16(data[len(data)-trailerSize:])
	got := crc16Modbus(data[:len(data)-trailerSize])
	if want != got {
		return syncbuf.Event{}, fmt.Errorf("%w: want 0x%04X, got 0x%04X", ErrChecksum, want, got)
	}

	var ev syncbuf.Event
	if err := json.Unmarshal(data[headerSize:len(data)-trailerSize], &ev); err != nil {
		return syncbuf.Event{}, fmt.Errorf("gateway: unmarshal event body: %w", err)
	}

	if headerID := binary.LittleEndian.Uint64(data[4:]); headerID != ev.ID {
		return syncbuf.Event{}, fmt.Errorf("%w: header id %d, body id %d",
			ErrIDMismatch, headerID, ev.ID)
	}

	return ev, nil
}
