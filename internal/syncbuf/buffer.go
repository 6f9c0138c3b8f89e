package syncbuf

import (
	"encoding/json"
	"time"
)

// Logger defines the logging interface used by the Buffer.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// EventKind classifies a buffered event for the gateway.
type EventKind string

// Event kinds produced by the hub.
const (
	KindTelemetry     EventKind = "telemetry"
	KindLinkState     EventKind = "link_state"
	KindDiscovery     EventKind = "discovery"
	KindCommandResult EventKind = "command_result"
	KindDeviceRemoved EventKind = "device_removed"
)

// Event is one entry queued for the gateway. IDs are local, monotonic
// and never reused, so the gateway can de-duplicate retransmissions
// after a partial drain.
type Event struct {
	ID        uint64          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      EventKind       `json:"kind"`
	DeviceID  uint32          `json:"device_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Buffer is the bounded FIFO of gateway-bound events.
//
// Not safe for concurrent use: the hub controller's event loop owns it
// and serialises all access. The gateway collaborator sees only the
// copies returned by Peek.
type Buffer struct {
	capacity int
	events   []Event
	nextID   uint64
	dropped  uint64
	logger   Logger
}

// New creates a buffer with the given capacity. firstID seeds the event
// ID counter; pass the persisted drain cursor plus one so IDs stay
// monotonic across hub restarts.
func New(capacity int, firstID uint64) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	if firstID == 0 {
		firstID = 1
	}
	return &Buffer{
		capacity: capacity,
		events:   make([]Event, 0, capacity),
		nextID:   firstID,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the buffer.
func (b *Buffer) SetLogger(logger Logger) {
	b.logger = logger
}

// Enqueue appends an event. It always succeeds: when the buffer is
// full, the oldest entry is evicted and counted as dropped. The policy
// loses history, never the ordering of what remains.
func (b *Buffer) Enqueue(kind EventKind, deviceID uint32, payload json.RawMessage, ts time.Time) Event {
	ev := Event{
		ID:        b.nextID,
		Timestamp: ts,
		Kind:      kind,
		DeviceID:  deviceID,
		Payload:   payload,
	}
	b.nextID++

	if len(b.events) >= b.capacity {
		evicted := b.events[0]
		b.events = append(b.events[:0], b.events[1:]...)
		b.dropped++
		b.logger.Warn("sync buffer full, oldest event dropped",
			"evicted_id", evicted.ID,
			"evicted_kind", evicted.Kind,
			"dropped_total", b.dropped,
		)
	}

	b.events = append(b.events, ev)
	return ev
}

// Peek returns copies of up to max events in enqueue order without
// removing them. max <= 0 returns everything.
func (b *Buffer) Peek(max int) []Event {
	if len(b.events) == 0 {
		return nil
	}
	if max <= 0 || max > len(b.events) {
		max = len(b.events)
	}
	out := make([]Event, max)
	copy(out, b.events[:max])
	return out
}

// Ack discards every buffered event with ID <= upTo, called once the
// gateway has confirmed receipt. Returns the number removed.
func (b *Buffer) Ack(upTo uint64) int {
	n := 0
	for n < len(b.events) && b.events[n].ID <= upTo {
		n++
	}
	if n == 0 {
		return 0
	}
	b.events = append(b.events[:0], b.events[n:]...)
	return n
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Dropped returns the number of events evicted since startup, exposed
// for observability.
func (b *Buffer) Dropped() uint64 {
	return b.dropped
}
