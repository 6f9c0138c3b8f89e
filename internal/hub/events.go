package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/nodoproject/nodo-core/internal/dispatch"
	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
	"github.com/nodoproject/nodo-core/internal/syncbuf"
)

// loopEvent is the closed set of inputs the controller loop handles.
type loopEvent interface{ isLoopEvent() }

type frameEvent struct {
	data []byte
}

type dispatchEvent struct {
	deviceID uint32
	channel  uint8
	mode     protocol.ActuatorMode
	value    uint8
	cb       dispatch.Callback
	reply    chan dispatchReply
}

type dispatchReply struct {
	commandID uuid.UUID
	err       error
}

type cancelEvent struct {
	commandID uuid.UUID
	reply     chan bool
}

type snapshotEvent struct {
	reply chan []registry.Device
}

type getDeviceEvent struct {
	deviceID uint32
	reply    chan getDeviceReply
}

type getDeviceReply struct {
	device registry.Device
	ok     bool
}

type removeEvent struct {
	deviceID uint32
	reply    chan error
}

type drainEvent struct {
	max   int
	reply chan []syncbuf.Event
}

type ackEventsEvent struct {
	upTo  uint64
	reply chan int
}

type statsEvent struct {
	reply chan Stats
}

func (frameEvent) isLoopEvent()     {}
func (dispatchEvent) isLoopEvent()  {}
func (cancelEvent) isLoopEvent()    {}
func (snapshotEvent) isLoopEvent()  {}
func (getDeviceEvent) isLoopEvent() {}
func (removeEvent) isLoopEvent()    {}
func (drainEvent) isLoopEvent()     {}
func (ackEventsEvent) isLoopEvent() {}
func (statsEvent) isLoopEvent()     {}

// Stats is a point-in-time copy of the controller's counters.
type Stats struct {
	Devices         int       `json:"devices"`
	PendingCommands int       `json:"pending_commands"`
	BufferedEvents  int       `json:"buffered_events"`
	DroppedEvents   uint64    `json:"dropped_events"`
	FramesIn        uint64    `json:"frames_in"`
	FramesOut       uint64    `json:"frames_out"`
	DecodeErrors    uint64    `json:"decode_errors"`
	StartedAt       time.Time `json:"started_at"`
}
