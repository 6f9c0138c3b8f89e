package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
)

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds the retry policy.
type Config struct {
	// RetryBase is the first retransmission delay; each further
	// retransmission doubles it.
	RetryBase time.Duration

	// MaxAttempts is the total number of transmissions (the initial
	// send included) before a command fails with ErrCommandTimeout.
	MaxAttempts int
}

// Result reports the final outcome of a dispatched command. Err is nil
// when the node acknowledged successfully.
type Result struct {
	CommandID uuid.UUID
	DeviceID  uint32
	Err       error
}

// Callback receives the final outcome of a command. It runs on the hub
// loop goroutine and must not block.
type Callback func(Result)

// PendingCommand is an outstanding dispatcher request.
type PendingCommand struct {
	CommandID  uuid.UUID `json:"command_id"`
	DeviceID   uint32    `json:"device_id"`
	SentAt     time.Time `json:"sent_at"`
	RetryCount int       `json:"retry_count"`

	frame    []byte // encoded wire frame, reused verbatim on retry
	deadline time.Time
	attempts int
	cb       Callback
}

// Resend is a frame the hub must retransmit after a retry deadline.
type Resend struct {
	DeviceID uint32
	Frame    []byte
}

// Dispatcher tracks pending commands for the hub.
//
// Not safe for concurrent use: owned exclusively by the hub controller
// event loop.
type Dispatcher struct {
	cfg     Config
	reg     *registry.Registry
	pending map[uuid.UUID]*PendingCommand
	nextSeq map[uint32]uint32
	logger  Logger
}

// NewDispatcher creates a dispatcher bound to the hub's registry.
func NewDispatcher(cfg Config, reg *registry.Registry) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Dispatcher{
		cfg:     cfg,
		reg:     reg,
		pending: make(map[uuid.UUID]*PendingCommand),
		nextSeq: make(map[uint32]uint32),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Dispatch registers a pending command for an active actuator device
// and returns the command ID together with the encoded frame the hub
// must emit.
//
// It fails immediately with registry.ErrDeviceUnknown for devices
// absent from the registry, ErrLinkNotReady when the device's link is
// not active, and ErrNotActuator for sensor-class targets. No frame is
// emitted on any failure path.
func (d *Dispatcher) Dispatch(deviceID uint32, channel uint8, mode protocol.ActuatorMode, value uint8, now time.Time, cb Callback) (uuid.UUID, []byte, error) {
	dev, ok := d.reg.Get(deviceID)
	if !ok {
		return uuid.Nil, nil, fmt.Errorf("%w: id %d", registry.ErrDeviceUnknown, deviceID)
	}
	if dev.Class != protocol.ClassActuator {
		return uuid.Nil, nil, fmt.Errorf("%w: id %d is %s", ErrNotActuator, deviceID, dev.Class)
	}
	if dev.LinkState != registry.LinkActive {
		return uuid.Nil, nil, fmt.Errorf("%w: id %d is %s", ErrLinkNotReady, deviceID, dev.LinkState)
	}

	commandID := uuid.New()
	frame := protocol.EncodeFrame(protocol.Message{
		Version:  protocol.Version,
		Type:     protocol.MsgCommand,
		DeviceID: deviceID,
		Sequence: d.bumpSeq(deviceID),
		Payload: protocol.EncodeCommand(protocol.Command{
			CommandID: commandID,
			Channel:   channel,
			Mode:      mode,
			Value:     value,
		}),
	})

	d.pending[commandID] = &PendingCommand{
		CommandID: commandID,
		DeviceID:  deviceID,
		SentAt:    now,
		frame:     frame,
		deadline:  now.Add(d.cfg.RetryBase),
		attempts:  1,
		cb:        cb,
	}

	d.logger.Debug("command dispatched",
		"command_id", commandID,
		"device_id", deviceID,
		"channel", channel,
		"mode", mode.String(),
		"value", value,
	)
	return commandID, frame, nil
}

// Ack resolves a pending command from a node acknowledgement. Unmatched
// acks (already resolved, cancelled, or duplicates of the node's re-ack
// after a retransmission) are ignored and reported as false.
func (d *Dispatcher) Ack(ack protocol.CommandAck) bool {
	pc, ok := d.pending[ack.CommandID]
	if !ok {
		return false
	}
	delete(d.pending, ack.CommandID)

	var err error
	if !ack.Applied() {
		err = fmt.Errorf("%w: status %d", ErrCommandRejected, ack.Status)
	}
	d.logger.Debug("command acknowledged",
		"command_id", ack.CommandID,
		"device_id", pc.DeviceID,
		"status", ack.Status,
	)
	d.complete(pc, err)
	return true
}

// Cancel removes a pending command and suppresses its remaining
// retries. It does not recall a frame already handed to the transport,
// and it does not invoke the completion callback: the caller asked for
// the outcome to be abandoned.
func (d *Dispatcher) Cancel(commandID uuid.UUID) bool {
	pc, ok := d.pending[commandID]
	if !ok {
		return false
	}
	delete(d.pending, commandID)
	d.logger.Debug("command cancelled", "command_id", commandID, "device_id", pc.DeviceID)
	return true
}

// Expire applies every retry deadline due at or before now. Commands
// with transmission budget left are scheduled for retransmission with
// exponentially grown deadlines; exhausted ones fail with
// ErrCommandTimeout.
func (d *Dispatcher) Expire(now time.Time) []Resend {
	var resends []Resend
	for id, pc := range d.pending {
		if pc.deadline.After(now) {
			continue
		}
		if pc.attempts >= d.cfg.MaxAttempts {
			delete(d.pending, id)
			d.logger.Warn("command timed out",
				"command_id", id,
				"device_id", pc.DeviceID,
				"attempts", pc.attempts,
			)
			d.complete(pc, ErrCommandTimeout)
			continue
		}

		pc.attempts++
		pc.RetryCount++
		pc.deadline = now.Add(d.cfg.RetryBase << (pc.attempts - 1))
		resends = append(resends, Resend{DeviceID: pc.DeviceID, Frame: pc.frame})
		d.logger.Debug("command retransmission scheduled",
			"command_id", id,
			"device_id", pc.DeviceID,
			"attempt", pc.attempts,
		)
	}
	return resends
}

// FailDevice fails every pending command for a device whose link was
// declared lost, bypassing the remaining retries.
func (d *Dispatcher) FailDevice(deviceID uint32) int {
	failed := 0
	for id, pc := range d.pending {
		if pc.DeviceID != deviceID {
			continue
		}
		delete(d.pending, id)
		failed++
		d.complete(pc, ErrLinkLost)
	}
	if failed > 0 {
		d.logger.Info("pending commands failed on lost link",
			"device_id", deviceID,
			"count", failed,
		)
	}
	return failed
}

// NextDeadline returns the earliest pending retry deadline, or false
// when nothing is outstanding.
func (d *Dispatcher) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, pc := range d.pending {
		if next.IsZero() || pc.deadline.Before(next) {
			next = pc.deadline
		}
	}
	return next, !next.IsZero()
}

// PendingCount returns the number of outstanding commands.
func (d *Dispatcher) PendingCount() int {
	return len(d.pending)
}

// Pending returns copies of all outstanding commands, for diagnostics.
func (d *Dispatcher) Pending() []PendingCommand {
	out := make([]PendingCommand, 0, len(d.pending))
	for _, pc := range d.pending {
		cp := *pc
		cp.frame = nil
		cp.cb = nil
		out = append(out, cp)
	}
	return out
}

// bumpSeq returns the next outbound sequence number for a device.
// Sequence 0 is never used so nodes can treat it as unset.
func (d *Dispatcher) bumpSeq(deviceID uint32) uint32 {
	d.nextSeq[deviceID]++
	return d.nextSeq[deviceID]
}

// complete fires the completion callback, if any.
func (d *Dispatcher) complete(pc *PendingCommand, err error) {
	if pc.cb == nil {
		return
	}
	pc.cb(Result{CommandID: pc.CommandID, DeviceID: pc.DeviceID, Err: err})
}
