package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nodoproject/nodo-core/internal/dispatch"
	"github.com/nodoproject/nodo-core/internal/link"
	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
	"github.com/nodoproject/nodo-core/internal/syncbuf"
)

// Config holds the controller's tunables. Zero values are replaced by
// the defaults below.
type Config struct {
	// LivenessWindow is the silence after which an active device is
	// marked degraded.
	LivenessWindow time.Duration

	// GracePeriod is the additional silence after which a degraded
	// device is marked lost.
	GracePeriod time.Duration

	// RetryBase is the first command retransmission delay; each
	// further retransmission doubles it.
	RetryBase time.Duration

	// MaxAttempts is the total number of command transmissions
	// (initial send included) before timeout.
	MaxAttempts int

	// BufferCapacity bounds the gateway sync buffer.
	BufferCapacity int

	// QueueSize bounds the loop's input channel. Producers block when
	// it is full, which applies backpressure to the radio transport.
	QueueSize int
}

const (
	defaultLivenessWindow = 90 * time.Second
	defaultGracePeriod    = 5 * time.Minute
	defaultRetryBase      = 2 * time.Second
	defaultMaxAttempts    = 3
	defaultBufferCapacity = 4096
	defaultQueueSize      = 256
)

func (c *Config) applyDefaults() {
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = defaultLivenessWindow
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.RetryBase <= 0 {
		c.RetryBase = defaultRetryBase
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = defaultBufferCapacity
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
}

// Controller is the hub's central event loop. All fields below the
// events channel are owned by the loop goroutine: nothing outside the
// loop may touch them after Start.
type Controller struct {
	cfg       Config
	log       Logger
	transport Transport
	store     Store
	sink      TelemetrySink
	notifier  Notifier

	events chan loopEvent
	now    func() time.Time

	reg   *registry.Registry
	links *link.Manager
	disp  *dispatch.Dispatcher
	buf   *syncbuf.Buffer

	persist chan persistOp

	framesIn     uint64
	framesOut    uint64
	decodeErrors uint64
	startedAt    time.Time
}

// New creates a controller. The transport is required; store, sink and
// notifier are optional and attached with the setters before Start.
func New(cfg Config, transport Transport) *Controller {
	cfg.applyDefaults()
	reg := registry.New()
	c := &Controller{
		cfg:       cfg,
		log:       noopLogger{},
		transport: transport,
		events:    make(chan loopEvent, cfg.QueueSize),
		now:       time.Now,
		reg:       reg,
		links: link.NewManager(link.Config{
			LivenessWindow: cfg.LivenessWindow,
			GracePeriod:    cfg.GracePeriod,
		}),
		disp: dispatch.NewDispatcher(dispatch.Config{
			RetryBase:   cfg.RetryBase,
			MaxAttempts: cfg.MaxAttempts,
		}, reg),
		buf:     syncbuf.New(cfg.BufferCapacity, 1),
		persist: make(chan persistOp, 256),
	}
	return c
}

// SetLogger attaches a logger to the controller and its components.
func (c *Controller) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	c.log = logger
	c.reg.SetLogger(logger)
	c.disp.SetLogger(logger)
	c.buf.SetLogger(logger)
}

// SetStore attaches identity and cursor persistence.
func (c *Controller) SetStore(store Store) { c.store = store }

// SetSink attaches a telemetry history sink.
func (c *Controller) SetSink(sink TelemetrySink) { c.sink = sink }

// SetNotifier attaches the local update fan-out.
func (c *Controller) SetNotifier(n Notifier) { c.notifier = n }

// Start restores persisted state and launches the event loop. It must
// be called exactly once; the loop runs until ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	if c.store != nil {
		idents, err := c.store.LoadIdentities(ctx)
		if err != nil {
			return fmt.Errorf("hub: load identities: %w", err)
		}
		for _, ident := range idents {
			c.reg.Restore(ident)
			c.links.Track(ident.ID)
		}
		cursor, err := c.store.LoadCursor(ctx)
		if err != nil {
			return fmt.Errorf("hub: load cursor: %w", err)
		}
		c.buf = syncbuf.New(c.cfg.BufferCapacity, cursor+1)
		c.buf.SetLogger(c.log)
		c.log.Info("state restored", "devices", len(idents), "cursor", cursor)
	}
	c.startedAt = c.now()

	go c.runPersister(ctx)
	go c.run(ctx)
	return nil
}

// HandleFrame submits a raw inbound frame to the loop. It blocks only
// when the loop's queue is full, applying backpressure to the caller.
func (c *Controller) HandleFrame(ctx context.Context, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case c.events <- frameEvent{data: buf}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch sends a command to an actuator. It returns the command ID as
// soon as the first transmission is handed to the transport; the final
// outcome (ack, rejection, timeout, link loss) arrives on cb, which
// runs on the loop goroutine and must not block. cb may be nil.
func (c *Controller) Dispatch(ctx context.Context, deviceID uint32, channel uint8, mode protocol.ActuatorMode, value uint8, cb dispatch.Callback) (uuid.UUID, error) {
	reply := make(chan dispatchReply, 1)
	select {
	case c.events <- dispatchEvent{deviceID: deviceID, channel: channel, mode: mode, value: value, cb: cb, reply: reply}:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.commandID, r.err
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Cancel abandons a pending command. It reports whether the command was
// still pending; no callback fires for a cancelled command.
func (c *Controller) Cancel(ctx context.Context, commandID uuid.UUID) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case c.events <- cancelEvent{commandID: commandID, reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Snapshot returns a copy of every device record, ordered by ID.
func (c *Controller) Snapshot(ctx context.Context) ([]registry.Device, error) {
	reply := make(chan []registry.Device, 1)
	select {
	case c.events <- snapshotEvent{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case devs := <-reply:
		return devs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Device returns a copy of a single device record.
func (c *Controller) Device(ctx context.Context, deviceID uint32) (registry.Device, bool, error) {
	reply := make(chan getDeviceReply, 1)
	select {
	case c.events <- getDeviceEvent{deviceID: deviceID, reply: reply}:
	case <-ctx.Done():
		return registry.Device{}, false, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.device, r.ok, nil
	case <-ctx.Done():
		return registry.Device{}, false, ctx.Err()
	}
}

// Remove deletes a lost device's record and identity. It fails with
// registry.ErrNotLost unless the device's link state is lost.
func (c *Controller) Remove(ctx context.Context, deviceID uint32) error {
	reply := make(chan error, 1)
	select {
	case c.events <- removeEvent{deviceID: deviceID, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DrainEvents returns up to max buffered gateway events without
// consuming them. The caller acknowledges delivered IDs with AckEvents.
func (c *Controller) DrainEvents(ctx context.Context, max int) ([]syncbuf.Event, error) {
	reply := make(chan []syncbuf.Event, 1)
	select {
	case c.events <- drainEvent{max: max, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case evs := <-reply:
		return evs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AckEvents removes delivered events up to and including upTo, persists
// the cursor, and returns how many entries were released.
func (c *Controller) AckEvents(ctx context.Context, upTo uint64) (int, error) {
	reply := make(chan int, 1)
	select {
	case c.events <- ackEventsEvent{upTo: upTo, reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stats returns a copy of the controller's counters.
func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case c.events <- statsEvent{reply: reply}:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// run is the event loop. A single timer is armed to the earliest
// deadline across liveness windows and command retries.
func (c *Controller) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false
	defer timer.Stop()

	for {
		if next, ok := c.nextDeadline(); ok {
			if armed && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			d := next.Sub(c.now())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
			armed = true
		} else if armed {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			armed = false
		}

		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		case <-timer.C:
			armed = false
			c.handleTick(c.now())
		}
	}
}

func (c *Controller) nextDeadline() (time.Time, bool) {
	next, ok := c.links.NextDeadline()
	if d, dok := c.disp.NextDeadline(); dok && (!ok || d.Before(next)) {
		next, ok = d, true
	}
	return next, ok
}

func (c *Controller) handle(ev loopEvent) {
	switch e := ev.(type) {
	case frameEvent:
		c.handleFrame(e.data, c.now())
	case dispatchEvent:
		id, err := c.handleDispatch(e.deviceID, e.channel, e.mode, e.value, e.cb, c.now())
		e.reply <- dispatchReply{commandID: id, err: err}
	case cancelEvent:
		e.reply <- c.disp.Cancel(e.commandID)
	case snapshotEvent:
		e.reply <- c.reg.Snapshot()
	case getDeviceEvent:
		dev, ok := c.reg.Get(e.deviceID)
		e.reply <- getDeviceReply{device: dev, ok: ok}
	case removeEvent:
		e.reply <- c.handleRemove(e.deviceID, c.now())
	case drainEvent:
		e.reply <- c.buf.Peek(e.max)
	case ackEventsEvent:
		n := c.buf.Ack(e.upTo)
		if n > 0 {
			c.persistCursor(e.upTo)
		}
		e.reply <- n
	case statsEvent:
		e.reply <- Stats{
			Devices:         c.reg.Count(),
			PendingCommands: c.disp.PendingCount(),
			BufferedEvents:  c.buf.Len(),
			DroppedEvents:   c.buf.Dropped(),
			FramesIn:        c.framesIn,
			FramesOut:       c.framesOut,
			DecodeErrors:    c.decodeErrors,
			StartedAt:       c.startedAt,
		}
	}
}

// handleFrame runs the full inbound pipeline: decode, lost-device gate,
// registry upsert (sequence dedup + state), link observation, then
// per-type effects. Every failure is logged and dropped.
func (c *Controller) handleFrame(data []byte, now time.Time) {
	c.framesIn++
	msg, err := protocol.DecodeFrame(data)
	if err != nil {
		c.decodeErrors++
		c.log.Warn("frame rejected", "error", err, "bytes", len(data))
		return
	}

	// A lost device re-enters the protocol only through discovery;
	// anything else it sends is stale traffic.
	if msg.Type != protocol.MsgDiscovery && c.links.State(msg.DeviceID) == registry.LinkLost {
		c.log.Debug("frame from lost device ignored", "device_id", msg.DeviceID, "type", msg.Type.String())
		return
	}

	dev, accepted, err := c.reg.Upsert(msg, now)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrDeviceUnknown):
			c.log.Warn("frame from unknown device", "device_id", msg.DeviceID, "type", msg.Type.String())
		case errors.Is(err, protocol.ErrPayloadMismatch):
			c.log.Warn("payload rejected", "device_id", msg.DeviceID, "error", err)
		default:
			c.log.Warn("frame dropped", "device_id", msg.DeviceID, "error", err)
		}
		return
	}
	if !accepted {
		c.log.Debug("duplicate frame", "device_id", msg.DeviceID, "sequence", msg.Sequence)
		return
	}

	if tr, changed := c.links.Observe(msg.DeviceID, msg.Type, now); changed {
		c.applyTransition(tr)
		if d, ok := c.reg.Get(msg.DeviceID); ok {
			dev = d
		}
	}

	switch msg.Type {
	case protocol.MsgTelemetry:
		c.onTelemetry(dev, now)
	case protocol.MsgDiscovery:
		c.onDiscovery(dev, now)
	case protocol.MsgCommandAck:
		ack, err := protocol.DecodeCommandAck(msg.Payload)
		if err != nil {
			c.log.Warn("ack rejected", "device_id", msg.DeviceID, "error", err)
			return
		}
		if !c.disp.Ack(ack) {
			c.log.Debug("unmatched ack", "device_id", msg.DeviceID, "command_id", ack.CommandID)
		}
	case protocol.MsgHeartbeat:
		// Liveness already refreshed by the registry and link manager.
	case protocol.MsgCommand:
		c.log.Warn("command frame on uplink ignored", "device_id", msg.DeviceID)
	}
}

func (c *Controller) onTelemetry(dev registry.Device, now time.Time) {
	payload, err := json.Marshal(telemetryEventPayload{Class: dev.Class, State: dev.LastState})
	if err != nil {
		c.log.Error("telemetry event encode failed", "device_id", dev.ID, "error", err)
	} else {
		c.buf.Enqueue(syncbuf.KindTelemetry, dev.ID, payload, now)
	}
	if c.sink != nil {
		switch state := dev.LastState.(type) {
		case protocol.SensorReading:
			c.sink.WriteReading(dev.ID, dev.Name, state, now)
		case protocol.ActuatorState:
			c.sink.WriteActuatorState(dev.ID, dev.Name, state, now)
		}
	}
	c.notify(UpdateTelemetry, dev, now)
}

func (c *Controller) onDiscovery(dev registry.Device, now time.Time) {
	payload, err := json.Marshal(discoveryEventPayload{Name: dev.Name, Class: dev.Class})
	if err != nil {
		c.log.Error("discovery event encode failed", "device_id", dev.ID, "error", err)
	} else {
		c.buf.Enqueue(syncbuf.KindDiscovery, dev.ID, payload, now)
	}
	c.persistIdentity(registry.Identity{ID: dev.ID, Class: dev.Class, Name: dev.Name})
	c.notify(UpdateDiscovery, dev, now)
	c.log.Info("device discovered", "device_id", dev.ID, "name", dev.Name, "class", dev.Class.String())
}

// handleDispatch validates, queues and transmits a command. The
// caller's callback is wrapped so every terminal outcome also lands in
// the gateway sync buffer as a command_result event.
func (c *Controller) handleDispatch(deviceID uint32, channel uint8, mode protocol.ActuatorMode, value uint8, cb dispatch.Callback, now time.Time) (uuid.UUID, error) {
	wrapped := func(res dispatch.Result) {
		c.recordCommandResult(res, c.now())
		if cb != nil {
			cb(res)
		}
	}
	id, frame, err := c.disp.Dispatch(deviceID, channel, mode, value, now, wrapped)
	if err != nil {
		return uuid.Nil, err
	}
	c.send(deviceID, frame)
	return id, nil
}

func (c *Controller) recordCommandResult(res dispatch.Result, now time.Time) {
	payload, err := json.Marshal(commandResultPayload{
		CommandID: res.CommandID,
		Status:    resultStatus(res.Err),
	})
	if err != nil {
		c.log.Error("command result encode failed", "command_id", res.CommandID, "error", err)
		return
	}
	c.buf.Enqueue(syncbuf.KindCommandResult, res.DeviceID, payload, now)
}

func (c *Controller) handleRemove(deviceID uint32, now time.Time) error {
	dev, ok := c.reg.Get(deviceID)
	if !ok {
		return registry.ErrDeviceUnknown
	}
	if err := c.reg.Remove(deviceID); err != nil {
		return err
	}
	c.links.Forget(deviceID)
	c.buf.Enqueue(syncbuf.KindDeviceRemoved, deviceID, nil, now)
	c.persistRemoval(deviceID)
	c.notify(UpdateRemoved, dev, now)
	c.log.Info("device removed", "device_id", deviceID)
	return nil
}

// handleTick services every deadline due at now: liveness transitions
// first (a device going lost fails its pending commands before any
// retry could go out), then command retransmissions.
func (c *Controller) handleTick(now time.Time) {
	for _, tr := range c.links.Expire(now) {
		c.applyTransition(tr)
	}
	for _, rs := range c.disp.Expire(now) {
		c.send(rs.DeviceID, rs.Frame)
	}
}

func (c *Controller) applyTransition(tr link.Transition) {
	c.reg.SetLinkState(tr.DeviceID, tr.To)
	if tr.To == registry.LinkLost {
		if n := c.disp.FailDevice(tr.DeviceID); n > 0 {
			c.log.Warn("pending commands failed", "device_id", tr.DeviceID, "count", n)
		}
	}
	payload, err := json.Marshal(linkStatePayload{From: tr.From, To: tr.To})
	if err != nil {
		c.log.Error("link event encode failed", "device_id", tr.DeviceID, "error", err)
	} else {
		c.buf.Enqueue(syncbuf.KindLinkState, tr.DeviceID, payload, tr.At)
	}
	if dev, ok := c.reg.Get(tr.DeviceID); ok {
		c.notify(UpdateLinkState, dev, tr.At)
	}
	c.log.Info("link state changed", "device_id", tr.DeviceID, "from", string(tr.From), "to", string(tr.To))
}

func (c *Controller) send(deviceID uint32, frame []byte) {
	if c.transport == nil {
		return
	}
	c.framesOut++
	if err := c.transport.Send(deviceID, frame); err != nil {
		c.log.Error("frame transmit failed", "device_id", deviceID, "error", err)
	}
}

func (c *Controller) notify(kind UpdateKind, dev registry.Device, at time.Time) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(Update{Kind: kind, Device: dev, At: at})
}
