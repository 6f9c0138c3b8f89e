package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nodoproject/nodo-core/internal/dispatch"
	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
	"github.com/nodoproject/nodo-core/internal/syncbuf"
)

type sentFrame struct {
	deviceID uint32
	frame    []byte
}

type fakeTransport struct {
	mu    sync.Mutex
	sent  []sentFrame
	errFn func(deviceID uint32) error
}

func (t *fakeTransport) Send(deviceID uint32, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.errFn != nil {
		if err := t.errFn(deviceID); err != nil {
			return err
		}
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	t.sent = append(t.sent, sentFrame{deviceID: deviceID, frame: buf})
	return nil
}

func (t *fakeTransport) frames() []sentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sentFrame, len(t.sent))
	copy(out, t.sent)
	return out
}

type fakeStore struct {
	mu         sync.Mutex
	identities map[uint32]registry.Identity
	cursor     uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{identities: make(map[uint32]registry.Identity)}
}

func (s *fakeStore) SaveIdentity(_ context.Context, ident registry.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[ident.ID] = ident
	return nil
}

func (s *fakeStore) DeleteIdentity(_ context.Context, deviceID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, deviceID)
	return nil
}

func (s *fakeStore) LoadIdentities(context.Context) ([]registry.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.Identity, 0, len(s.identities))
	for _, ident := range s.identities {
		out = append(out, ident)
	}
	return out, nil
}

func (s *fakeStore) SaveCursor(_ context.Context, lastEventID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = lastEventID
	return nil
}

func (s *fakeStore) LoadCursor(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

type sinkWrite struct {
	deviceID uint32
	name     string
	state    protocol.State
}

type fakeSink struct {
	writes []sinkWrite
}

func (s *fakeSink) WriteReading(deviceID uint32, name string, reading protocol.SensorReading, _ time.Time) {
	s.writes = append(s.writes, sinkWrite{deviceID: deviceID, name: name, state: reading})
}

func (s *fakeSink) WriteActuatorState(deviceID uint32, name string, state protocol.ActuatorState, _ time.Time) {
	s.writes = append(s.writes, sinkWrite{deviceID: deviceID, name: name, state: state})
}

func testController(t *testing.T) (*Controller, *fakeTransport, *time.Time) {
	t.Helper()
	tr := &fakeTransport{}
	c := New(Config{
		LivenessWindow: 90 * time.Second,
		GracePeriod:    5 * time.Minute,
		RetryBase:      2 * time.Second,
		MaxAttempts:    3,
		BufferCapacity: 64,
	}, tr)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, tr, &now
}

func discoveryFrame(deviceID, seq uint32, class protocol.DeviceClass, name string) []byte {
	return protocol.EncodeFrame(protocol.Message{
		Version:  protocol.Version,
		Type:     protocol.MsgDiscovery,
		DeviceID: deviceID,
		Sequence: seq,
		Payload:  protocol.EncodeDiscovery(protocol.Discovery{Class: class, Name: name}),
	})
}

func telemetryFrame(deviceID, seq uint32, value float64) []byte {
	return protocol.EncodeFrame(protocol.Message{
		Version:  protocol.Version,
		Type:     protocol.MsgTelemetry,
		DeviceID: deviceID,
		Sequence: seq,
		Payload: protocol.EncodeSensorReading(protocol.SensorReading{
			Metric: protocol.MetricTemperature,
			Value:  value,
			Unit:   protocol.UnitCelsius,
		}),
	})
}

func actuatorTelemetryFrame(deviceID, seq uint32, state protocol.ActuatorState) []byte {
	return protocol.EncodeFrame(protocol.Message{
		Version:  protocol.Version,
		Type:     protocol.MsgTelemetry,
		DeviceID: deviceID,
		Sequence: seq,
		Payload:  protocol.EncodeActuatorState(state),
	})
}

func heartbeatFrame(deviceID, seq uint32) []byte {
	return protocol.EncodeFrame(protocol.Message{
		Version:  protocol.Version,
		Type:     protocol.MsgHeartbeat,
		DeviceID: deviceID,
		Sequence: seq,
	})
}

func ackFrame(deviceID, seq uint32, ack protocol.CommandAck) []byte {
	return protocol.EncodeFrame(protocol.Message{
		Version:  protocol.Version,
		Type:     protocol.MsgCommandAck,
		DeviceID: deviceID,
		Sequence: seq,
		Payload:  protocol.EncodeCommandAck(ack),
	})
}

func TestTelemetryLifecycle(t *testing.T) {
	c, _, now := testController(t)

	c.handleFrame(discoveryFrame(7, 1, protocol.ClassSensor, "living-room-temp"), *now)
	c.handleFrame(telemetryFrame(7, 2, 21.5), *now)

	dev, ok := c.reg.Get(7)
	if !ok {
		t.Fatal("device 7 not registered")
	}
	reading, ok := dev.LastState.(protocol.SensorReading)
	if !ok {
		t.Fatalf("last state = %T, want SensorReading", dev.LastState)
	}
	if reading.Value != 21.5 {
		t.Fatalf("reading = %v, want 21.5", reading.Value)
	}
	if dev.LinkState != registry.LinkActive {
		t.Fatalf("link state = %s, want active", dev.LinkState)
	}

	// A duplicate of sequence 2 carrying a different value must be
	// discarded without touching the stored state.
	c.handleFrame(telemetryFrame(7, 2, 99.0), *now)
	dev, _ = c.reg.Get(7)
	if got := dev.LastState.(protocol.SensorReading).Value; got != 21.5 {
		t.Fatalf("state after duplicate = %v, want 21.5", got)
	}

	events := c.buf.Peek(0)
	var kinds []syncbuf.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	want := []syncbuf.EventKind{
		syncbuf.KindDiscovery,
		syncbuf.KindLinkState, // discovering -> active
		syncbuf.KindTelemetry,
	}
	if len(kinds) != len(want) {
		t.Fatalf("buffered kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("buffered kinds = %v, want %v", kinds, want)
		}
	}
}

func TestTelemetrySinkRoutesByClass(t *testing.T) {
	c, _, now := testController(t)
	sink := &fakeSink{}
	c.SetSink(sink)

	c.handleFrame(discoveryFrame(7, 1, protocol.ClassSensor, "attic-temp"), *now)
	c.handleFrame(telemetryFrame(7, 2, 18.25), *now)

	c.handleFrame(discoveryFrame(8, 1, protocol.ClassActuator, "hall-dimmer"), *now)
	c.handleFrame(actuatorTelemetryFrame(8, 2, protocol.ActuatorState{
		Channel: 1,
		Mode:    protocol.ModeLevel,
		Value:   80,
	}), *now)

	if len(sink.writes) != 2 {
		t.Fatalf("sink writes = %d, want 2", len(sink.writes))
	}

	reading, ok := sink.writes[0].state.(protocol.SensorReading)
	if !ok || sink.writes[0].deviceID != 7 || sink.writes[0].name != "attic-temp" {
		t.Fatalf("first write = %+v, want sensor reading from device 7", sink.writes[0])
	}
	if reading.Value != 18.25 {
		t.Errorf("reading value = %v, want 18.25", reading.Value)
	}

	state, ok := sink.writes[1].state.(protocol.ActuatorState)
	if !ok || sink.writes[1].deviceID != 8 || sink.writes[1].name != "hall-dimmer" {
		t.Fatalf("second write = %+v, want actuator state from device 8", sink.writes[1])
	}
	if state.Channel != 1 || state.Mode != protocol.ModeLevel || state.Value != 80 {
		t.Errorf("actuator state = %+v", state)
	}
}

func TestUnknownDeviceTelemetryDropped(t *testing.T) {
	c, _, now := testController(t)

	c.handleFrame(telemetryFrame(42, 1, 18.0), *now)

	if c.reg.Count() != 0 {
		t.Fatal("telemetry from an unannounced device must not create a record")
	}
	if c.buf.Len() != 0 {
		t.Fatalf("buffered events = %d, want 0", c.buf.Len())
	}
}

func TestMalformedFrameCounted(t *testing.T) {
	c, _, now := testController(t)

	c.handleFrame([]byte{0x01, 0x02}, *now)

	if c.decodeErrors != 1 {
		t.Fatalf("decode errors = %d, want 1", c.decodeErrors)
	}
	if c.reg.Count() != 0 {
		t.Fatal("malformed frame must have no state effect")
	}
}

func TestDispatchAckRoundTrip(t *testing.T) {
	c, tr, now := testController(t)

	c.handleFrame(discoveryFrame(9, 1, protocol.ClassActuator, "hall-dimmer"), *now)

	var result *dispatch.Result
	id, err := c.handleDispatch(9, 0, protocol.ModeLevel, 80, func(r dispatch.Result) {
		result = &r
	}, *now)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	frames := tr.frames()
	if len(frames) != 1 {
		t.Fatalf("transmitted frames = %d, want 1", len(frames))
	}
	msg, err := protocol.DecodeFrame(frames[0].frame)
	if err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	cmd, err := protocol.DecodeCommand(msg.Payload)
	if err != nil {
		t.Fatalf("decode command payload: %v", err)
	}
	if cmd.CommandID != id || cmd.Value != 80 || cmd.Mode != protocol.ModeLevel {
		t.Fatalf("sent command = %+v, want id %s value 80 level", cmd, id)
	}

	c.handleFrame(ackFrame(9, 2, protocol.CommandAck{CommandID: id, Status: 0}), *now)

	if result == nil {
		t.Fatal("callback did not fire")
	}
	if result.Err != nil {
		t.Fatalf("result err = %v, want nil", result.Err)
	}
	if c.disp.PendingCount() != 0 {
		t.Fatal("command still pending after ack")
	}

	events := c.buf.Peek(0)
	last := events[len(events)-1]
	if last.Kind != syncbuf.KindCommandResult {
		t.Fatalf("last event kind = %s, want command_result", last.Kind)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(last.Payload, &payload); err != nil {
		t.Fatalf("decode result payload: %v", err)
	}
	if payload.Status != "applied" {
		t.Fatalf("result status = %q, want applied", payload.Status)
	}
}

func TestDispatchToSensorRejected(t *testing.T) {
	c, _, now := testController(t)

	c.handleFrame(discoveryFrame(7, 1, protocol.ClassSensor, "temp"), *now)

	if _, err := c.handleDispatch(7, 0, protocol.ModeOnOff, 1, nil, *now); !errors.Is(err, dispatch.ErrNotActuator) {
		t.Fatalf("err = %v, want ErrNotActuator", err)
	}
}

func TestRetryReusesFrameThenTimesOut(t *testing.T) {
	c, tr, now := testController(t)

	c.handleFrame(discoveryFrame(9, 1, protocol.ClassActuator, "valve"), *now)

	var result *dispatch.Result
	if _, err := c.handleDispatch(9, 0, protocol.ModeOnOff, 1, func(r dispatch.Result) {
		result = &r
	}, *now); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Retries fire at +2s and +2s+4s; the third deadline times out.
	*now = now.Add(2 * time.Second)
	c.handleTick(*now)
	*now = now.Add(4 * time.Second)
	c.handleTick(*now)

	frames := tr.frames()
	if len(frames) != 3 {
		t.Fatalf("transmissions = %d, want 3", len(frames))
	}
	for i := 1; i < len(frames); i++ {
		if string(frames[i].frame) != string(frames[0].frame) {
			t.Fatalf("retransmission %d differs from original frame", i)
		}
	}
	if result != nil {
		t.Fatal("callback fired before final deadline")
	}

	*now = now.Add(8 * time.Second)
	c.handleTick(*now)

	if result == nil {
		t.Fatal("timeout callback did not fire")
	}
	if !errors.Is(result.Err, dispatch.ErrCommandTimeout) {
		t.Fatalf("result err = %v, want ErrCommandTimeout", result.Err)
	}
}

func TestLivenessLossFailsPendingAndGatesUplink(t *testing.T) {
	c, _, now := testController(t)

	c.handleFrame(discoveryFrame(9, 1, protocol.ClassActuator, "pump"), *now)
	c.handleFrame(heartbeatFrame(9, 2), *now)

	var result *dispatch.Result
	if _, err := c.handleDispatch(9, 0, protocol.ModeOnOff, 1, func(r dispatch.Result) {
		result = &r
	}, *now); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Silence past the liveness window degrades the link.
	*now = now.Add(91 * time.Second)
	c.handleTick(*now)
	if dev, _ := c.reg.Get(9); dev.LinkState != registry.LinkDegraded {
		t.Fatalf("link state = %s, want degraded", dev.LinkState)
	}

	// Silence past the grace period loses it and fails the command.
	*now = now.Add(5 * time.Minute)
	c.handleTick(*now)
	if dev, _ := c.reg.Get(9); dev.LinkState != registry.LinkLost {
		t.Fatalf("link state = %s, want lost", dev.LinkState)
	}
	if result == nil || !errors.Is(result.Err, dispatch.ErrLinkLost) {
		t.Fatalf("result = %+v, want ErrLinkLost", result)
	}

	// Telemetry from a lost device is stale traffic.
	c.handleFrame(telemetryFrame(9, 3, 1.0), *now)
	if dev, _ := c.reg.Get(9); dev.LinkState != registry.LinkLost {
		t.Fatal("telemetry must not revive a lost device")
	}

	// Discovery restarts the cycle.
	c.handleFrame(discoveryFrame(9, 4, protocol.ClassActuator, "pump"), *now)
	if dev, _ := c.reg.Get(9); dev.LinkState != registry.LinkDiscovering {
		t.Fatalf("link state = %s, want discovering after rediscovery", dev.LinkState)
	}
}

func TestRebootedLostDeviceRejoinsViaDiscovery(t *testing.T) {
	c, _, now := testController(t)

	c.handleFrame(discoveryFrame(9, 5, protocol.ClassSensor, "porch"), *now)
	c.handleFrame(telemetryFrame(9, 6, 12.0), *now)

	// Silence through the liveness window and the grace period.
	*now = now.Add(91 * time.Second)
	c.handleTick(*now)
	*now = now.Add(5 * time.Minute)
	c.handleTick(*now)
	if dev, _ := c.reg.Get(9); dev.LinkState != registry.LinkLost {
		t.Fatalf("link state = %s, want lost", dev.LinkState)
	}

	// The node power-cycled, so its sequence counter restarted below
	// the stored one. Discovery must still reopen the link.
	c.handleFrame(discoveryFrame(9, 1, protocol.ClassSensor, "porch"), *now)
	dev, _ := c.reg.Get(9)
	if dev.LinkState != registry.LinkDiscovering {
		t.Fatalf("link state = %s, want discovering after reboot rediscovery", dev.LinkState)
	}
	if dev.LastSequence != 1 {
		t.Fatalf("last sequence = %d, want 1 (new session)", dev.LastSequence)
	}
	if dev.LastState != nil {
		t.Fatalf("state from the previous session survived: %v", dev.LastState)
	}

	// The fresh session then proceeds to active as usual.
	c.handleFrame(telemetryFrame(9, 2, 13.5), *now)
	dev, _ = c.reg.Get(9)
	if dev.LinkState != registry.LinkActive {
		t.Fatalf("link state = %s, want active", dev.LinkState)
	}
	if got := dev.LastState.(protocol.SensorReading).Value; got != 13.5 {
		t.Fatalf("reading = %v, want 13.5", got)
	}
}

func TestRemoveRequiresLost(t *testing.T) {
	c, _, now := testController(t)

	c.handleFrame(discoveryFrame(5, 1, protocol.ClassSensor, "shed"), *now)

	if err := c.handleRemove(5, *now); !errors.Is(err, registry.ErrNotLost) {
		t.Fatalf("remove active device: err = %v, want ErrNotLost", err)
	}

	*now = now.Add(time.Hour)
	c.handleTick(*now) // degraded
	c.handleTick(*now) // lost

	if err := c.handleRemove(5, *now); err != nil {
		t.Fatalf("remove lost device: %v", err)
	}
	if _, ok := c.reg.Get(5); ok {
		t.Fatal("device record survived removal")
	}
	events := c.buf.Peek(0)
	if last := events[len(events)-1]; last.Kind != syncbuf.KindDeviceRemoved {
		t.Fatalf("last event kind = %s, want device_removed", last.Kind)
	}
}

func TestStartRestoresIdentitiesAndCursor(t *testing.T) {
	store := newFakeStore()
	store.identities[7] = registry.Identity{ID: 7, Class: protocol.ClassSensor, Name: "temp"}
	store.cursor = 41

	tr := &fakeTransport{}
	c := New(Config{}, tr)
	c.SetStore(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	devs, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(devs) != 1 || devs[0].ID != 7 {
		t.Fatalf("snapshot = %+v, want restored device 7", devs)
	}
	if devs[0].LinkState != registry.LinkDiscovering {
		t.Fatalf("restored link state = %s, want discovering", devs[0].LinkState)
	}

	// A restored identity accepts its first message at any sequence.
	if err := c.HandleFrame(ctx, telemetryFrame(7, 1, 19.0)); err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		devs, err = c.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if devs[0].LastState != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("telemetry from restored device not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Event IDs continue past the persisted cursor.
	events, err := c.DrainEvents(ctx, 0)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(events) == 0 || events[0].ID != 42 {
		t.Fatalf("first event ID = %v, want 42", events)
	}

	if _, err := c.AckEvents(ctx, events[len(events)-1].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	ackDeadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		cur := store.cursor
		store.mu.Unlock()
		if cur == events[len(events)-1].ID {
			break
		}
		if time.Now().After(ackDeadline) {
			t.Fatalf("cursor = %d, want %d", cur, events[len(events)-1].ID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatsReflectState(t *testing.T) {
	c, _, now := testController(t)

	c.handleFrame(discoveryFrame(1, 1, protocol.ClassSensor, "a"), *now)
	c.handleFrame(telemetryFrame(1, 2, 3.0), *now)
	c.handleFrame([]byte{0xFF}, *now)

	if c.reg.Count() != 1 {
		t.Fatalf("devices = %d, want 1", c.reg.Count())
	}
	if c.framesIn != 3 {
		t.Fatalf("frames in = %d, want 3", c.framesIn)
	}
	if c.decodeErrors != 1 {
		t.Fatalf("decode errors = %d, want 1", c.decodeErrors)
	}
}
