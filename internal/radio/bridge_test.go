package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nodoproject/nodo-core/internal/infrastructure/mqtt"
)

// mockMQTT records publishes and captures subscription handlers.
type mockMQTT struct {
	mu         sync.Mutex
	published  []publishCall
	handlers   map[string]mqtt.MessageHandler
	publishErr error

	// gate, when set, blocks Publish until closed.
	gate chan struct{}
}

type publishCall struct {
	topic   string
	payload []byte
	qos     byte
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if m.gate != nil {
		<-m.gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.published = append(m.published, publishCall{topic: topic, payload: buf, qos: qos})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool { return true }

func (m *mockMQTT) publishes() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishCall, len(m.published))
	copy(out, m.published)
	return out
}

// mockSink records frames handed to the hub.
type mockSink struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *mockSink) HandleFrame(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.frames = append(s.frames, buf)
	return nil
}

func (s *mockSink) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewBridge_Validation(t *testing.T) {
	if _, err := NewBridge(nil, &mockSink{}); err == nil {
		t.Error("NewBridge(nil client) should return error")
	}
	if _, err := NewBridge(newMockMQTT(), nil); err == nil {
		t.Error("NewBridge(nil sink) should return error")
	}
}

func TestStart_SubscribesToUplink(t *testing.T) {
	client := newMockMQTT()
	sink := &mockSink{}

	b, err := NewBridge(client, sink)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	client.mu.Lock()
	_, ok := client.handlers["nodo/radio/up"]
	client.mu.Unlock()
	if !ok {
		t.Error("Start() did not subscribe to nodo/radio/up")
	}
}

func TestUplinkForwardedToSink(t *testing.T) {
	client := newMockMQTT()
	sink := &mockSink{}

	b, err := NewBridge(client, sink)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	client.mu.Lock()
	handler := client.handlers["nodo/radio/up"]
	client.mu.Unlock()

	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}
	if err := handler("nodo/radio/up", frame); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	got := sink.received()
	if len(got) != 1 {
		t.Fatalf("sink received %d frames, want 1", len(got))
	}
	if len(got[0]) != len(frame) {
		t.Errorf("frame length = %d, want %d", len(got[0]), len(frame))
	}
}

func TestUplinkErrorPropagated(t *testing.T) {
	client := newMockMQTT()
	sink := &mockSink{err: errors.New("loop stopped")}

	b, err := NewBridge(client, sink)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	client.mu.Lock()
	handler := client.handlers["nodo/radio/up"]
	client.mu.Unlock()

	if err := handler("nodo/radio/up", []byte{0x01}); err == nil {
		t.Error("handler should propagate sink error")
	}
}

func TestSend_PublishesToDeviceTopic(t *testing.T) {
	client := newMockMQTT()
	sink := &mockSink{}

	b, err := NewBridge(client, sink)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	frame := []byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x2A}
	if err := b.Send(42, frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	waitFor(t, func() bool { return len(client.publishes()) == 1 })

	pub := client.publishes()[0]
	if pub.topic != "nodo/radio/down/42" {
		t.Errorf("topic = %q, want nodo/radio/down/42", pub.topic)
	}
	if pub.qos != 1 {
		t.Errorf("qos = %d, want 1", pub.qos)
	}
	if b.Published() != 1 {
		t.Errorf("Published() = %d, want 1", b.Published())
	}
}

func TestSend_CopiesFrame(t *testing.T) {
	client := newMockMQTT()
	client.gate = make(chan struct{})
	sink := &mockSink{}

	b, err := NewBridge(client, sink)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	frame := []byte{0xAA, 0xBB}
	if err := b.Send(7, frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Mutate the caller's buffer while the frame sits in the queue.
	frame[0] = 0x00
	close(client.gate)

	waitFor(t, func() bool { return len(client.publishes()) == 1 })

	pub := client.publishes()[0]
	if pub.payload[0] != 0xAA {
		t.Errorf("published payload[0] = %#x, want 0xAA", pub.payload[0])
	}
}

func TestSend_QueueFull(t *testing.T) {
	client := newMockMQTT()
	client.gate = make(chan struct{}) // block the publisher
	sink := &mockSink{}

	b, err := NewBridge(client, sink)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// One frame may be held by the blocked publisher; fill the queue
	// beyond capacity and expect a rejection.
	var full error
	for i := 0; i < downlinkQueueSize+2; i++ {
		if err := b.Send(uint32(i), []byte{byte(i)}); err != nil {
			full = err
			break
		}
	}

	if !errors.Is(full, ErrQueueFull) {
		t.Errorf("Send() on full queue error = %v, want ErrQueueFull", full)
	}
	if b.Dropped() == 0 {
		t.Error("Dropped() = 0, want > 0")
	}

	close(client.gate)
	b.Stop()
}

func TestSend_AfterStop(t *testing.T) {
	client := newMockMQTT()
	sink := &mockSink{}

	b, err := NewBridge(client, sink)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	b.Stop()

	if err := b.Send(1, []byte{0x01}); !errors.Is(err, ErrStopped) {
		t.Errorf("Send() after Stop error = %v, want ErrStopped", err)
	}
}

func TestStop_Idempotent(t *testing.T) {
	client := newMockMQTT()
	sink := &mockSink{}

	b, err := NewBridge(client, sink)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	b.Stop()
	b.Stop() // must not panic
}

func TestPublishErrorCounted(t *testing.T) {
	client := newMockMQTT()
	client.publishErr = fmt.Errorf("broker gone")
	sink := &mockSink{}

	b, err := NewBridge(client, sink)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	if err := b.Send(9, []byte{0x01}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// The publish fails; the frame must not count as published.
	time.Sleep(50 * time.Millisecond)
	if b.Published() != 0 {
		t.Errorf("Published() = %d, want 0", b.Published())
	}
}
