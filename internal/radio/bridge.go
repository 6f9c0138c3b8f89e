package radio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodoproject/nodo-core/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// downlinkQueueSize bounds the number of frames waiting to be
	// published. Sized for a burst of retries across many devices.
	downlinkQueueSize = 256

	// handleTimeout caps how long an uplink frame may wait for the
	// hub loop to accept it.
	handleTimeout = 5 * time.Second

	// frameQoS is the QoS level for radio frames. At-least-once:
	// the hub's sequence numbers discard duplicates.
	frameQoS = 1
)

// FrameSink receives raw uplink frames. Satisfied by *hub.Controller.
type FrameSink interface {
	HandleFrame(ctx context.Context, data []byte) error
}

// MQTTClient is the subset of the MQTT client the bridge needs.
// This allows mocking in tests.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// downlinkFrame is one queued frame awaiting publish.
type downlinkFrame struct {
	deviceID uint32
	frame    []byte
}

// Bridge moves raw frames between the MQTT radio topics and the hub.
//
// Uplink: subscribes to nodo/radio/up and forwards every message to
// the hub controller. Downlink: implements hub.Transport by queueing
// frames for a publisher goroutine.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	mqtt MQTTClient
	sink FrameSink

	downlink chan downlinkFrame

	// Counters for the stats endpoint.
	published uint64
	dropped   uint64

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a radio bridge. Call Start to begin operation.
func NewBridge(client MQTTClient, sink FrameSink) (*Bridge, error) {
	if client == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("frame sink is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		mqtt:      client,
		sink:      sink,
		downlink:  make(chan downlinkFrame, downlinkQueueSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to the uplink topic and starts the downlink publisher.
func (b *Bridge) Start() error {
	topic := mqtt.Topics{}.RadioUp()
	if err := b.mqtt.Subscribe(topic, frameQoS, b.handleUplink); err != nil {
		return fmt.Errorf("subscribe to uplink: %w", err)
	}
	b.logInfo("subscribed to uplink", "topic", topic)

	b.wg.Add(1)
	go b.runPublisher()

	return nil
}

// Stop shuts down the bridge. Queued downlink frames are discarded;
// the dispatcher resends pending commands on restart.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.wg.Wait()
		b.logInfo("radio bridge stopped")
	})
}

// Send queues a frame for publication to the device's downlink topic.
// It never blocks: a full queue returns ErrQueueFull.
//
// Send implements hub.Transport.
func (b *Bridge) Send(deviceID uint32, frame []byte) error {
	select {
	case <-b.done:
		return ErrStopped
	default:
	}

	// Copy: the hub may reuse the frame for retries.
	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case b.downlink <- downlinkFrame{deviceID: deviceID, frame: buf}:
		return nil
	default:
		atomic.AddUint64(&b.dropped, 1)
		return ErrQueueFull
	}
}

// Published returns the number of downlink frames published.
func (b *Bridge) Published() uint64 {
	return atomic.LoadUint64(&b.published)
}

// Dropped returns the number of downlink frames rejected by a full queue.
func (b *Bridge) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// handleUplink forwards a raw uplink frame to the hub.
func (b *Bridge) handleUplink(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(b.ctx, handleTimeout)
	defer cancel()

	if err := b.sink.HandleFrame(ctx, payload); err != nil {
		b.logError("uplink frame not accepted", err)
		return err
	}
	return nil
}

// runPublisher drains the downlink queue onto per-device topics.
func (b *Bridge) runPublisher() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case df := <-b.downlink:
			topic := mqtt.Topics{}.RadioDown(df.deviceID)
			if err := b.mqtt.Publish(topic, df.frame, frameQoS, false); err != nil {
				b.logError("downlink publish failed",
					fmt.Errorf("device=%d: %w", df.deviceID, err))
				continue
			}
			atomic.AddUint64(&b.published, 1)
		}
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
