package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodoproject/nodo-core/internal/dispatch"
	"github.com/nodoproject/nodo-core/internal/infrastructure/mqtt"
	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
	"github.com/nodoproject/nodo-core/internal/syncbuf"
)

// Syncer operation constants.
const (
	// resultQueueSize bounds command results awaiting publish.
	resultQueueSize = 64

	// eventQoS guarantees at-least-once delivery of drained events.
	// The monotonic event IDs let the gateway discard duplicates.
	eventQoS = 1
)

// Controller is the hub surface the syncer drives. Satisfied by
// *hub.Controller.
type Controller interface {
	DrainEvents(ctx context.Context, max int) ([]syncbuf.Event, error)
	AckEvents(ctx context.Context, upTo uint64) (int, error)
	Snapshot(ctx context.Context) ([]registry.Device, error)
	Dispatch(ctx context.Context, deviceID uint32, channel uint8, mode protocol.ActuatorMode, value uint8, cb dispatch.Callback) (uuid.UUID, error)
}

// MQTTClient is the subset of the MQTT client the syncer needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger is the logging interface used by the syncer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds syncer tuning.
type Config struct {
	// DrainBatch is the maximum events published per drain cycle.
	DrainBatch int

	// DrainInterval is the pause between drain cycles.
	DrainInterval time.Duration

	// PublishTimeout caps each hub call made by the syncer.
	PublishTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.DrainBatch <= 0 {
		c.DrainBatch = 64
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
}

// Syncer pushes hub events upstream and feeds gateway requests back in.
//
// Thread Safety: all methods are safe for concurrent use.
type Syncer struct {
	cfg  Config
	mqtt MQTTClient
	ctrl Controller

	results chan CommandResult

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSyncer creates a gateway syncer. Call Start to begin operation.
func NewSyncer(cfg Config, client MQTTClient, ctrl Controller) (*Syncer, error) {
	if client == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if ctrl == nil {
		return nil, fmt.Errorf("controller is required")
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &Syncer{
		cfg:       cfg,
		mqtt:      client,
		ctrl:      ctrl,
		results:   make(chan CommandResult, resultQueueSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to gateway request topics and starts the drain and
// result publisher goroutines.
func (s *Syncer) Start() error {
	snapTopic := mqtt.Topics{}.GatewaySnapshotGet()
	if err := s.mqtt.Subscribe(snapTopic, eventQoS, s.handleSnapshotGet); err != nil {
		return fmt.Errorf("subscribe to snapshot requests: %w", err)
	}

	cmdTopic := mqtt.Topics{}.GatewayCommand()
	if err := s.mqtt.Subscribe(cmdTopic, eventQoS, s.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}

	s.wg.Add(2)
	go s.runDrain()
	go s.runResultPublisher()

	s.logInfo("gateway syncer started",
		"drain_batch", s.cfg.DrainBatch,
		"drain_interval", s.cfg.DrainInterval.String())

	return nil
}

// Stop shuts the syncer down. Undrained events stay in the hub's sync
// buffer and are published on the next start.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.ctxCancel()
		s.wg.Wait()
		s.logInfo("gateway syncer stopped")
	})
}

// runDrain publishes buffered events upstream on a fixed cadence.
func (s *Syncer) runDrain() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.drainOnce()
		}
	}
}

// drainOnce publishes one batch of events in order and acknowledges the
// buffer up to the last event the broker confirmed. A mid-batch failure
// acks the prefix that made it out; the remainder is retried next cycle.
func (s *Syncer) drainOnce() {
	if !s.mqtt.IsConnected() {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PublishTimeout)
	defer cancel()

	events, err := s.ctrl.DrainEvents(ctx, s.cfg.DrainBatch)
	if err != nil {
		s.logError("drain failed", err)
		return
	}
	if len(events) == 0 {
		return
	}

	topic := mqtt.Topics{}.GatewayEvents()
	var confirmed uint64

	for _, ev := range events {
		frame, err := EncodeEnvelope(ev)
		if err != nil {
			// Unencodable events would jam the buffer forever.
			// Count them as delivered and move on.
			s.logError("event not encodable, skipping", fmt.Errorf("id=%d: %w", ev.ID, err))
			confirmed = ev.ID
			continue
		}

		if err := s.mqtt.Publish(topic, frame, eventQoS, false); err != nil {
			s.logError("event publish failed", fmt.Errorf("id=%d: %w", ev.ID, err))
			break
		}
		confirmed = ev.ID
	}

	if confirmed == 0 {
		return
	}

	n, err := s.ctrl.AckEvents(ctx, confirmed)
	if err != nil {
		// Not fatal: the same events are re-published next cycle and
		// de-duplicated by ID upstream.
		s.logError("event ack failed", err)
		return
	}
	s.logDebug("drained events", "count", n, "up_to", confirmed)
}

// handleSnapshotGet answers a snapshot request with the full device list.
func (s *Syncer) handleSnapshotGet(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PublishTimeout)
	defer cancel()

	devices, err := s.ctrl.Snapshot(ctx)
	if err != nil {
		s.logError("snapshot request failed", err)
		return err
	}

	msg := SnapshotMessage{
		Timestamp: time.Now().UTC(),
		Devices:   devices,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		s.logError("snapshot marshal failed", err)
		return err
	}

	stateTopic := mqtt.Topics{}.GatewaySnapshotState()
	if err := s.mqtt.Publish(stateTopic, body, eventQoS, false); err != nil {
		s.logError("snapshot publish failed", err)
		return err
	}

	s.logInfo("snapshot published", "devices", len(devices))
	return nil
}

// handleCommand forwards a gateway command to the hub dispatcher. The
// immediate outcome (rejection) and the terminal outcome (ack, timeout,
// link loss) both surface on the result topic.
func (s *Syncer) handleCommand(topic string, payload []byte) error {
	var req CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logError("command not parseable", err)
		return err
	}

	mode, err := parseMode(req.Mode)
	if err != nil {
		s.queueResult(CommandResult{
			RequestID: req.RequestID,
			DeviceID:  req.DeviceID,
			Status:    StatusRejected,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PublishTimeout)
	defer cancel()

	requestID := req.RequestID
	deviceID := req.DeviceID

	// The callback runs on the hub loop and must not block; it hands
	// the result to the publisher goroutine.
	cb := func(res dispatch.Result) {
		s.queueResult(CommandResult{
			RequestID: requestID,
			CommandID: res.CommandID.String(),
			DeviceID:  deviceID,
			Status:    resultStatus(res.Err),
			Error:     errText(res.Err),
			Timestamp: time.Now().UTC(),
		})
	}

	commandID, err := s.ctrl.Dispatch(ctx, req.DeviceID, req.Channel, mode, req.Value, cb)
	if err != nil {
		s.queueResult(CommandResult{
			RequestID: requestID,
			DeviceID:  deviceID,
			Status:    StatusRejected,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return nil
	}

	s.logDebug("command dispatched",
		"request_id", requestID,
		"command_id", commandID.String(),
		"device_id", deviceID)
	return nil
}

// queueResult hands a result to the publisher without blocking the
// caller. Results are best-effort: the gateway also sees the
// authoritative command_result event from the sync buffer.
func (s *Syncer) queueResult(res CommandResult) {
	select {
	case s.results <- res:
	default:
		s.logWarn("result queue full, result dropped",
			"request_id", res.RequestID)
	}
}

// runResultPublisher publishes queued command results.
func (s *Syncer) runResultPublisher() {
	defer s.wg.Done()

	topic := mqtt.Topics{}.GatewayCommandResult()
	for {
		select {
		case <-s.done:
			return
		case res := <-s.results:
			body, err := json.Marshal(res)
			if err != nil {
				s.logError("result marshal failed", err)
				continue
			}
			if err := s.mqtt.Publish(topic, body, eventQoS, false); err != nil {
				s.logError("result publish failed", err)
			}
		}
	}
}

// resultStatus maps a dispatch outcome onto the wire status.
func resultStatus(err error) string {
	switch {
	case err == nil:
		return StatusApplied
	case errors.Is(err, dispatch.ErrCommandRejected):
		return StatusRejected
	case errors.Is(err, dispatch.ErrCommandTimeout):
		return StatusTimeout
	case errors.Is(err, dispatch.ErrLinkLost):
		return StatusLinkLost
	default:
		return StatusFailed
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// SetLogger sets the logger for the syncer.
func (s *Syncer) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Syncer) logDebug(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (s *Syncer) logInfo(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (s *Syncer) logWarn(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (s *Syncer) logError(msg string, err error) {
	if l := s.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}

func (s *Syncer) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}
