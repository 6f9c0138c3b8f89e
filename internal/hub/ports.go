package hub

import (
	"context"
	"time"

	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
)

// Transport carries encoded frames toward peripheral nodes. Send must
// not block: implementations queue internally and surface delivery
// problems through their own logging.
type Transport interface {
	Send(deviceID uint32, frame []byte) error
}

// Store persists the minimal state that must survive a hub restart:
// device identities and the gateway sync cursor. All calls happen off
// the loop goroutine except the initial load in Start.
type Store interface {
	SaveIdentity(ctx context.Context, ident registry.Identity) error
	DeleteIdentity(ctx context.Context, deviceID uint32) error
	LoadIdentities(ctx context.Context) ([]registry.Identity, error)
	SaveCursor(ctx context.Context, lastEventID uint64) error
	LoadCursor(ctx context.Context) (uint64, error)
}

// TelemetrySink receives accepted telemetry for historical storage.
// Implementations must buffer internally; both methods are called from
// the loop goroutine and must return immediately.
type TelemetrySink interface {
	WriteReading(deviceID uint32, name string, reading protocol.SensorReading, at time.Time)
	WriteActuatorState(deviceID uint32, name string, state protocol.ActuatorState, at time.Time)
}

// UpdateKind classifies device updates pushed to local observers.
type UpdateKind string

const (
	UpdateTelemetry UpdateKind = "telemetry"
	UpdateLinkState UpdateKind = "link_state"
	UpdateDiscovery UpdateKind = "discovery"
	UpdateRemoved   UpdateKind = "removed"
)

// Update is a copy of a device record at the moment something about it
// changed, delivered to the local notifier (typically the WebSocket
// broadcaster).
type Update struct {
	Kind   UpdateKind      `json:"kind"`
	Device registry.Device `json:"device"`
	At     time.Time       `json:"at"`
}

// Notifier receives device updates for local, lossy fan-out. Notify is
// called from the loop goroutine and must not block.
type Notifier interface {
	Notify(Update)
}

// Logger is the subset of logging used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
