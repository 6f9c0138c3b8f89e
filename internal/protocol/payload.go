package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Payload sizes on the wire.
const (
	sensorReadingSize = 10 // metric(1) + value(8) + unit(1)
	actuatorStateSize = 3  // channel(1) + mode(1) + value(1)
	commandSize       = 19 // command_id(16) + channel(1) + mode(1) + value(1)
	commandAckSize    = 17 // command_id(16) + status(1)
)

// DeviceClass is the capability class of a peripheral node, declared in
// its discovery message. It selects the telemetry payload schema.
type DeviceClass uint8

// Device classes.
const (
	ClassSensor   DeviceClass = 0
	ClassActuator DeviceClass = 1
)

// Valid reports whether the class is a member of the closed enumeration.
func (c DeviceClass) Valid() bool {
	return c == ClassSensor || c == ClassActuator
}

// String returns the class name used in snapshots and logs.
func (c DeviceClass) String() string {
	switch c {
	case ClassSensor:
		return "sensor"
	case ClassActuator:
		return "actuator"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the class as its name in API snapshots.
func (c DeviceClass) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// Metric identifies what a sensor reading measures.
type Metric uint8

// Sensor metrics.
const (
	MetricTemperature Metric = 0
	MetricHumidity    Metric = 1
	MetricPressure    Metric = 2
	MetricCO2         Metric = 3
	MetricIlluminance Metric = 4
	MetricPower       Metric = 5
)

// String returns the metric name used in snapshots and telemetry export.
func (m Metric) String() string {
	switch m {
	case MetricTemperature:
		return "temperature"
	case MetricHumidity:
		return "humidity"
	case MetricPressure:
		return "pressure"
	case MetricCO2:
		return "co2"
	case MetricIlluminance:
		return "illuminance"
	case MetricPower:
		return "power"
	default:
		return fmt.Sprintf("metric_%d", uint8(m))
	}
}

// Unit identifies the unit of a sensor reading.
type Unit uint8

// Sensor units.
const (
	UnitCelsius Unit = 0
	UnitPercent Unit = 1
	UnitHPa     Unit = 2
	UnitPPM     Unit = 3
	UnitLux     Unit = 4
	UnitWatt    Unit = 5
)

// String returns the unit symbol.
func (u Unit) String() string {
	switch u {
	case UnitCelsius:
		return "celsius"
	case UnitPercent:
		return "percent"
	case UnitHPa:
		return "hpa"
	case UnitPPM:
		return "ppm"
	case UnitLux:
		return "lux"
	case UnitWatt:
		return "watt"
	default:
		return fmt.Sprintf("unit_%d", uint8(u))
	}
}

// ActuatorMode selects how an actuator channel interprets the value byte.
type ActuatorMode uint8

// Actuator modes.
const (
	ModeOnOff ActuatorMode = 0 // value 0 = off, anything else = on
	ModeLevel ActuatorMode = 1 // value 0-255 level
)

// String returns the mode name.
func (m ActuatorMode) String() string {
	switch m {
	case ModeOnOff:
		return "on_off"
	case ModeLevel:
		return "level"
	default:
		return "unknown"
	}
}

// State is the decoded last-known state of a device. Exactly one of the
// concrete variants (SensorReading, ActuatorState) implements it; the
// set is closed at the codec.
type State interface {
	isState()
}

// SensorReading is the telemetry payload of a sensor-class node.
type SensorReading struct {
	Metric Metric  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   Unit    `json:"unit"`
}

func (SensorReading) isState() {}

// ActuatorState is the telemetry payload of an actuator-class node,
// reporting the current setting of one output channel.
type ActuatorState struct {
	Channel uint8        `json:"channel"`
	Mode    ActuatorMode `json:"mode"`
	Value   uint8        `json:"value"`
}

func (ActuatorState) isState() {}

// Command is the payload of a command message to an actuator node.
type Command struct {
	CommandID uuid.UUID
	Channel   uint8
	Mode      ActuatorMode
	Value     uint8
}

// CommandAck is the payload of a command_ack message from a node.
// Status 0 means the command was applied; any other value is a
// node-reported failure code.
type CommandAck struct {
	CommandID uuid.UUID
	Status    uint8
}

// Applied reports whether the node accepted and applied the command.
func (a CommandAck) Applied() bool { return a.Status == 0 }

// Discovery is the payload of a discovery message: the node announces
// its capability class and a human-readable name.
type Discovery struct {
	Class DeviceClass
	Name  string
}

// EncodeSensorReading encodes a sensor telemetry payload.
func EncodeSensorReading(r SensorReading) []byte {
	buf := make([]byte, sensorReadingSize)
	buf[0] = byte(r.Metric)
	binary.BigEndian.PutUint64(buf[1:9], math.Float64bits(r.Value))
	buf[9] = byte(r.Unit)
	return buf
}

// DecodeSensorReading decodes a telemetry payload from a sensor-class
// node. Returns ErrPayloadMismatch if the payload is not a sensor
// reading.
func DecodeSensorReading(payload []byte) (SensorReading, error) {
	if len(payload) != sensorReadingSize {
		return SensorReading{}, fmt.Errorf("%w: sensor reading %d bytes, want %d",
			ErrPayloadMismatch, len(payload), sensorReadingSize)
	}
	value := math.Float64frombits(binary.BigEndian.Uint64(payload[1:9]))
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return SensorReading{}, fmt.Errorf("%w: non-finite sensor value", ErrPayloadMismatch)
	}
	return SensorReading{
		Metric: Metric(payload[0]),
		Value:  value,
		Unit:   Unit(payload[9]),
	}, nil
}

// EncodeActuatorState encodes an actuator state-report payload.
func EncodeActuatorState(s ActuatorState) []byte {
	return []byte{s.Channel, byte(s.Mode), s.Value}
}

// DecodeActuatorState decodes a telemetry payload from an actuator-class
// node. Returns ErrPayloadMismatch if the payload is not a state report.
func DecodeActuatorState(payload []byte) (ActuatorState, error) {
	if len(payload) != actuatorStateSize {
		return ActuatorState{}, fmt.Errorf("%w: actuator state %d bytes, want %d",
			ErrPayloadMismatch, len(payload), actuatorStateSize)
	}
	mode := ActuatorMode(payload[1])
	if mode != ModeOnOff && mode != ModeLevel {
		return ActuatorState{}, fmt.Errorf("%w: actuator mode %d", ErrPayloadMismatch, payload[1])
	}
	return ActuatorState{Channel: payload[0], Mode: mode, Value: payload[2]}, nil
}

// DecodeTelemetry decodes a telemetry payload according to the declared
// device class. A sensor payload arriving for an actuator (or vice
// versa) fails with ErrPayloadMismatch.
func DecodeTelemetry(class DeviceClass, payload []byte) (State, error) {
	switch class {
	case ClassSensor:
		reading, err := DecodeSensorReading(payload)
		if err != nil {
			return nil, err
		}
		return reading, nil
	case ClassActuator:
		state, err := DecodeActuatorState(payload)
		if err != nil {
			return nil, err
		}
		return state, nil
	default:
		return nil, fmt.Errorf("%w: device class %d", ErrPayloadMismatch, class)
	}
}

// EncodeCommand encodes a command payload for an actuator node.
func EncodeCommand(c Command) []byte {
	buf := make([]byte, commandSize)
	copy(buf[:16], c.CommandID[:])
	buf[16] = c.Channel
	buf[17] = byte(c.Mode)
	buf[18] = c.Value
	return buf
}

// DecodeCommand decodes a command payload.
func DecodeCommand(payload []byte) (Command, error) {
	if len(payload) != commandSize {
		return Command{}, fmt.Errorf("%w: command %d bytes, want %d",
			ErrPayloadMismatch, len(payload), commandSize)
	}
	mode := ActuatorMode(payload[17])
	if mode != ModeOnOff && mode != ModeLevel {
		return Command{}, fmt.Errorf("%w: command mode %d", ErrPayloadMismatch, payload[17])
	}
	var c Command
	copy(c.CommandID[:], payload[:16])
	c.Channel = payload[16]
	c.Mode = mode
	c.Value = payload[18]
	return c, nil
}

// EncodeCommandAck encodes an acknowledgement payload.
func EncodeCommandAck(a CommandAck) []byte {
	buf := make([]byte, commandAckSize)
	copy(buf[:16], a.CommandID[:])
	buf[16] = a.Status
	return buf
}

// DecodeCommandAck decodes an acknowledgement payload.
func DecodeCommandAck(payload []byte) (CommandAck, error) {
	if len(payload) != commandAckSize {
		return CommandAck{}, fmt.Errorf("%w: command_ack %d bytes, want %d",
			ErrPayloadMismatch, len(payload), commandAckSize)
	}
	var a CommandAck
	copy(a.CommandID[:], payload[:16])
	a.Status = payload[16]
	return a, nil
}

// EncodeDiscovery encodes a discovery announcement payload.
func EncodeDiscovery(d Discovery) []byte {
	buf := make([]byte, 1+len(d.Name))
	buf[0] = byte(d.Class)
	copy(buf[1:], d.Name)
	return buf
}

// DecodeDiscovery decodes a discovery payload.
func DecodeDiscovery(payload []byte) (Discovery, error) {
	if len(payload) < 1 {
		return Discovery{}, fmt.Errorf("%w: discovery payload empty", ErrPayloadMismatch)
	}
	class := DeviceClass(payload[0])
	if !class.Valid() {
		return Discovery{}, fmt.Errorf("%w: device class %d", ErrPayloadMismatch, payload[0])
	}
	name := string(payload[1:])
	if !utf8.ValidString(name) {
		return Discovery{}, fmt.Errorf("%w: discovery name is not valid UTF-8", ErrPayloadMismatch)
	}
	return Discovery{Class: class, Name: name}, nil
}
