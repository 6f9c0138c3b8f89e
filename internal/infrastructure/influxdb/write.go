package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nodoproject/nodo-core/internal/protocol"
)

// WriteReading records one accepted sensor reading. This is the hot
// path of the telemetry sink: it is called from the hub loop for every
// sensor frame and must not block, so the point only lands in the
// write API's in-memory batch here.
//
// Device identity and what was measured go in tags (low cardinality);
// the value is the sole field.
func (c *Client) WriteReading(deviceID uint32, name string, reading protocol.SensorReading, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"telemetry",
		map[string]string{
			"device_id": strconv.FormatUint(uint64(deviceID), 10),
			"device":    name,
			"metric":    reading.Metric.String(),
			"unit":      reading.Unit.String(),
		},
		map[string]interface{}{"value": reading.Value},
		at,
	))
}

// WriteActuatorState records a reported actuator channel setting.
// Lower volume than sensor readings, same non-blocking path.
func (c *Client) WriteActuatorState(deviceID uint32, name string, state protocol.ActuatorState, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"actuator_state",
		map[string]string{
			"device_id": strconv.FormatUint(uint64(deviceID), 10),
			"device":    name,
			"channel":   strconv.Itoa(int(state.Channel)),
			"mode":      state.Mode.String(),
		},
		map[string]interface{}{"value": int(state.Value)},
		at,
	))
}
