package mqtt

import "fmt"

// Topic prefixes for the Nodo MQTT namespace.
//
// The broker carries two distinct planes:
//   - radio topics move raw binary node frames between the hub and the
//     radio daemon that drives the transceiver
//   - gateway topics move sync traffic between the hub and the cloud
//     gateway connector
const (
	// TopicPrefixRadio is the base for radio frame transport.
	TopicPrefixRadio = "nodo/radio"

	// TopicPrefixGateway is the base for cloud gateway sync traffic.
	TopicPrefixGateway = "nodo/gateway"

	// TopicPrefixSystem is the base for hub status topics.
	TopicPrefixSystem = "nodo/system"
)

// Topics provides builders for Nodo MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// RadioUp returns the uplink topic carrying raw frames from nodes.
// The radio daemon publishes every received frame here verbatim.
//
// Example: nodo/radio/up
func (Topics) RadioUp() string {
	return fmt.Sprintf("%s/up", TopicPrefixRadio)
}

// RadioDown returns the downlink topic for frames to one device.
// The device ID keeps per-device ordering on the radio side.
//
// Example: nodo/radio/down/9
func (Topics) RadioDown(deviceID uint32) string {
	return fmt.Sprintf("%s/down/%d", TopicPrefixRadio, deviceID)
}

// AllRadioDown returns a pattern matching every downlink topic.
//
// Pattern: nodo/radio/down/+
func (Topics) AllRadioDown() string {
	return fmt.Sprintf("%s/down/+", TopicPrefixRadio)
}

// GatewayEvents returns the topic for sync event batches to the cloud.
//
// Example: nodo/gateway/events
func (Topics) GatewayEvents() string {
	return fmt.Sprintf("%s/events", TopicPrefixGateway)
}

// GatewaySnapshotGet returns the topic on which the cloud requests a
// full device snapshot.
//
// Example: nodo/gateway/snapshot/get
func (Topics) GatewaySnapshotGet() string {
	return fmt.Sprintf("%s/snapshot/get", TopicPrefixGateway)
}

// GatewaySnapshotState returns the topic for snapshot responses.
//
// Example: nodo/gateway/snapshot/state
func (Topics) GatewaySnapshotState() string {
	return fmt.Sprintf("%s/snapshot/state", TopicPrefixGateway)
}

// GatewayCommand returns the topic on which the cloud submits commands.
//
// Example: nodo/gateway/command
func (Topics) GatewayCommand() string {
	return fmt.Sprintf("%s/command", TopicPrefixGateway)
}

// GatewayCommandResult returns the topic for command outcomes pushed
// back to the cloud.
//
// Example: nodo/gateway/command/result
func (Topics) GatewayCommandResult() string {
	return fmt.Sprintf("%s/command/result", TopicPrefixGateway)
}

// SystemStatus returns the hub status topic, also used for the LWT.
//
// Example: nodo/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all Nodo topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: nodo/#
func (Topics) AllTopics() string {
	return "nodo/#"
}
