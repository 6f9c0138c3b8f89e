// Package mqtt is the broker connection for Nodo Core.
//
// MQTT is the message bus between the hub core and its two transports:
// the radio gateway (raw node frames on nodo/radio/...) and the
// upstream cloud gateway (sync events, snapshots and commands on
// nodo/gateway/...). The Mosquitto broker decouples the hub from both.
//
//	Radio Gateway <-> Broker <-> Nodo Core <-> Broker <-> Cloud Gateway
//
// The client auto-reconnects with exponential backoff and replays its
// subscriptions after every reconnect. A retained message on
// nodo/system/status carries the hub's online/offline state; the
// session's Last Will flips it to offline if the hub crashes.
//
// Topic construction lives in topics.go so topic strings are never
// assembled ad hoc at call sites:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.RadioUp(), 1,
//	    func(topic string, payload []byte) error {
//	        return hub.HandleFrame(payload)
//	    })
package mqtt
