// Package radio bridges the hub controller to the radio gateway over MQTT.
//
// The radio gateway publishes raw node frames to nodo/radio/up and
// listens for downlink frames on nodo/radio/down/<device_id>. This
// package translates between those topics and the hub:
//
//	nodo/radio/up            → hub.HandleFrame
//	hub (Transport.Send)     → nodo/radio/down/<device_id>
//
// # Downlink Queue
//
// Send is called from inside the hub's event loop, so it must never
// block on the broker. Frames are enqueued onto a bounded channel and
// published by a worker goroutine. A full queue rejects the frame with
// ErrQueueFull; the dispatcher's retry cycle resends it later.
//
// # Frame Contents
//
// The bridge does not inspect frames. Decoding, validation, and
// sequence handling all live in the hub; this package only moves bytes.
package radio
