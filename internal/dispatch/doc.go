// Package dispatch sends commands to actuator nodes and tracks their
// acknowledgement, giving callers at-least-once delivery semantics.
//
// A dispatched command becomes a pending entry holding the encoded
// frame, the retry schedule and a completion callback. The entry is
// removed when a matching command_ack arrives, when the caller cancels
// it, when the retry budget is exhausted (CommandTimeout) or when the
// device's link is declared lost (LinkLost: fast failure instead of
// waiting out a doomed retry schedule).
//
// Retransmissions reuse the original frame: the same command_id and the
// same sequence number, so a node that already applied the command
// de-duplicates the retry and simply re-acks.
//
// The dispatcher is pure and synchronous like the registry and link
// manager: the hub controller's event loop owns it, emits the frames it
// returns, and runs its completion callbacks. Callbacks execute on the
// loop goroutine and must not block.
package dispatch
