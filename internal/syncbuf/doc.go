// Package syncbuf buffers outbound events for the gateway while its
// link is down and replays them in order on reconnect.
//
// The buffer is a bounded FIFO. Enqueue always succeeds: when the
// buffer is full the oldest entry is evicted and a drop counter is
// incremented. History is lost explicitly and observably; the relative
// order of the remaining entries never changes.
//
// Draining is transactional with gateway acknowledgement: Peek returns
// the next entries without removing them, and only Ack, called after
// the gateway collaborator confirms receipt, discards them. A crash
// mid-drain therefore never loses an unacknowledged event; at worst the
// gateway sees a duplicate, which it de-duplicates by event ID.
package syncbuf
