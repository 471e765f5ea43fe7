// Package stream runs the realtime emotion-detection sessions.
//
// A Registry owns every live Session. Each Session admits frames with a
// drop-latest-wins policy: one pending slot that newer frames overwrite and
// at most one processing cycle in flight. A drain goroutine runs cycles
// back to back until the slot is empty, so under overload the connection
// always works on the newest frame and never queues.
//
// Files by concern:
//
//   - registry.go: capacity, authentication, session ownership, rooms.
//   - session.go: per-connection state, initialize and join_room.
//   - control.go: the start/stop/configure state machine.
//   - admission.go: frame validation, the pending slot and the drain loop.
//   - pipeline.go: decode, downscale, detect, classify, track.
//   - config.go: typed per-connection config and validated partial updates.
//   - events.go / eventpub_memory.go: lifecycle events for logs and tests.
//   - metrics.go: the gauge/counter sink the transport implements.
//   - errors.go: typed errors and Is* helpers.
package stream
