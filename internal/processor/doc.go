// Package processor supervises the external rendering worker.
//
// A Processor owns one worker process and its three pipes: commands are
// written to stdin, response frames are read from stdout, and whatever the
// worker prints on stderr is kept as diagnostics for crash reports. Requests
// are multiplexed over the single command pipe; each one is given a fresh
// decimal identifier and a continuation is stored in the Registry until the
// matching response frame arrives. Responses may arrive in any order.
//
// # Threading
//
// All Processor, Registry and Supervisor methods must be called on the event
// loop goroutine (see package loop). The read goroutines started by Spawn
// only decode bytes and post the results to the loop, so no locking is
// needed anywhere in this package.
//
// # Lifecycle
//
//	Running ──Close──▶ Closing ──exit 0──▶ Closed
//	   │                  └─kill after CloseTimeout─▶ Closed
//	   └──crash / unexpected exit / malformed frame──▶ Closed (fatal)
//
// Fatal failures are reported once through the handler installed with
// WithFatalHandler. Requests outstanding at that moment are left pending
// unless WithFailPendingOnExit is set.
//
// # Sharing
//
// The Supervisor shares one Processor between any number of contexts (for
// example editor buffers) by reference counting: the first Acquire spawns the
// worker, the last Release closes it.
package processor
