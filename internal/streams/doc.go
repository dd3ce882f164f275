// Package streams implements the stream lifecycle controller.
//
// A [Controller] owns at most one running [pipeline.Session]. Start, stop
// and status commands arrive through [Controller.Handle]; pipeline events
// arrive on the event bus. Both are queued on one inbox and handled by a
// single goroutine, so the current session is never mutated concurrently.
//
// Errors and credential expiry on the current session trigger a restart
// with the parameters the session was started with. Events from sessions
// that have already been replaced are ignored.
package streams
