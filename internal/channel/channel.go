// Package channel defines the named-event connection the session core runs
// on. The core only ever sees this interface; transport, reconnection and
// backoff live behind it.
package channel

import "encoding/json"

// Handler receives the raw payload of one named event. Implementations of
// Channel must invoke handlers one event at a time, in delivery order; the
// core relies on that to process each event to completion before the next.
type Handler func(data json.RawMessage)

type Channel interface {
	// Emit sends one named event to the authority. It fails once the
	// connection is closed; nothing is queued.
	Emit(event string, payload any) error
	// On registers the handler for an event name, replacing any previous
	// registration.
	On(event string, handler Handler)
	// Off removes the handler for an event name.
	Off(event string)
	Close() error
}
