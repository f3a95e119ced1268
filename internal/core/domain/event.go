package domain

import "time"

// DispatchEventType names one dispatch-lifecycle occurrence a consumer
// (dashboard, alerting hook) might want to subscribe to.
type DispatchEventType string

const (
	EventDispatchSuccess     DispatchEventType = "dispatch_success"
	EventDispatchError       DispatchEventType = "dispatch_error"
	EventCircuitOpened       DispatchEventType = "circuit_open"
	EventClientDisconnected  DispatchEventType = "client_disconnect"
	EventQueueFull           DispatchEventType = "queue_full"
	EventRateLimited         DispatchEventType = "rate_limited"
	EventRaceLost            DispatchEventType = "race_lost"
	EventStaggeredStream     DispatchEventType = "staggered_stream"
)

// DispatchEvent is published on the dispatcher's event bus for each
// lifecycle occurrence worth observing outside the request/response
// path itself.
type DispatchEvent struct {
	Type       DispatchEventType
	RequestID  string
	ProviderID string
	Model      string
	Reason     string
	At         time.Time
}
