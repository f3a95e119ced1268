package constants

// HeaderRoutingReason carries the RoutingDecision.Reason value back to
// the client so a caller can see why a request landed where it did.
const HeaderRoutingReason = "X-Olla-Routing-Reason"
const HeaderRoutingProvider = "X-Olla-Routing-Provider"

// Routing outcome reasons returned in the X-Olla-Routing-Reason header
// and used to pick the HTTP status code for a dispatch outcome.
const (
	RoutingReasonDispatched       = "dispatched"
	RoutingReasonFailover         = "failover"
	RoutingReasonRaceWon          = "race_won"
	RoutingReasonQueued           = "queued"
	RoutingReasonQueueTimeout     = "queue_timeout"
	RoutingReasonQueueFull        = "queue_full"
	RoutingReasonNoCapacity       = "no_capacity"
	RoutingReasonCircuitOpen      = "circuit_open"
	RoutingReasonRateLimited      = "rate_limited"
	RoutingReasonModelNotFound    = "model_not_found"
	RoutingReasonNoAlternatives   = "no_alternatives_available"
	RoutingReasonUpstreamRejected = "upstream_rejected"
)
