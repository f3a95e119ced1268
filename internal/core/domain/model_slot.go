package domain

// ModelSlot tracks dispatch state for one (provider, model) pair: its own
// capacity/circuit-breaker/rate-limit bookkeeping plus the priority queue
// of requests waiting for a free slot when at capacity.
type ModelSlot struct {
	ProviderID string
	Model      string

	*SlotState
	Queue *RequestQueue
}

func NewModelSlot(providerID, model string, maxConcurrent, maxQueueDepth int64) *ModelSlot {
	return &ModelSlot{
		ProviderID: providerID,
		Model:      model,
		SlotState:  NewSlotState(maxConcurrent),
		Queue:      NewRequestQueue(maxQueueDepth),
	}
}

func (m *ModelSlot) Key() string {
	return m.ProviderID + "::" + m.Model
}

// EndpointSlot tracks dispatch state for one provider's base URL,
// independent of which model is being requested — used by the endpoint
// group manager to spread load and trip a breaker per-backend-instance
// rather than per-model.
type EndpointSlot struct {
	ProviderID string
	BaseURL    string
	Priority   int
	Weight     float64

	*SlotState
}

func NewEndpointSlot(providerID, baseURL string, maxConcurrent int64) *EndpointSlot {
	return &EndpointSlot{
		ProviderID: providerID,
		BaseURL:    baseURL,
		Weight:     1,
		SlotState:  NewSlotState(maxConcurrent),
	}
}

func (e *EndpointSlot) Key() string {
	return e.ProviderID + "::" + e.BaseURL
}
