package constants

const (
	DefaultHealthEndpoint = "/health"
	DefaultMetricsPath    = "/metrics"
	DefaultPathPrefix     = "/"

	PathV1Messages        = "/v1/messages"
	PathV1ChatCompletions = "/v1/chat/completions"
	PathV1Models          = "/v1/models"

	PathModelPoolStatus        = "/model-pool/status"
	PathModelPoolQueue         = "/model-pool/queue"
	PathModelPoolConfig        = "/model-pool/config"
	PathModelPoolResetBreakers = "/model-pool/reset-circuit-breakers"
	PathModelPoolClearQueue    = "/model-pool/clear-queue"

	PathEndpointGroups = "/endpoint-groups"
	PathProviders      = "/providers"

	PathMetricsRecent = "/metrics/recent"
)
