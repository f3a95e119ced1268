package constants

const (
	ContextRequestIDKey    = "request_id"    // assigned to each inbound request for correlation across logs
	ContextRequestTimeKey  = "request_time"  // time the request entered the dispatcher
	ContextScenarioKey     = "scenario"      // classified scenario (default/background/think/longContext/webSearch)
	ContextKeyStream       = "stream"        // whether the response should be streamed or buffered
	ContextProviderTypeKey = "provider_type" // resolved provider family for the request
	ContextIngressDialect  = "ingress_dialect"

	// ProxyPathPrefix is the context key RouteRegistry.RegisterProxyRoute
	// injects the matched route prefix under, for handlers that need to
	// strip it back off the request path.
	ProxyPathPrefix = "proxy_path_prefix"
)
