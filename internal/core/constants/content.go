package constants

const (
	DefaultContentTypeJSON = "application/json"
	ContentTypeJSON        = "application/json"
	ContentTypeText        = "text/plain"
	ContentTypeHeader      = "Content-Type"
	ContentTypeSSE         = "text/event-stream"

	HeaderContentType = "Content-Type"
	HeaderAccept      = "Accept"
	HeaderXRequestID  = "X-Request-ID"
	HeaderAuthorization = "Authorization"
)
