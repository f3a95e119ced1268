package constants

// TransformMode records whether a request's transformer chain was
// bypassed (ingress dialect already matches the provider) or actually ran.
type TransformMode string

const (
	// TransformModeBypass indicates the ingress dialect equalled the sole
	// provider transformer's dialect, so the chain was skipped.
	TransformModeBypass TransformMode = "bypass"

	// TransformModeApplied indicates one or more transformers ran.
	TransformModeApplied TransformMode = "applied"
)
