package constants

// Family identifies the wire dialect a provider speaks, which determines
// which transformer chain and header signer apply to it.
const (
	FamilyOpenAI    = "openai"
	FamilyAnthropic = "anthropic"
	FamilyIFlow     = "iflow"
	FamilyCustom    = "custom"
)

// Scenario classifies an incoming request for routing purposes.
const (
	ScenarioDefault     = "default"
	ScenarioBackground  = "background"
	ScenarioThink       = "think"
	ScenarioLongContext = "longContext"
	ScenarioWebSearch   = "webSearch"
)

const (
	CustomModelID = "custom-model"
)
