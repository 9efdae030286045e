package providers

// Provider identifiers used across strategies, detection, and the rate table.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderBedrock    = "bedrock"
	ProviderGoogle     = "google"
	ProviderFal        = "fal"
	ProviderBFL        = "bfl"
	ProviderElevenLabs = "elevenlabs"
	ProviderVercelAI   = "vercel-ai"
	ProviderUnknown    = "unknown"
)

// Default model names used when a response and its arguments carry no model id.
var defaultModels = map[string]string{
	ProviderFal:        "flux/dev",
	ProviderBFL:        "flux-pro-1.1",
	ProviderElevenLabs: "eleven_multilingual_v2",
}

// DefaultModel returns the fallback model id for a provider, or "unknown".
func DefaultModel(provider string) string {
	if model, ok := defaultModels[provider]; ok {
		return model
	}
	return "unknown"
}

// blockedMembers are member names the monitor must never traverse or wrap.
// The first group mirrors prototype-pollution-sensitive names that show up in
// clients ported from dynamic runtimes; the rest are marshalling hooks that
// look like methods but are terminal.
var blockedMembers = map[string]struct{}{
	"__proto__":        {},
	"constructor":      {},
	"prototype":        {},
	"__defineGetter__": {},
	"__defineSetter__": {},
	"__lookupGetter__": {},
	"__lookupSetter__": {},
	"MarshalJSON":      {},
	"UnmarshalJSON":    {},
	"String":           {},
	"Error":            {},
	"GoString":         {},
}

// internalPrefix marks members that belong to the instrumentation layer
// itself and must pass through untouched.
const internalPrefix = "_meter"

// IsBlockedMember reports whether a member name must never be intercepted.
func IsBlockedMember(name string) bool {
	if name == "" {
		return true
	}
	if _, ok := blockedMembers[name]; ok {
		return true
	}
	return len(name) >= len(internalPrefix) && name[:len(internalPrefix)] == internalPrefix
}

// builtinFactoryMethods are method names that manufacture sub-clients rather
// than perform a billable call. Membership is by name only; provider-scoped
// additions come through the custom registry.
var builtinFactoryMethods = map[string]struct{}{
	"Model":              {},
	"Models":             {},
	"GetModel":           {},
	"GetGenerativeModel": {},
	"Chats":              {},
	"StartChat":          {},
	"Beta":               {},
	"WithOptions":        {},
}

// IsFactoryMethod reports whether a method name is a known sub-client factory,
// either built in or registered for the given provider.
func IsFactoryMethod(provider, name string) bool {
	if _, ok := builtinFactoryMethods[name]; ok {
		return true
	}
	return registeredFactoryMethod(provider, name)
}
