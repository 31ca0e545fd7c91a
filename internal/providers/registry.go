// Package providers describes how to reach each supported LLM vendor and
// performs the actual chat-completion calls.
package providers

import "github.com/aetherflow/engine/internal/models"

// Info is the static call shape for one provider. All supported vendors speak
// the OpenAI chat-completions dialect, so the table only needs the endpoint,
// the default model, and whether a live credential check is defined.
type Info struct {
	BaseURL      string
	DefaultModel string

	// Verifiable marks providers with a defined liveness check. For the rest,
	// verification reports valid without calling out (documented stub).
	Verifiable bool
}

var registry = map[models.Provider]Info{
	models.ProviderOpenAI: {
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-4o-mini",
	},
	models.ProviderDeepseek: {
		BaseURL:      "https://api.deepseek.com/v1",
		DefaultModel: "deepseek-chat",
		Verifiable:   true,
	},
	models.ProviderMoonshot: {
		BaseURL:      "https://api.moonshot.cn/v1",
		DefaultModel: "moonshot-v1-8k",
	},
}

// Lookup returns the static info for a fixed provider. Custom providers have
// no registry entry: their endpoint and model come from the credential itself,
// which is why callers must check ok. Passing an unknown provider is a caller
// bug; the enumeration is validated at the API boundary.
func Lookup(p models.Provider) (Info, bool) {
	info, ok := registry[p]
	return info, ok
}
