package models

// Provider identifies an upstream LLM vendor. The set is closed: anything not
// listed here is rejected before it reaches the registry or the database.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderDeepseek Provider = "deepseek"
	ProviderMoonshot Provider = "moonshot"
	ProviderCustom   Provider = "custom"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderDeepseek, ProviderMoonshot, ProviderCustom:
		return true
	}
	return false
}

func (p Provider) String() string { return string(p) }
