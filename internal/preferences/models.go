package preferences

import "strings"

const (
	ModelGPT4      = "gpt-4"
	ModelGPT432K   = "gpt-4-32k"
	ModelGPT35Turb = "gpt-3.5-turbo"
)

var modelAliases = map[string]string{
	"4":             ModelGPT4,
	"gpt-4":         ModelGPT4,
	"4-32k":         ModelGPT432K,
	"gpt-4-32k":     ModelGPT432K,
	"3.5":           ModelGPT35Turb,
	"gpt-3.5":       ModelGPT35Turb,
	"gpt-3.5-turbo": ModelGPT35Turb,
	"default":       "",
}

// ResolveModel maps a /setGPT argument to a model name. "default" resolves
// to "", which clears the override.
func ResolveModel(arg string) (string, bool) {
	m, ok := modelAliases[strings.ToLower(strings.TrimSpace(arg))]
	return m, ok
}

// RequiresEntitlement reports whether a model is reserved for members.
func RequiresEntitlement(model string) bool {
	return strings.HasPrefix(model, "gpt-4")
}
