package compact

import "strings"

// staticLimits maps model-name fragments to context-window sizes. Consulted
// only when the live catalog has no entry for the model.
var staticLimits = map[string]int{
	"claude-3-5-sonnet": 200000,
	"claude-sonnet-4":   200000,
	"claude-opus-4":     200000,
	"claude-3-haiku":    200000,
	"gpt-4o":            128000,
	"gpt-4-turbo":       128000,
	"gpt-4.1":           1047576,
	"gpt-4":             8192,
	"gpt-3.5-turbo":     16385,
	"o1":                200000,
	"o3":                200000,
	"gemini-2.5":        1048576,
	"gemini-1.5-pro":    1048576,
	"deepseek":          65536,
	"qwen":              32768,
	"mistral":           32768,
	"llama-3":           8192,
	"llama3":            8192,
}

// Limit resolves the context-window budget for a model: live catalog lookup
// first, then the static table by substring containment in either direction
// against the name with any provider prefix stripped, then the configured
// conservative default.
func (m *Manager) Limit(model string) int {
	if m.catalog != nil {
		if limit, ok := m.catalog.ContextWindow(model); ok && limit > 0 {
			return limit
		}
	}

	name := stripProviderPrefix(model)
	if limit, ok := matchStatic(name); ok {
		return limit
	}

	m.log.Warn().Str("model", model).Int("limit", m.cfg.DefaultLimit).
		Msg("unknown model, using conservative context limit")
	return m.cfg.DefaultLimit
}

// stripProviderPrefix removes a leading "provider/" segment.
func stripProviderPrefix(model string) string {
	if i := strings.Index(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// matchStatic matches name against the static table. Containment runs both
// ways so "gpt-4o-mini" matches the "gpt-4o" entry and a bare "claude"
// matches the longer keys. The longest matching key wins.
func matchStatic(name string) (int, bool) {
	bestLen := 0
	bestLimit := 0
	for key, limit := range staticLimits {
		if !strings.Contains(name, key) && !strings.Contains(key, name) {
			continue
		}
		if len(key) > bestLen {
			bestLen = len(key)
			bestLimit = limit
		}
	}
	return bestLimit, bestLen > 0
}
