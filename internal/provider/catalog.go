package provider

import "strings"

// StaticCatalog is a Catalog backed by a fixed model table. It covers the
// well-known hosted models; unknown models miss and callers fall back to
// their own defaults.
type StaticCatalog struct {
	models map[string]ModelInfo
}

// NewStaticCatalog builds the default catalog.
func NewStaticCatalog() *StaticCatalog {
	c := &StaticCatalog{models: make(map[string]ModelInfo)}
	for _, info := range []ModelInfo{
		{ID: "claude-sonnet-4-20250514", ContextWindow: 200000, MaxOutputTokens: 64000},
		{ID: "claude-opus-4-20250514", ContextWindow: 200000, MaxOutputTokens: 32000},
		{ID: "claude-3-5-sonnet-20241022", ContextWindow: 200000, MaxOutputTokens: 8192},
		{ID: "claude-3-5-haiku-20241022", ContextWindow: 200000, MaxOutputTokens: 8192},
		{ID: "gpt-4o", ContextWindow: 128000, MaxOutputTokens: 16384},
		{ID: "gpt-4o-mini", ContextWindow: 128000, MaxOutputTokens: 16384},
		{ID: "gpt-4-turbo", ContextWindow: 128000, MaxOutputTokens: 4096},
		{ID: "o1", ContextWindow: 200000, MaxOutputTokens: 100000},
		{ID: "o1-mini", ContextWindow: 128000, MaxOutputTokens: 65536},
		{ID: "gemini-2.0-flash", ContextWindow: 1048576, MaxOutputTokens: 8192},
		{ID: "gemini-1.5-pro", ContextWindow: 2097152, MaxOutputTokens: 8192},
	} {
		c.models[info.ID] = info
	}
	return c
}

// Lookup resolves a model, tolerating provider prefixes and date-suffixed
// variants ("anthropic/claude-sonnet-4" matches "claude-sonnet-4-20250514").
func (c *StaticCatalog) Lookup(model string) (ModelInfo, bool) {
	name := stripProviderPrefix(model)
	if info, ok := c.models[name]; ok {
		return info, true
	}
	for id, info := range c.models {
		if strings.HasPrefix(id, name) || strings.HasPrefix(name, id) {
			return info, true
		}
	}
	return ModelInfo{}, false
}
