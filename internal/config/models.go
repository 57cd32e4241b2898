package config

// ModelsConfig describes the models the gateway is willing to route to.
type ModelsConfig struct {
	Models             map[string]ModelInfo `yaml:"models"`
	DefaultTemperature float64              `yaml:"default_temperature"`
}

// ModelInfo carries per-model routing quirks. Reasoning models never stream
// and ignore the requested temperature.
type ModelInfo struct {
	DisplayName string `yaml:"display_name"`
	Reasoning   bool   `yaml:"reasoning"`
	TokenLimit  int    `yaml:"token_limit"`
}

// Lookup returns the model entry and whether it is configured.
func (m *ModelsConfig) Lookup(id string) (ModelInfo, bool) {
	info, ok := m.Models[id]
	return info, ok
}
