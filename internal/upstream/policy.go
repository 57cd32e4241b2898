package upstream

// DefaultTemperature is substituted when the caller omits a temperature
// and the model configuration does not override the default.
const DefaultTemperature = 0.7

// StreamConfig is the resolved transport configuration for a completion.
type StreamConfig struct {
	Stream      bool
	Temperature float64
}

// ResolveStreamConfig decides how a completion is transported. Reasoning
// models reject both streaming and non-default temperatures, so their
// requests are always forced to a blocking call at temperature 1 regardless
// of what the caller asked for. Everything else passes through, with
// defaultTemp substituted only when the caller omitted a temperature.
// A zero defaultTemp falls back to DefaultTemperature.
func ResolveStreamConfig(reasoning bool, wantStream bool, temperature *float64, defaultTemp float64) StreamConfig {
	if reasoning {
		return StreamConfig{Stream: false, Temperature: 1}
	}
	if defaultTemp == 0 {
		defaultTemp = DefaultTemperature
	}
	cfg := StreamConfig{Stream: wantStream, Temperature: defaultTemp}
	if temperature != nil {
		cfg.Temperature = *temperature
	}
	return cfg
}
