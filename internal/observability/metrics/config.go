package metrics

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Config labels every metric with the service identity.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) serviceName() string {
	name := strings.TrimSpace(c.ServiceName)
	if name == "" {
		return "signalway"
	}
	return name
}

func (c Config) environment() string {
	env := strings.TrimSpace(c.Environment)
	if env == "" {
		return "unknown"
	}
	return env
}

var sensitiveLabelKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"credential",
	"authorization",
}

// FilterAttributes drops metric attributes with sensitive keys.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.ToLower(strings.TrimSpace(string(attr.Key)))
		sensitive := false
		for _, needle := range sensitiveLabelKeys {
			if strings.Contains(key, needle) {
				sensitive = true
				break
			}
		}
		if sensitive {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
