package ratelimit

import (
	"strings"
)

// MatchEndpoint matches a request path and method to an endpoint
// configuration. Path matching supports prefix matching for patterns ending
// in "/" (e.g. "/admin/" matches "/admin/runs/{id}/fail"). Returns nil when
// nothing matches; the caller falls back to the global default.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	// Health and metrics are unlimited: the former is probed by
	// orchestration, the latter scraped on a schedule.
	if method == "GET" && (path == "/health" || path == "/metrics") {
		return &EndpointConfig{Limit: 0}
	}

	for i := range configs {
		config := &configs[i]
		if config.Path == path && config.Method == method {
			return config
		}
	}

	for i := range configs {
		config := &configs[i]
		if config.Method == method && strings.HasSuffix(config.Path, "/") &&
			strings.HasPrefix(path, config.Path) {
			return config
		}
	}

	return nil
}
