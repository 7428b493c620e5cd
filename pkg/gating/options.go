package gating

import (
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures an Engine.
type Option func(*Engine)

// WithAllowList replaces the default allow-list. Trailing slashes are trimmed.
func WithAllowList(paths ...string) Option {
	return func(e *Engine) {
		list := make([]string, 0, len(paths))
		for _, p := range paths {
			if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
				list = append(list, p)
			}
		}
		e.allowList = list
	}
}

// WithPlanSelectionPath sets the redirect target for denied requests.
func WithPlanSelectionPath(path string) Option {
	return func(e *Engine) {
		if path != "" {
			e.planPath = path
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithRegisterer registers decision metrics with reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = newMetrics(reg)
	}
}
