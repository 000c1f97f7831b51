package metrics

import (
	"github.com/tech-arch1tect/rentid/config"
	"go.uber.org/fx"
)

// ProvideMetrics returns nil when metrics are disabled; every method tolerates that.
func ProvideMetrics(cfg *config.Config) *Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return New()
}

var Module = fx.Options(
	fx.Provide(ProvideMetrics),
)
