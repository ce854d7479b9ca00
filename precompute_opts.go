package prefixgz

import "log/slog"

// precomputeConfig holds configuration for Precompute.
type precomputeConfig struct {
	logger   *slog.Logger
	progress ProgressFunc
	engine   Engine
	ordering Ordering
}

// Option configures Precompute.
type Option func(*precomputeConfig)

// WithLogger sets the logger for the run.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *precomputeConfig) {
		cfg.logger = logger
	}
}

// WithProgress sets a callback that receives an event for every chunk and
// checkpoint.
func WithProgress(fn ProgressFunc) Option {
	return func(cfg *precomputeConfig) {
		cfg.progress = fn
	}
}

// WithEngine selects the trailer engine. The default is EngineForked.
func WithEngine(e Engine) Option {
	return func(cfg *precomputeConfig) {
		cfg.engine = e
	}
}

// WithOrdering controls how an entry whose mtime is lower than the current
// index state is handled. The default, OrderStrict, fails the run;
// OrderPermissive folds such entries into the current chunk.
func WithOrdering(o Ordering) Option {
	return func(cfg *precomputeConfig) {
		cfg.ordering = o
	}
}
