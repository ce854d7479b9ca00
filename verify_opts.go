package prefixgz

import "log/slog"

// verifyConfig holds configuration for Verify.
type verifyConfig struct {
	logger      *slog.Logger
	progress    ProgressFunc
	concurrency int
}

// VerifyOption configures Verify.
type VerifyOption func(*verifyConfig)

// WithVerifyLogger sets the logger for verification.
// If not set, logging is disabled.
func WithVerifyLogger(logger *slog.Logger) VerifyOption {
	return func(cfg *verifyConfig) {
		cfg.logger = logger
	}
}

// WithVerifyProgress sets a callback that receives a StageVerifying event
// for every checkpoint that passes.
func WithVerifyProgress(fn ProgressFunc) VerifyOption {
	return func(cfg *verifyConfig) {
		cfg.progress = fn
	}
}

// WithConcurrency sets how many checkpoints are verified at once.
// Values below 1 use GOMAXPROCS.
func WithConcurrency(n int) VerifyOption {
	return func(cfg *verifyConfig) {
		cfg.concurrency = n
	}
}
