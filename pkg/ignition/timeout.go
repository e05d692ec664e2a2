package ignition

import "time"

// FactoryContext is whatever external, DI-style context a SignalFactory
// needs at ignition time (a service container, a request-scoped config,
// ...). The coordinator treats it as opaque and injects it unchanged into
// every factory it materializes.
type FactoryContext interface{}

// TimeoutStrategy resolves the effective timeout and cancellation policy
// for a signal. It must be pure and must not block.
type TimeoutStrategy interface {
	GetTimeout(signal *Signal, opts *Options) (timeout *time.Duration, cancelImmediately bool)
}

// DefaultTimeoutStrategy returns the signal's own declared timeout and
// defers cancellation behavior to Options.CancelIndividualOnTimeout.
type DefaultTimeoutStrategy struct{}

func (DefaultTimeoutStrategy) GetTimeout(signal *Signal, opts *Options) (*time.Duration, bool) {
	return signal.Timeout, opts.CancelIndividualOnTimeout
}

// TimeoutStrategyFunc adapts a function to TimeoutStrategy.
type TimeoutStrategyFunc func(signal *Signal, opts *Options) (*time.Duration, bool)

func (f TimeoutStrategyFunc) GetTimeout(signal *Signal, opts *Options) (*time.Duration, bool) {
	return f(signal, opts)
}
