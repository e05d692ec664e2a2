package ignition

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Coordinator drives a registered set of signals to a terminal Result. It
// is single-use: the first WaitAll call materializes the ignition, every
// later call (concurrent or sequential) observes the same cached outcome,
// per spec.md §4.10.
type Coordinator struct {
	opts Options

	signals   []*Signal
	factories []*SignalFactory
	graph     *Graph

	onSignalStartedHandlers        []func(name string)
	onSignalCompletedHandlers      []func(SignalResult)
	onGlobalTimeoutHandlers        []func()
	onCoordinatorCompletedHandlers []func(*Result)

	mu      sync.Mutex
	partial map[string]SignalResult

	driveOnce sync.Once
	done      chan struct{}

	state  CoordinatorState
	result *Result
	err    error
}

// CoordinatorOption configures a Coordinator at construction time.
type CoordinatorOption func(*Coordinator) error

// WithOptions sets the coordinator's execution Options.
func WithOptions(o Options) CoordinatorOption {
	return func(c *Coordinator) error {
		c.opts = o
		return nil
	}
}

// WithSignal registers one eagerly-constructed signal.
func WithSignal(s *Signal) CoordinatorOption {
	return func(c *Coordinator) error {
		if err := s.validate(); err != nil {
			return err
		}
		c.signals = append(c.signals, s)
		return nil
	}
}

// WithSignals registers several eagerly-constructed signals.
func WithSignals(signals ...*Signal) CoordinatorOption {
	return func(c *Coordinator) error {
		for _, s := range signals {
			if err := WithSignal(s)(c); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithFactory registers a SignalFactory, materialized once at ignition
// time against the coordinator's FactoryContext.
func WithFactory(f *SignalFactory) CoordinatorOption {
	return func(c *Coordinator) error {
		c.factories = append(c.factories, f)
		return nil
	}
}

// WithGraph supplies a pre-built dependency Graph. Required for
// ModeDependencyAware (spec.md §4.6, "graph-less DependencyAware mode is
// an error"); when set, the graph's own signals are what gets executed —
// WithSignal/WithFactory registrations are ignored in every mode.
func WithGraph(g *Graph) CoordinatorOption {
	return func(c *Coordinator) error {
		c.graph = g
		return nil
	}
}

// OnSignalStarted subscribes to the SignalStarted event.
func OnSignalStarted(fn func(name string)) CoordinatorOption {
	return func(c *Coordinator) error {
		c.onSignalStartedHandlers = append(c.onSignalStartedHandlers, fn)
		return nil
	}
}

// OnSignalCompleted subscribes to the SignalCompleted event.
func OnSignalCompleted(fn func(SignalResult)) CoordinatorOption {
	return func(c *Coordinator) error {
		c.onSignalCompletedHandlers = append(c.onSignalCompletedHandlers, fn)
		return nil
	}
}

// OnGlobalTimeoutReached subscribes to the GlobalTimeoutReached event.
func OnGlobalTimeoutReached(fn func()) CoordinatorOption {
	return func(c *Coordinator) error {
		c.onGlobalTimeoutHandlers = append(c.onGlobalTimeoutHandlers, fn)
		return nil
	}
}

// OnCoordinatorCompleted subscribes to the CoordinatorCompleted event.
func OnCoordinatorCompleted(fn func(*Result)) CoordinatorOption {
	return func(c *Coordinator) error {
		c.onCoordinatorCompletedHandlers = append(c.onCoordinatorCompletedHandlers, fn)
		return nil
	}
}

// New builds a Coordinator, validating Options and mode/graph consistency
// at configuration time.
func New(opts ...CoordinatorOption) (*Coordinator, error) {
	c := &Coordinator{
		state:   StateNotStarted,
		done:    make(chan struct{}),
		partial: make(map[string]SignalResult),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.opts = c.opts.withDefaults()
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}
	if c.opts.ExecutionMode == ModeDependencyAware && c.graph == nil {
		return nil, ErrNoGraph
	}
	return c, nil
}

// State reports the coordinator's current lifecycle state.
func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetResult returns the last materialized Result. It never blocks or
// drives the ignition; callers that need to wait use WaitAll. Per
// spec.md §9 (resolved): a result is always returned once any terminal
// state is reached, including after WaitAll has returned an
// AggregateError for a FailFast-style denial.
func (c *Coordinator) GetResult() (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateNotStarted || c.state == StateRunning {
		return nil, fmt.Errorf("ignition: result not available in state %s", c.state)
	}
	return c.result, nil
}

// WaitAll drives the ignition to completion, or returns the cached result
// if already driven. Concurrent callers share a single in-flight drive
// (spec.md §4.10, L2).
func (c *Coordinator) WaitAll(ctx context.Context) (*Result, error) {
	c.driveOnce.Do(func() {
		c.drive(ctx)
	})
	<-c.done
	return c.result, c.err
}

func (c *Coordinator) setState(s CoordinatorState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) drive(ctx context.Context) {
	defer close(c.done)
	c.setState(StateRunning)
	start := time.Now()

	if err := c.callBeforeIgnition(); err != nil {
		c.opts.Logger.Warn("onBeforeIgnition hook failed", "error", err)
	}

	signals, err := c.materializeAll()
	if err != nil {
		c.finish(nil, err, start)
		return
	}

	rootScope, err := NewRootScope(ctx, "ignition")
	if err != nil {
		c.finish(nil, err, start)
		return
	}
	defer rootScope.Release()

	ic := &ignitionContext{
		signals:           signals,
		graph:             c.graph,
		opts:              &c.opts,
		scope:             rootScope,
		start:             start,
		onSignalStarted:   c.emitSignalStarted,
		onSignalCompleted: c.emitSignalCompleted,
	}

	runFn := dispatchExecutor(c.opts.ExecutionMode)

	timedOutGlobally := false
	var outcome *ignitionOutcome

	if len(signals) == 0 {
		// Nothing can time out; B1 requires a clean Completed state
		// regardless of GlobalTimeout's value.
		outcome = runFn(ic)
	} else {
		outcomeCh := make(chan *ignitionOutcome, 1)
		go func() { outcomeCh <- runFn(ic) }()

		timer := time.NewTimer(c.opts.GlobalTimeout)
		defer timer.Stop()

		select {
		case outcome = <-outcomeCh:
		case <-timer.C:
			timedOutGlobally = true
			c.emitGlobalTimeoutReached()
			if c.opts.CancelOnGlobalTimeout {
				rootScope.Cancel(ReasonGlobalTimeout, "")
				outcome = <-outcomeCh
			} else {
				outcome = c.snapshotOutcome()
			}
		}
	}

	result := outcome.result
	if result == nil {
		result = &Result{}
	}
	result.TotalDuration = time.Since(start)
	result.TimedOut = timedOutGlobally

	c.opts.Metrics.ObserveIgnition(c.opts.ExecutionMode, result.TotalDuration, result.TimedOut)

	var driveErr error
	if outcome.policyDenied {
		driveErr = c.buildAggregateError(result, outcome)
	}

	if err := c.callAfterIgnition(result); err != nil {
		c.opts.Logger.Warn("onAfterIgnition hook failed", "error", err)
	}

	c.finish(result, driveErr, start)
}

// snapshotOutcome assembles a partial Result from whatever signals have
// completed so far, for the non-cancelling global timeout path (spec.md
// §4.8: "the coordinator stops waiting and returns partial results").
func (c *Coordinator) snapshotOutcome() *ignitionOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make([]SignalResult, 0, len(c.partial))
	for _, r := range c.partial {
		results = append(results, r)
	}
	return &ignitionOutcome{result: &Result{Results: results}}
}

func (c *Coordinator) buildAggregateError(result *Result, outcome *ignitionOutcome) error {
	var failures []SignalResult
	for _, r := range result.Results {
		if r.Status == StatusFailed || r.Status == StatusTimedOut {
			failures = append(failures, r)
		}
	}
	return &AggregateError{Failures: failures, PendingSignals: outcome.pending}
}

func (c *Coordinator) finish(result *Result, err error, start time.Time) {
	if result == nil {
		result = &Result{TotalDuration: time.Since(start)}
	}
	state := deriveState(result, err)

	c.mu.Lock()
	c.result = result
	c.err = err
	c.state = state
	c.mu.Unlock()

	c.emitCoordinatorCompleted(result)
}

// deriveState implements spec.md §4.10's terminal classification: any
// Failed signal (or a raised aggregate) maps to Failed; else any TimedOut
// signal or the global flag maps to TimedOut; else Completed.
func deriveState(result *Result, err error) CoordinatorState {
	if err != nil {
		return StateFailed
	}
	for _, r := range result.Results {
		if r.Status == StatusFailed {
			return StateFailed
		}
	}
	if result.TimedOut {
		return StateTimedOut
	}
	for _, r := range result.Results {
		if r.Status == StatusTimedOut {
			return StateTimedOut
		}
	}
	return StateCompleted
}

func dispatchExecutor(mode ExecutionMode) func(*ignitionContext) *ignitionOutcome {
	switch mode {
	case ModeSequential:
		return runSequential
	case ModeDependencyAware:
		return runDependencyAware
	case ModeStaged:
		return runStaged
	default:
		return runParallel
	}
}

// materializeAll resolves the effective signal list driving this
// ignition: a pre-built Graph's signals take precedence (DependencyAware),
// otherwise eagerly-registered signals followed by factory products.
func (c *Coordinator) materializeAll() ([]*Signal, error) {
	if c.graph != nil {
		return c.graph.Signals(), nil
	}
	all := make([]*Signal, 0, len(c.signals)+len(c.factories))
	all = append(all, c.signals...)
	for _, f := range c.factories {
		sig, err := f.materialize(c.opts.FactoryContext)
		if err != nil {
			return nil, err
		}
		if err := sig.validate(); err != nil {
			return nil, err
		}
		all = append(all, sig)
	}
	return all, nil
}

func (c *Coordinator) emitSignalStarted(name string) {
	if hook := c.opts.LifecycleHooks.OnBeforeSignal; hook != nil {
		if err := safeHook(func() error { return hook(name) }); err != nil {
			c.opts.Logger.Warn("onBeforeSignal hook failed", "signal", name, "error", err)
		}
	}
	for _, h := range c.onSignalStartedHandlers {
		h := h
		safeEmit(c.opts.Logger, "SignalStarted", func() { h(name) })
	}
}

func (c *Coordinator) emitSignalCompleted(res SignalResult) {
	c.mu.Lock()
	c.partial[res.Name] = res
	c.mu.Unlock()

	c.opts.Metrics.ObserveSignal(res.Name, res.Status, res.Duration)

	if hook := c.opts.LifecycleHooks.OnAfterSignal; hook != nil {
		if err := safeHook(func() error { return hook(res) }); err != nil {
			c.opts.Logger.Warn("onAfterSignal hook failed", "signal", res.Name, "error", err)
		}
	}
	for _, h := range c.onSignalCompletedHandlers {
		h := h
		safeEmit(c.opts.Logger, "SignalCompleted", func() { h(res) })
	}
}

func (c *Coordinator) emitGlobalTimeoutReached() {
	for _, h := range c.onGlobalTimeoutHandlers {
		h := h
		safeEmit(c.opts.Logger, "GlobalTimeoutReached", func() { h() })
	}
}

func (c *Coordinator) emitCoordinatorCompleted(result *Result) {
	for _, h := range c.onCoordinatorCompletedHandlers {
		h := h
		safeEmit(c.opts.Logger, "CoordinatorCompleted", func() { h(result) })
	}
}

func (c *Coordinator) callBeforeIgnition() error {
	hook := c.opts.LifecycleHooks.OnBeforeIgnition
	if hook == nil {
		return nil
	}
	return safeHook(hook)
}

func (c *Coordinator) callAfterIgnition(result *Result) error {
	hook := c.opts.LifecycleHooks.OnAfterIgnition
	if hook == nil {
		return nil
	}
	return safeHook(func() error { return hook(result) })
}

// safeHook recovers a panicking lifecycle hook into an error, so one bad
// hook can never crash the coordinator (spec.md §4.10: "exceptions from
// hooks are swallowed with warning").
func safeHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// safeEmit recovers a panicking event handler, logging rather than
// propagating (spec.md §4.10: "handler exceptions are caught and logged,
// never propagated to callers").
func safeEmit(logger Logger, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("ignition: event handler panicked", "event", event, "recover", r)
		}
	}()
	fn()
}
