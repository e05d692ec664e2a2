package ignition

import "time"

// MetricsSink receives signal and ignition timing/status observations.
// Implementations must not block meaningfully; the default no-op sink is
// used when Options.Metrics is nil.
type MetricsSink interface {
	ObserveSignal(name string, status SignalStatus, d time.Duration)
	ObserveIgnition(mode ExecutionMode, d time.Duration, timedOut bool)
}

type noopMetricsSink struct{}

func (noopMetricsSink) ObserveSignal(string, SignalStatus, time.Duration) {}
func (noopMetricsSink) ObserveIgnition(ExecutionMode, time.Duration, bool) {}

// LifecycleHooks are optional, DI-supplied callbacks invoked around an
// ignition. Every hook's error is logged and swallowed; none can alter
// coordinator state or abort the ignition.
type LifecycleHooks struct {
	OnBeforeIgnition func() error
	OnAfterIgnition  func(result *Result) error
	OnBeforeSignal   func(name string) error
	OnAfterSignal    func(result SignalResult) error
}

// Logger is the structured logging contract the coordinator uses for
// lifecycle transitions and swallowed hook/handler failures. Satisfied by
// pkg/logger.Logger without modification.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// Options configures a coordinator's ignition. Zero value is a valid,
// fully-defaulted configuration (Parallel mode, FailFast policy). Note
// that GlobalTimeout's zero value is not "disabled" — per spec it means
// an immediate cutoff (B2): only signals that complete essentially
// synchronously survive. Callers that want an effectively unbounded
// ignition should set a deliberately large GlobalTimeout.
type Options struct {
	ExecutionMode ExecutionMode
	Policy        PolicyKind
	CustomPolicy  Policy

	StagePolicy StagePolicy

	GlobalTimeout        time.Duration
	CancelOnGlobalTimeout bool

	CancelIndividualOnTimeout bool
	CancelDependentsOnFailure bool

	// MaxDegreeOfParallelism caps concurrent signal execution; zero means
	// unset (no limit), not "run nothing" — only a negative value is a
	// configuration error. See DESIGN.md's resolved-questions ledger.
	MaxDegreeOfParallelism int

	TimeoutStrategy TimeoutStrategy

	LifecycleHooks LifecycleHooks

	Metrics MetricsSink
	Logger  Logger

	// FactoryContext is handed unchanged to every SignalFactory.Create call.
	FactoryContext FactoryContext
}

// Validate rejects invalid option values at set-time, per spec.md §6.
func (o *Options) Validate() error {
	if o.ExecutionMode != "" && !o.ExecutionMode.valid() {
		return configErrorf("options", "unknown execution mode %q", o.ExecutionMode)
	}
	if o.GlobalTimeout < 0 {
		return configErrorf("options", "globalTimeout must be non-negative, got %v", o.GlobalTimeout)
	}
	if o.MaxDegreeOfParallelism < 0 {
		return configErrorf("options", "maxDegreeOfParallelism must be positive when set, got %d", o.MaxDegreeOfParallelism)
	}
	if err := o.StagePolicy.validate(); err != nil {
		return err
	}
	return nil
}

// withDefaults returns a copy of o with zero-value fields filled in.
func (o Options) withDefaults() Options {
	if o.ExecutionMode == "" {
		o.ExecutionMode = ModeParallel
	}
	if o.Policy == "" && o.CustomPolicy == nil {
		o.Policy = PolicyFailFast
	}
	if o.StagePolicy.Kind == "" {
		o.StagePolicy.Kind = StageAllMustSucceed
	}
	if o.TimeoutStrategy == nil {
		o.TimeoutStrategy = DefaultTimeoutStrategy{}
	}
	if o.Metrics == nil {
		o.Metrics = noopMetricsSink{}
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}
