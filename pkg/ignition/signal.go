package ignition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// SignalBody is the terminating computation a Signal wraps. It must return
// promptly once ctx is cancelled, though the coordinator tolerates bodies
// that keep running past a per-signal timeout when cancelIndividualOnTimeout
// is false — see TimeoutStrategy.
type SignalBody func(ctx context.Context) error

// Signal is a named, idempotent readiness unit. Its body is invoked at
// most once across all waiters; later Wait callers observe the same
// memoized outcome.
type Signal struct {
	Name    string
	Timeout *time.Duration
	Body    SignalBody

	// Stage groups this signal under ModeStaged; unstaged signals default
	// to stage 0 (StagedSignal in spec vocabulary).
	Stage int

	// scope and cancelScopeOnFailure make this a ScopedSignal: the signal
	// owns a CancellationScope and may cancel it when its body fails.
	scope                *CancellationScope
	cancelScopeOnFailure bool

	dependencyNames []string
	dependencyTypes []interface{}
	typeTag         interface{}

	makeOnce  sync.Once
	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}

	err         error
	startedAt   time.Time
	completedAt time.Time
}

// SignalOption configures a Signal at construction time.
type SignalOption func(*Signal)

// WithTimeout sets an optional per-signal timeout.
func WithTimeout(d time.Duration) SignalOption {
	return func(s *Signal) { s.Timeout = &d }
}

// WithStage assigns this signal to a stage for ModeStaged (StagedSignal).
func WithStage(stage int) SignalOption {
	return func(s *Signal) { s.Stage = stage }
}

// WithScope attaches a CancellationScope to this signal, optionally
// cancelling it when the body fails (ScopedSignal).
func WithScope(scope *CancellationScope, cancelOnFailure bool) SignalOption {
	return func(s *Signal) {
		s.scope = scope
		s.cancelScopeOnFailure = cancelOnFailure
	}
}

// DependsOnName declares a dependency by target signal name, resolved at
// graph-build time. Name resolution wins over type resolution when both
// are declared for the same signal.
func DependsOnName(name string) SignalOption {
	return func(s *Signal) { s.dependencyNames = append(s.dependencyNames, name) }
}

// DependsOnType declares a dependency on any registered signal tagged
// (via WithTypeTag) with the same dynamic type as sample.
func DependsOnType(sample interface{}) SignalOption {
	return func(s *Signal) { s.dependencyTypes = append(s.dependencyTypes, sample) }
}

// WithTypeTag marks a signal with a logical type, the Go analogue of the
// decorator-derived type metadata described in spec.md §9 ("custom
// decorators that derive dependency metadata from type annotations").
// tag's dynamic type, not its value, is what DependsOnType matches on;
// a zero-value marker struct is the idiomatic choice.
func WithTypeTag(tag interface{}) SignalOption {
	return func(s *Signal) { s.typeTag = tag }
}

// NewSignal builds a Signal. name must be non-empty and body non-nil;
// violations are configuration errors surfaced by whichever builder
// consumes the signal (GraphBuilder.AddSignal, Coordinator registration).
func NewSignal(name string, body SignalBody, opts ...SignalOption) *Signal {
	s := &Signal{Name: name, Body: body}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Signal) validate() error {
	if s.Name == "" {
		return configErrorf("signal", "signal name must be non-empty")
	}
	if s.Body == nil {
		return configErrorf("signal", "signal %q has a nil body", s.Name)
	}
	if s.Timeout != nil && *s.Timeout < 0 {
		return configErrorf("signal", "signal %q has a negative timeout %v", s.Name, *s.Timeout)
	}
	return nil
}

// initChannel lazily prepares the done channel so Done() is safe to call
// before the body has been started.
func (s *Signal) initChannel() {
	s.makeOnce.Do(func() {
		s.done = make(chan struct{})
	})
}

// Done returns the channel that closes once the body has terminated.
func (s *Signal) Done() <-chan struct{} {
	s.initChannel()
	return s.done
}

// ensureStarted launches the body exactly once, under ctx. Subsequent
// calls (even with a different ctx) are no-ops: the body that actually
// runs is always the one launched by the first caller to win the race.
func (s *Signal) ensureStarted(ctx context.Context) {
	s.initChannel()
	s.startOnce.Do(func() {
		s.startedAt = time.Now()
		s.started.Store(true)
		go func() {
			defer close(s.done)
			s.err = runBody(ctx, s.Body)
			s.completedAt = time.Now()
			if s.err != nil && s.cancelScopeOnFailure && s.scope != nil {
				s.scope.Cancel(ReasonScopeCancelled, s.Name)
			}
		}()
	})
}

// runBody recovers a panicking body into an error, so a single bad signal
// can never crash the coordinator (B4: "a signal whose body throws before
// yielding is classified Failed").
func runBody(ctx context.Context, body SignalBody) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return body(ctx)
}

type panicError struct{ value interface{} }

func (p panicError) Error() string {
	return "ignition: signal body panicked"
}

func (p panicError) Unwrap() error {
	if err, ok := p.value.(error); ok {
		return err
	}
	return nil
}

// Wait blocks until the body completes or waitCtx is cancelled. It never
// starts the body itself — callers that need to trigger execution use
// ensureStarted (executors do this); Wait is the shape external waiters
// such as a health endpoint use to observe a signal already in flight.
func (s *Signal) Wait(waitCtx context.Context) error {
	select {
	case <-s.Done():
		return s.err
	case <-waitCtx.Done():
		return waitCtx.Err()
	}
}

// hasStarted reports whether ensureStarted has ever been called.
func (s *Signal) hasStarted() bool {
	return s.started.Load()
}

// SignalFactory defers materialization of a Signal until ignition time,
// when a context supplied by the caller (e.g. a dependency-injection
// container) is available.
type SignalFactory struct {
	Name           string
	Timeout        *time.Duration
	Stage          int
	Create         func(ctx FactoryContext) (*Signal, error)
}

// NewSignalFactory builds a SignalFactory. create receives whatever
// external context the coordinator was configured with (FactoryContext).
func NewSignalFactory(name string, create func(ctx FactoryContext) (*Signal, error), opts ...func(*SignalFactory)) *SignalFactory {
	f := &SignalFactory{Name: name, Create: create}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// materialize calls Create exactly once and applies the factory's
// declared timeout/stage if the produced Signal didn't set its own.
func (f *SignalFactory) materialize(factoryCtx interface{}) (*Signal, error) {
	sig, err := f.Create(factoryCtx)
	if err != nil {
		return nil, err
	}
	if sig.Name == "" {
		sig.Name = f.Name
	}
	if sig.Timeout == nil {
		sig.Timeout = f.Timeout
	}
	if sig.Stage == 0 && f.Stage != 0 {
		sig.Stage = f.Stage
	}
	return sig, nil
}
