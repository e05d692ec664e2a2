package ignition

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ignitionOutcome is what each mode-specific run function produces: the
// structural Result plus whether a policy denied continuation (which
// drives the coordinator's aggregate-error decision) and the names of
// signals that never started.
type ignitionOutcome struct {
	result       *Result
	policyDenied bool
	deniedBy     string
	pending      []string
}

// ignitionContext bundles everything an executor needs: the signals (or
// graph), the root cancellation scope, options, and hooks for reporting
// progress back to the coordinator.
type ignitionContext struct {
	signals []*Signal
	graph   *Graph
	opts    *Options
	scope   *CancellationScope
	start   time.Time

	onSignalStarted   func(name string)
	onSignalCompleted func(SignalResult)
}

// degreeLimiter gates concurrent signal starts when MaxDegreeOfParallelism
// is set, using the idiomatic weighted semaphore from golang.org/x/sync
// rather than a hand-rolled counting channel.
type degreeLimiter struct {
	sem *semaphore.Weighted
}

func newDegreeLimiter(max int) *degreeLimiter {
	if max <= 0 {
		return &degreeLimiter{}
	}
	return &degreeLimiter{sem: semaphore.NewWeighted(int64(max))}
}

func (d *degreeLimiter) acquire(ctx context.Context) error {
	if d.sem == nil {
		return nil
	}
	return d.sem.Acquire(ctx, 1)
}

func (d *degreeLimiter) release() {
	if d.sem == nil {
		return
	}
	d.sem.Release(1)
}

// runSignal starts (idempotently) and awaits a single signal, applying
// the configured TimeoutStrategy and classifying the outcome per
// spec.md §4.4/§4.8. It never blocks past its own classification point:
// callers that abandon a still-running body simply stop selecting on it.
func runSignal(scope *CancellationScope, s *Signal, opts *Options) SignalResult {
	timeout, cancelImmediately := opts.TimeoutStrategy.GetTimeout(s, opts)

	bodyCtx := scope.Context()
	if timeout != nil && cancelImmediately {
		var cancel context.CancelFunc
		bodyCtx, cancel = context.WithTimeout(scope.Context(), *timeout)
		defer cancel()
	}

	s.ensureStarted(bodyCtx)

	var timeoutCh <-chan time.Time
	if timeout != nil {
		timer := time.NewTimer(*timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-s.Done():
		return classifyCompleted(s, scope)
	case <-timeoutCh:
		return classifyInFlightTimeout(s)
	case <-scope.Token():
		return classifyInFlightScopeCancelled(s, scope)
	}
}

// classifyCompleted reads a signal's memoized outcome after s.Done() has
// closed; the channel close happens-before this read, so s.err/startedAt/
// completedAt are safe without locks.
func classifyCompleted(s *Signal, scope *CancellationScope) SignalResult {
	duration := s.completedAt.Sub(s.startedAt)
	base := SignalResult{
		Name:        s.Name,
		Duration:    duration,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
	}

	if s.err == nil {
		base.Status = StatusSucceeded
		base.CancellationReason = ReasonNone
		return base
	}

	// Scope cancellation outranks in-flight classification: a body that
	// fails while its scope is already cancelled is reported by the
	// scope's reason, never as a plain Failed.
	if scope.IsCancelled() {
		reason := scope.CancellationReason()
		if reason == ReasonGlobalTimeout {
			base.Status = StatusTimedOut
			base.CancellationReason = ReasonGlobalTimeout
			return base
		}
		base.Status = StatusCancelled
		base.CancellationReason = reason
		base.CancelledBySignal = scope.TriggeringSignalName()
		base.Exception = s.err
		return base
	}

	if errors.Is(s.err, context.DeadlineExceeded) {
		base.Status = StatusTimedOut
		base.CancellationReason = ReasonPerSignalTimeout
		return base
	}

	base.Status = StatusFailed
	base.CancellationReason = ReasonNone
	base.Exception = s.err
	return base
}

// classifyInFlightTimeout handles the select branch where the per-signal
// timer fired before the body completed. The body may or may not have
// been cancelled (TimeoutStrategy.cancelImmediately); either way the
// classification is fixed the moment the timer fires.
func classifyInFlightTimeout(s *Signal) SignalResult {
	return SignalResult{
		Name:               s.Name,
		Status:             StatusTimedOut,
		Duration:           time.Since(s.startedAt),
		CancellationReason: ReasonPerSignalTimeout,
		StartedAt:          s.startedAt,
		CompletedAt:        time.Now(),
	}
}

// classifyInFlightScopeCancelled handles the select branch where the
// scope was cancelled before the body completed.
func classifyInFlightScopeCancelled(s *Signal, scope *CancellationScope) SignalResult {
	reason := scope.CancellationReason()
	status := StatusCancelled
	if reason == ReasonGlobalTimeout {
		status = StatusTimedOut
	}
	return SignalResult{
		Name:               s.Name,
		Status:             status,
		Duration:           time.Since(s.startedAt),
		CancellationReason: reason,
		CancelledBySignal:  scope.TriggeringSignalName(),
		StartedAt:          s.startedAt,
		CompletedAt:        time.Now(),
	}
}

// classifyNeverStarted builds a terminal result for a signal that was
// still waiting for a concurrency permit when its scope was cancelled —
// its body was never invoked.
func classifyNeverStarted(s *Signal, scope *CancellationScope) SignalResult {
	reason := scope.CancellationReason()
	status := StatusCancelled
	if reason == ReasonGlobalTimeout {
		status = StatusTimedOut
	}
	return SignalResult{
		Name:               s.Name,
		Status:             status,
		CancellationReason: reason,
		CancelledBySignal:  scope.TriggeringSignalName(),
	}
}

// skippedResult builds a Skipped SignalResult for a signal whose body was
// never invoked, e.g. an unstarted dependent after an upstream failure.
func skippedResult(name string, failedDependencies []string) SignalResult {
	return SignalResult{
		Name:               name,
		Status:             StatusSkipped,
		CancellationReason: ReasonNone,
		FailedDependencies: failedDependencies,
	}
}

// cancelledByDependencyResult builds a Cancelled SignalResult for a
// dependent that is cancelled (rather than skipped) after an upstream
// failure, under cancelDependentsOnFailure=true.
func cancelledByDependencyResult(name, cancelledBy string, failedDependencies []string) SignalResult {
	return SignalResult{
		Name:               name,
		Status:             StatusCancelled,
		CancellationReason: ReasonDependencyFailed,
		CancelledBySignal:  cancelledBy,
		FailedDependencies: failedDependencies,
	}
}
