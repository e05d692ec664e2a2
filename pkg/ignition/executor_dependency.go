package ignition

import (
	"sync/atomic"
	"time"
)

// runDependencyAware schedules signals from a Graph using a Kahn-style
// ready queue: a node becomes ready the instant its unresolved dependency
// count reaches zero, and failure cascades to direct dependents one hop
// at a time (a dependent's own Skipped/Cancelled terminal state is itself
// an abnormal terminal state that cascades further), per spec.md §4.6.
func runDependencyAware(ic *ignitionContext) *ignitionOutcome {
	opts := ic.opts
	scope := ic.scope
	graph := ic.graph
	policy := resolvePolicy(opts)
	limiter := newDegreeLimiter(opts.MaxDegreeOfParallelism)

	signals := graph.Signals()
	total := len(signals)
	byName := make(map[string]*Signal, total)
	for _, s := range signals {
		byName[s.Name] = s
	}

	unresolved := make(map[string]int, total)
	for _, s := range signals {
		unresolved[s.Name] = len(graph.Dependencies(s))
	}

	terminal := make(map[string]SignalResult, total)
	resultsCh := make(chan SignalResult, total)
	var denied atomic.Bool
	outcome := &ignitionOutcome{}

	launch := func(s *Signal) {
		go func() {
			if err := limiter.acquire(scope.Context()); err != nil {
				resultsCh <- classifyNeverStarted(s, scope)
				return
			}
			defer limiter.release()
			if denied.Load() {
				resultsCh <- classifyNeverStarted(s, scope)
				return
			}
			ic.onSignalStarted(s.Name)
			resultsCh <- runSignal(scope, s, opts)
		}()
	}

	for _, s := range signals {
		if unresolved[s.Name] == 0 {
			launch(s)
		}
	}

	// cascade marks dep as terminal with a doomed status derived from
	// cause's failure, then recurses into dep's own dependents — a
	// doomed node never runs, so its dependents learn about it, not
	// about the original ancestor failure (matches spec.md §8 scenario 5).
	var cascade func(cause *Signal)
	cascade = func(cause *Signal) {
		for _, dep := range graph.Dependents(cause) {
			if prior, already := terminal[dep.Name]; already {
				// dep was already doomed through another parent; cause is a
				// second direct doomed parent, so it is recorded too.
				if prior.Status == StatusSkipped || prior.CancellationReason == ReasonDependencyFailed {
					prior.FailedDependencies = append(prior.FailedDependencies, cause.Name)
					terminal[dep.Name] = prior
				}
				continue
			}
			var doomed SignalResult
			if opts.CancelDependentsOnFailure {
				doomed = cancelledByDependencyResult(dep.Name, cause.Name, []string{cause.Name})
			} else {
				doomed = skippedResult(dep.Name, []string{cause.Name})
			}
			terminal[dep.Name] = doomed
			ic.onSignalCompleted(doomed)
			cascade(dep)
		}
	}

	completed := 0
	for completed < total {
		res := <-resultsCh
		completed++
		terminal[res.Name] = res
		ic.onSignalCompleted(res)

		cause := byName[res.Name]
		if res.Status == StatusSucceeded {
			for _, dep := range graph.Dependents(cause) {
				unresolved[dep.Name]--
				if unresolved[dep.Name] == 0 {
					if _, already := terminal[dep.Name]; !already {
						launch(dep)
					}
				}
			}
		} else {
			before := len(terminal)
			cascade(cause)
			completed += len(terminal) - before
		}

		if !denied.Load() {
			pctx := PolicyContext{
				SignalResult:         res,
				CompletedSignals:     completed,
				TotalSignalCount:     total,
				ElapsedTime:          time.Since(ic.start),
				ExecutionMode:        ModeDependencyAware,
				GlobalTimeoutElapsed: scope.CancellationReason() == ReasonGlobalTimeout,
			}
			if !policy.ShouldContinue(pctx) {
				scope.Cancel(ReasonBundleCancelled, res.Name)
				denied.Store(true)
				outcome.policyDenied = true
				outcome.deniedBy = res.Name
			}
		}
	}

	results := make([]SignalResult, 0, total)
	for _, s := range signals {
		results = append(results, terminal[s.Name])
	}
	outcome.result = &Result{Results: results}
	return outcome
}
