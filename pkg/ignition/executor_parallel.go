package ignition

import "time"

// runParallel spawns every signal concurrently under the root scope,
// optionally gated by MaxDegreeOfParallelism (spec.md §4.4).
func runParallel(ic *ignitionContext) *ignitionOutcome {
	opts := ic.opts
	scope := ic.scope
	policy := resolvePolicy(opts)
	limiter := newDegreeLimiter(opts.MaxDegreeOfParallelism)

	total := len(ic.signals)
	resultsCh := make(chan SignalResult, total)

	for _, s := range ic.signals {
		s := s
		go func() {
			if err := limiter.acquire(scope.Context()); err != nil {
				resultsCh <- classifyNeverStarted(s, scope)
				return
			}
			defer limiter.release()
			ic.onSignalStarted(s.Name)
			resultsCh <- runSignal(scope, s, opts)
		}()
	}

	byName := make(map[string]SignalResult, total)
	completed := 0
	outcome := &ignitionOutcome{}
	for completed < total {
		res := <-resultsCh
		completed++
		byName[res.Name] = res
		ic.onSignalCompleted(res)

		if outcome.policyDenied {
			continue
		}
		pctx := PolicyContext{
			SignalResult:         res,
			CompletedSignals:     completed,
			TotalSignalCount:     total,
			ElapsedTime:          time.Since(ic.start),
			ExecutionMode:        ModeParallel,
			GlobalTimeoutElapsed: scope.CancellationReason() == ReasonGlobalTimeout,
		}
		if !policy.ShouldContinue(pctx) {
			scope.Cancel(ReasonBundleCancelled, res.Name)
			outcome.policyDenied = true
			outcome.deniedBy = res.Name
		}
	}

	results := make([]SignalResult, 0, total)
	for _, s := range ic.signals {
		results = append(results, byName[s.Name])
	}
	outcome.result = &Result{Results: results}
	return outcome
}
