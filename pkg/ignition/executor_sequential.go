package ignition

import "time"

// runSequential iterates signals in insertion order, awaiting one before
// starting the next (spec.md §4.5). When the policy denies continuation
// the remaining signals are never materialized into the result — the
// coordinator folds their names into the AggregateError's PendingSignals
// instead (spec.md §9, third open question).
func runSequential(ic *ignitionContext) *ignitionOutcome {
	opts := ic.opts
	scope := ic.scope
	policy := resolvePolicy(opts)

	total := len(ic.signals)
	results := make([]SignalResult, 0, total)
	outcome := &ignitionOutcome{}

	for i, s := range ic.signals {
		if scope.IsCancelled() {
			reason := scope.CancellationReason()
			for _, rest := range ic.signals[i:] {
				outcome.pending = append(outcome.pending, rest.Name)
				if reason == ReasonGlobalTimeout {
					// B2/§4.5: unstarted signals at global timeout are
					// emitted as Skipped, not silently dropped.
					res := skippedResult(rest.Name, nil)
					results = append(results, res)
					ic.onSignalCompleted(res)
				}
			}
			break
		}

		ic.onSignalStarted(s.Name)
		res := runSignal(scope, s, opts)
		results = append(results, res)
		ic.onSignalCompleted(res)

		pctx := PolicyContext{
			SignalResult:         res,
			CompletedSignals:     i + 1,
			TotalSignalCount:     total,
			ElapsedTime:          time.Since(ic.start),
			ExecutionMode:        ModeSequential,
			GlobalTimeoutElapsed: scope.CancellationReason() == ReasonGlobalTimeout,
		}
		if !policy.ShouldContinue(pctx) {
			scope.Cancel(ReasonBundleCancelled, res.Name)
			outcome.policyDenied = true
			outcome.deniedBy = res.Name
			for _, rest := range ic.signals[i+1:] {
				outcome.pending = append(outcome.pending, rest.Name)
			}
			break
		}
	}

	outcome.result = &Result{Results: results}
	return outcome
}
