package ignition

import (
	"sort"
	"sync"
	"time"
)

// runStaged partitions signals by Stage (unstaged defaults to 0) and drives
// stages in ascending order, dispatching inter-stage progression through
// StagePolicy (spec.md §4.7). EarlyPromotion can start the next stage
// while the current one still has signals in flight; every other policy
// decides whether to advance only once its stage has fully completed.
func runStaged(ic *ignitionContext) *ignitionOutcome {
	opts := ic.opts
	scope := ic.scope
	limiter := newDegreeLimiter(opts.MaxDegreeOfParallelism)

	byStage := map[int][]*Signal{}
	for _, s := range ic.signals {
		byStage[s.Stage] = append(byStage[s.Stage], s)
	}
	var stageNumbers []int
	for n := range byStage {
		stageNumbers = append(stageNumbers, n)
	}
	sort.Ints(stageNumbers)

	n := len(stageNumbers)
	started := make([]sync.Once, n)
	doneCh := make([]chan struct{}, n)
	for i := range doneCh {
		doneCh[i] = make(chan struct{})
	}
	stageResults := make([]*StageResult, n)

	var mu sync.Mutex
	terminal := make(map[string]SignalResult)
	outcome := &ignitionOutcome{}

	var startStage func(i int)
	var skipStage func(i int)

	// skipStage marks every signal in stage i Skipped without running it,
	// then propagates to stage i+1: a halt must skip every remaining
	// stage, not just the next one, or a later stage's doneCh never
	// closes and the wait loop below hangs forever.
	skipStage = func(i int) {
		started[i].Do(func() {
			signals := byStage[stageNumbers[i]]
			results := make([]SignalResult, 0, len(signals))
			for _, s := range signals {
				res := skippedResult(s.Name, nil)
				results = append(results, res)
				mu.Lock()
				terminal[s.Name] = res
				mu.Unlock()
				ic.onSignalCompleted(res)
				outcome.pending = append(outcome.pending, s.Name)
			}
			stageResults[i] = &StageResult{
				StageNumber: stageNumbers[i],
				Results:     results,
				Completed:   len(results),
			}
			close(doneCh[i])
			if i+1 < n {
				skipStage(i + 1)
			}
		})
	}

	startStage = func(i int) {
		started[i].Do(func() {
			go func() {
				defer close(doneCh[i])
				stageResults[i] = runOneStage(ic, scope, limiter, stageNumbers[i], byStage[stageNumbers[i]], opts, &mu, terminal, func() {
					if i+1 < n {
						startStage(i + 1)
					}
				})
				advance, halted := decideAdvance(opts.StagePolicy.Kind, stageResults[i])
				if halted {
					outcome.policyDenied = true
					outcome.deniedBy = failingSignalName(stageResults[i])
					scope.Cancel(ReasonBundleCancelled, outcome.deniedBy)
				}
				if i+1 < n {
					if advance {
						startStage(i + 1)
					} else {
						skipStage(i + 1)
					}
				}
			}()
		})
	}

	if n > 0 {
		startStage(0)
		for i := 0; i < n; i++ {
			<-doneCh[i]
		}
	}

	results := make([]SignalResult, 0, len(ic.signals))
	finalStages := make([]StageResult, 0, n)
	for i := 0; i < n; i++ {
		if stageResults[i] != nil {
			finalStages = append(finalStages, *stageResults[i])
		}
	}
	for _, s := range ic.signals {
		mu.Lock()
		res := terminal[s.Name]
		mu.Unlock()
		results = append(results, res)
	}

	outcome.result = &Result{Results: results, StageResults: finalStages}
	return outcome
}

// runOneStage executes every signal in a single stage concurrently (same
// completion semantics as Parallel), invoking promote() once the
// EarlyPromotion threshold is crossed.
func runOneStage(ic *ignitionContext, scope *CancellationScope, limiter *degreeLimiter, stageNumber int, signals []*Signal, opts *Options, mu *sync.Mutex, terminal map[string]SignalResult, promote func()) *StageResult {
	stageStart := time.Now()
	total := len(signals)
	resultsCh := make(chan SignalResult, total)

	for _, s := range signals {
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

	promoted := false
	succeeded := 0
	results := make([]SignalResult, 0, total)
	counts := StageResult{StageNumber: stageNumber}

	for completed := 0; completed < total; completed++ {
		res := <-resultsCh
		results = append(results, res)
		mu.Lock()
		terminal[res.Name] = res
		mu.Unlock()
		ic.onSignalCompleted(res)

		switch res.Status {
		case StatusSucceeded:
			counts.Succeeded++
			succeeded++
		case StatusFailed:
			counts.Failed++
		case StatusTimedOut:
			counts.TimedOut++
		}
		counts.Completed++

		if opts.StagePolicy.Kind == StageEarlyPromotion && !promoted && total > 0 {
			if float64(succeeded)/float64(total) >= opts.StagePolicy.EarlyPromotionThreshold {
				promoted = true
				counts.Promoted = true
				promote()
			}
		}
	}

	counts.Duration = time.Since(stageStart)
	counts.Results = results
	return &counts
}

// decideAdvance applies inter-stage progression rules (spec.md §4.7) to a
// completed stage, reporting whether the next stage should run and
// whether this halt should surface as a policy denial.
func decideAdvance(kind StagePolicyKind, sr *StageResult) (advance bool, halted bool) {
	switch kind {
	case StageAllMustSucceed:
		if sr.Failed > 0 || sr.TimedOut > 0 {
			return false, true
		}
		return true, false
	case StageFailFast:
		if sr.Failed > 0 {
			return false, true
		}
		return true, false
	case StageEarlyPromotion:
		return true, false
	case StageBestEffort:
		return true, false
	default:
		return true, false
	}
}

func failingSignalName(sr *StageResult) string {
	for _, r := range sr.Results {
		if r.Status == StatusFailed || r.Status == StatusTimedOut {
			return r.Name
		}
	}
	return ""
}
