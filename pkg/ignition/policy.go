package ignition

// Policy decides whether the executor should keep launching/awaiting
// further signals after a just-completed signal's outcome. Implementations
// must be pure with respect to the supplied PolicyContext and must not
// block (grounded on pkg/resilience.RetryConfig.ShouldRetry's pluggable
// "predicate overrides builtin" shape).
type Policy interface {
	ShouldContinue(ctx PolicyContext) bool
}

// PolicyFunc adapts a function to Policy, mirroring resilience.RetryConfig.ShouldRetry.
type PolicyFunc func(ctx PolicyContext) bool

func (f PolicyFunc) ShouldContinue(ctx PolicyContext) bool { return f(ctx) }

// resolvePolicy returns the effective Policy for a run: a CustomPolicy
// always takes precedence over the named PolicyKind.
func resolvePolicy(opts *Options) Policy {
	if opts.CustomPolicy != nil {
		return opts.CustomPolicy
	}
	switch opts.Policy {
	case PolicyBestEffort:
		return PolicyFunc(bestEffortPolicy)
	case PolicyContinueOnTimeout:
		return PolicyFunc(continueOnTimeoutPolicy)
	case PolicyFailFast, "":
		return PolicyFunc(failFastPolicy)
	default:
		return PolicyFunc(failFastPolicy)
	}
}

func failFastPolicy(ctx PolicyContext) bool {
	return ctx.SignalResult.Status == StatusSucceeded
}

func bestEffortPolicy(ctx PolicyContext) bool {
	return true
}

func continueOnTimeoutPolicy(ctx PolicyContext) bool {
	return ctx.SignalResult.Status != StatusFailed
}

// StagePolicy controls inter-stage progression under ModeStaged.
type StagePolicy struct {
	Kind                    StagePolicyKind
	EarlyPromotionThreshold float64
}

func (p StagePolicy) validate() error {
	if p.Kind == StageEarlyPromotion {
		if p.EarlyPromotionThreshold < 0 || p.EarlyPromotionThreshold > 1 {
			return configErrorf("stagePolicy", "earlyPromotionThreshold must be within [0,1], got %v", p.EarlyPromotionThreshold)
		}
	}
	switch p.Kind {
	case StageAllMustSucceed, StageBestEffort, StageFailFast, StageEarlyPromotion, "":
		return nil
	default:
		return configErrorf("stagePolicy", "unknown stage policy %q", p.Kind)
	}
}
