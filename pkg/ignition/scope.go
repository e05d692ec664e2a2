package ignition

import (
	"context"
	"errors"
	"fmt"
)

// errScopeReleased is the cancellation cause used when a scope is released
// without ever having been explicitly cancelled (normal teardown path).
var errScopeReleased = errors.New("ignition: scope released")

// scopeCancellation is the context.Cause attached when a CancellationScope
// is cancelled. Descendant scopes observe the same cause object once their
// underlying context is cancelled by context's own propagation, which gives
// us "cancelling a node cancels all transitive children" for free, and
// "the first cancel wins" for free too, since context.CancelCauseFunc only
// honors its first invocation.
type scopeCancellation struct {
	reason           CancellationReason
	triggeringSignal string
	scopeName        string
}

func (c *scopeCancellation) Error() string {
	if c.triggeringSignal != "" {
		return fmt.Sprintf("scope %q cancelled: %s (triggered by %q)", c.scopeName, c.reason, c.triggeringSignal)
	}
	return fmt.Sprintf("scope %q cancelled: %s", c.scopeName, c.reason)
}

// CancellationScope is a named node in a hierarchical cancellation tree.
// Cancelling a scope cancels every transitive child; cancelling a child
// never affects its parent. A scope is one-shot: the first Cancel call
// wins, subsequent calls are no-ops.
type CancellationScope struct {
	name     string
	ctx      context.Context
	cancelFn context.CancelCauseFunc
	parent   *CancellationScope
}

// NewRootScope creates the top-level scope for one ignition, derived from
// an externally supplied context (the caller's cancel handle, if any).
func NewRootScope(parent context.Context, name string) (*CancellationScope, error) {
	return newScope(parent, nil, name)
}

func newScope(parentCtx context.Context, parent *CancellationScope, name string) (*CancellationScope, error) {
	if name == "" {
		return nil, configErrorf("scope", "scope name must be non-empty")
	}
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parentCtx)
	return &CancellationScope{name: name, ctx: ctx, cancelFn: cancel, parent: parent}, nil
}

// CreateChild creates a new child scope. If the parent is already
// cancelled, the child is born cancelled with the parent's reason.
func (s *CancellationScope) CreateChild(name string) (*CancellationScope, error) {
	return newScope(s.ctx, s, name)
}

// Cancel cancels this scope and every transitive child. The first call
// wins; later calls (with any reason) are ignored.
func (s *CancellationScope) Cancel(reason CancellationReason, triggeringSignal string) {
	s.cancelFn(&scopeCancellation{reason: reason, triggeringSignal: triggeringSignal, scopeName: s.name})
}

// Release disposes of the underlying token source. Safe to call multiple
// times and after Cancel; callers should defer it on every exit path.
func (s *CancellationScope) Release() {
	s.cancelFn(errScopeReleased)
}

// Token is the observable cancel flag: closed once the scope (or an
// ancestor) is cancelled or released.
func (s *CancellationScope) Token() <-chan struct{} { return s.ctx.Done() }

// Context exposes the underlying context for code that wants to pass a
// plain context.Context down to a signal body.
func (s *CancellationScope) Context() context.Context { return s.ctx }

// IsCancelled reports whether the scope (or an ancestor) has been cancelled
// or released.
func (s *CancellationScope) IsCancelled() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// CancellationReason reports why the scope was cancelled, or ReasonNone.
// A plain Release (never explicitly Cancel'd) also reports ReasonNone.
func (s *CancellationScope) CancellationReason() CancellationReason {
	cause := context.Cause(s.ctx)
	if cause == nil || errors.Is(cause, errScopeReleased) {
		return ReasonNone
	}
	var sc *scopeCancellation
	if errors.As(cause, &sc) {
		return sc.reason
	}
	return ReasonExternalCancellation
}

// TriggeringSignalName names the signal whose failure triggered the
// cancellation, if any.
func (s *CancellationScope) TriggeringSignalName() string {
	cause := context.Cause(s.ctx)
	var sc *scopeCancellation
	if errors.As(cause, &sc) {
		return sc.triggeringSignal
	}
	return ""
}

// Name returns the scope's name.
func (s *CancellationScope) Name() string { return s.name }

// Parent returns the parent scope, or nil for a root scope.
func (s *CancellationScope) Parent() *CancellationScope { return s.parent }
