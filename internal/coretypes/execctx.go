package coretypes

import (
	"context"
	"sync/atomic"
	"time"
)

// ExecCtx carries the per-action runtime context threaded through a
// primitive's ten phases: route, absolute deadline, cancellation signal,
// policy view and action id.
//
// Invariant: IsCancelled() || time.Now().After(Deadline) must be checked
// before issuing any CDP command; a cancelled or expired ExecCtx must fail
// with Interrupted/WaitTimeout in O(1) adapter calls.
type ExecCtx struct {
	Route    ExecRoute
	Deadline time.Time
	ActionID ActionId
	TaskID   TaskId
	Policy   PolicyView

	ctx      context.Context
	cancel   context.CancelFunc
	canceled atomic.Bool
}

// PolicyView is the read-only policy surface a primitive consults before
// acting (e.g. robots.txt PolicyDenied decisions). Kept minimal and
// interface-typed so callers can supply a no-op view in tests.
type PolicyView interface {
	// Allow reports whether the given URL may be navigated to from this route.
	Allow(url string) (bool, string)
}

// AllowAllPolicy is a PolicyView that permits everything.
type AllowAllPolicy struct{}

// Allow always permits navigation.
func (AllowAllPolicy) Allow(string) (bool, string) { return true, "" }

// NewExecCtx derives an ExecCtx from a parent context with an absolute
// deadline. Cancelling the parent or calling the returned CancelFunc marks
// the ExecCtx cancelled.
func NewExecCtx(parent context.Context, route ExecRoute, deadline time.Time, actionID ActionId, taskID TaskId, policy PolicyView) (*ExecCtx, context.CancelFunc) {
	ctx, cancel := context.WithDeadline(parent, deadline)
	if policy == nil {
		policy = AllowAllPolicy{}
	}
	ec := &ExecCtx{
		Route:    route,
		Deadline: deadline,
		ActionID: actionID,
		TaskID:   taskID,
		Policy:   policy,
		ctx:      ctx,
		cancel:   cancel,
	}
	go func() {
		<-ctx.Done()
		ec.canceled.Store(true)
	}()
	return ec, cancel
}

// Context returns the underlying context.Context, for passing to CDP calls.
func (e *ExecCtx) Context() context.Context { return e.ctx }

// IsCancelled reports whether the action's cancellation signal has fired.
func (e *ExecCtx) IsCancelled() bool {
	select {
	case <-e.ctx.Done():
		return true
	default:
		return e.canceled.Load()
	}
}

// IsExpired reports whether the deadline has already passed.
func (e *ExecCtx) IsExpired() bool {
	return !e.Deadline.IsZero() && time.Now().After(e.Deadline)
}

// Remaining returns the time left until the deadline, or the largest
// representable duration if no deadline is set.
func (e *ExecCtx) Remaining() time.Duration {
	if e.Deadline.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return time.Until(e.Deadline)
}

// Cancel fires the cancellation signal for this ExecCtx and everything
// derived from it (step token -> flow token hierarchy).
func (e *ExecCtx) Cancel() {
	e.canceled.Store(true)
	e.cancel()
}
