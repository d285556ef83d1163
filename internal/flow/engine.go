package flow

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

// Work is one Action node's primitive call, closed over its own
// arguments so the worker pool below can invoke it without knowing
// anything about ActionStep.
type Work func(ec *coretypes.ExecCtx) (coretypes.ActionReport, *apperrors.PrimitiveError)

type dispatchResult struct {
	report coretypes.ActionReport
	err    *apperrors.PrimitiveError
}

type pendingEntry struct {
	ec   *coretypes.ExecCtx
	work Work
	done chan dispatchResult
}

// Engine sits between the interpreter and scheduler.SchedulerRuntime: it
// submits an Action node's work as a scheduler job and runs it once the
// runtime's dispatch loop admits it, so flow execution gets the
// scheduler's mutex-key linearisation, priority lanes and per-task/global
// slot limits (spec.md §6's "Scheduler API consumed by Flow") without the
// scheduler package itself knowing anything about flows or primitives.
type Engine struct {
	sched *scheduler.SchedulerRuntime

	mu      sync.Mutex
	pending map[coretypes.ActionId]pendingEntry

	logger *zap.Logger
}

// NewEngine starts workers goroutines pulling from sched.NextJob and
// wires them to an Engine. workers should roughly track the scheduler's
// global slot count: idle workers beyond that just block in NextJob.
func NewEngine(sched *scheduler.SchedulerRuntime, workers int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		sched:   sched,
		pending: make(map[coretypes.ActionId]pendingEntry),
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		go e.workerLoop()
	}
	return e
}

func (e *Engine) workerLoop() {
	for {
		ready, err := e.sched.NextJob()
		if err != nil {
			return
		}

		e.mu.Lock()
		entry, ok := e.pending[ready.Entry.ActionID]
		if ok {
			delete(e.pending, ready.Entry.ActionID)
		}
		e.mu.Unlock()

		if !ok {
			e.sched.FinishJob(ready)
			continue
		}

		report, perr := entry.work(entry.ec)
		e.sched.FinishJob(ready)
		entry.done <- dispatchResult{report: report, err: perr}
	}
}

// Dispatch submits work onto ec's route and priority lane and blocks
// until the worker pool runs it (or ec is cancelled first, in which case
// the scheduler job is also cancelled so it never runs stale).
func (e *Engine) Dispatch(ec *coretypes.ExecCtx, priority scheduler.Priority, work Work) (coretypes.ActionReport, *apperrors.PrimitiveError) {
	actionID := ec.ActionID
	if actionID == "" {
		actionID = coretypes.ActionId(uuid.NewString())
	}

	done := make(chan dispatchResult, 1)
	e.mu.Lock()
	e.pending[actionID] = pendingEntry{ec: ec, work: work, done: done}
	e.mu.Unlock()

	e.sched.Submit(ec.Route, actionID, "", ec.TaskID, priority)

	select {
	case res := <-done:
		return res.report, res.err
	case <-ec.Context().Done():
		e.sched.Cancel(actionID)
		e.mu.Lock()
		delete(e.pending, actionID)
		e.mu.Unlock()
		return coretypes.ActionReport{}, apperrors.Interrupted()
	}
}

// Close shuts the underlying scheduler down, unblocking every worker
// goroutine's NextJob call.
func (e *Engine) Close() {
	e.sched.Close()
}
