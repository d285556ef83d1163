package scheduler

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// ErrClosed is returned by NextJob once the runtime has been shut down.
var ErrClosed = errors.New("scheduler: runtime closed")

// SchedulerConfig is the tunable live configuration: the global
// concurrency ceiling and the per-task fairness cap.
type SchedulerConfig struct {
	GlobalSlots  int
	PerTaskLimit int
}

// JobEntry is the bookkeeping record kept for a submitted-but-not-yet-
// dispatched job, and (after dispatch) the timing record returned to the
// caller.
type JobEntry struct {
	ActionID   coretypes.ActionId
	CallID     string
	TaskID     coretypes.TaskId
	Route      coretypes.ExecRoute
	Priority   Priority
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// ReadyJob is what NextJob hands the caller once a job has cleared its
// lane, per-task and global-slot gates.
type ReadyJob struct {
	Entry JobEntry
	key   string
}

// Timing reports how long a finished job spent queued and running.
type Timing struct {
	Queued  time.Duration
	Running time.Duration
}

// SchedulerRuntime is the live scheduler: the lane manager, the job
// table, the call/task indices, the per-task counters and the global
// slot semaphore, translated from the original implementation's
// SchedulerRuntime (runtime.rs) with DashMap+tokio::sync primitives
// replaced by a single mutex-guarded set of maps and the slotSemaphore
// in semaphore.go.
type SchedulerRuntime struct {
	logger *zap.Logger
	lanes  *LaneManager
	slots  *slotSemaphore

	mu        sync.Mutex
	config    SchedulerConfig
	jobs      map[coretypes.ActionId]*JobEntry
	callIndex map[string]coretypes.ActionId
	taskIndex map[coretypes.TaskId]map[coretypes.ActionId]struct{}
	perTask   map[coretypes.TaskId]int
}

// NewSchedulerRuntime builds a runtime with the given starting config.
func NewSchedulerRuntime(cfg SchedulerConfig, logger *zap.Logger) *SchedulerRuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerRuntime{
		logger:    logger,
		lanes:     NewLaneManager(),
		slots:     newSlotSemaphore(cfg.GlobalSlots),
		config:    cfg,
		jobs:      make(map[coretypes.ActionId]*JobEntry),
		callIndex: make(map[string]coretypes.ActionId),
		taskIndex: make(map[coretypes.TaskId]map[coretypes.ActionId]struct{}),
		perTask:   make(map[coretypes.TaskId]int),
	}
}

// Submit admits a new job: it registers the entry in the job table and
// indices, then enqueues it onto its route's mutex-key lane at the
// given priority.
func (s *SchedulerRuntime) Submit(route coretypes.ExecRoute, actionID coretypes.ActionId, callID string, taskID coretypes.TaskId, priority Priority) {
	entry := &JobEntry{
		ActionID:   actionID,
		CallID:     callID,
		TaskID:     taskID,
		Route:      route,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}

	s.mu.Lock()
	s.jobs[actionID] = entry
	if callID != "" {
		s.callIndex[callID] = actionID
	}
	if taskID != "" {
		set, ok := s.taskIndex[taskID]
		if !ok {
			set = make(map[coretypes.ActionId]struct{})
			s.taskIndex[taskID] = set
		}
		set[actionID] = struct{}{}
	}
	s.mu.Unlock()

	s.lanes.Enqueue(route.MutexKey(), actionID, priority)
}

// NextJob runs the dispatch loop described by spec.md §4.4: dequeue,
// look up the entry (skipping cancelled jobs), enforce the per-task
// cap with requeue-on-contention, acquire a global slot, and on success
// remove the entry from the job table and indices before returning it.
func (s *SchedulerRuntime) NextJob() (ReadyJob, error) {
	for {
		key, job, ok := s.lanes.Dequeue()
		if !ok {
			return ReadyJob{}, ErrClosed
		}

		s.mu.Lock()
		entry, present := s.jobs[job.ActionID]
		s.mu.Unlock()
		if !present {
			continue
		}

		if entry.TaskID != "" {
			if !s.tryAdmitTask(entry.TaskID) {
				s.lanes.Requeue(key, job)
				continue
			}
		}

		if !s.slots.Acquire() {
			if entry.TaskID != "" {
				s.releaseTask(entry.TaskID)
			}
			s.lanes.Requeue(key, job)
			continue
		}

		s.mu.Lock()
		delete(s.jobs, job.ActionID)
		if entry.CallID != "" {
			delete(s.callIndex, entry.CallID)
		}
		if entry.TaskID != "" {
			if set, ok := s.taskIndex[entry.TaskID]; ok {
				delete(set, job.ActionID)
				if len(set) == 0 {
					delete(s.taskIndex, entry.TaskID)
				}
			}
		}
		entry.StartedAt = time.Now()
		ready := *entry
		s.mu.Unlock()

		return ReadyJob{Entry: ready, key: key}, nil
	}
}

func (s *SchedulerRuntime) tryAdmitTask(taskID coretypes.TaskId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perTask[taskID] >= s.config.PerTaskLimit {
		return false
	}
	s.perTask[taskID]++
	return true
}

func (s *SchedulerRuntime) releaseTask(taskID coretypes.TaskId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perTask[taskID] > 0 {
		s.perTask[taskID]--
		if s.perTask[taskID] == 0 {
			delete(s.perTask, taskID)
		}
	}
}

// FinishJob stamps finished_at, releases the job's global slot and
// per-task count, and returns the queued/running durations.
func (s *SchedulerRuntime) FinishJob(ready ReadyJob) Timing {
	finished := time.Now()
	s.slots.Release()
	if ready.Entry.TaskID != "" {
		s.releaseTask(ready.Entry.TaskID)
	}
	return Timing{
		Queued:  ready.Entry.StartedAt.Sub(ready.Entry.EnqueuedAt),
		Running: finished.Sub(ready.Entry.StartedAt),
	}
}

// Cancel removes actionID from the job table and indices. The lane
// entry is left in place and silently skipped by the next dispatch
// loop iteration that encounters it (NextJob's "if absent, loop" step).
// A job already past dispatch is unaffected; callers must cancel its
// ExecCtx token to interrupt in-flight work.
func (s *SchedulerRuntime) Cancel(actionID coretypes.ActionId) (coretypes.ExecRoute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[actionID]
	if !ok {
		return coretypes.ExecRoute{}, false
	}
	delete(s.jobs, actionID)
	if entry.CallID != "" {
		delete(s.callIndex, entry.CallID)
	}
	if entry.TaskID != "" {
		if set, ok := s.taskIndex[entry.TaskID]; ok {
			delete(set, actionID)
			if len(set) == 0 {
				delete(s.taskIndex, entry.TaskID)
			}
		}
	}
	return entry.Route, true
}

// CancelCall cancels the action registered under callID, if any.
func (s *SchedulerRuntime) CancelCall(callID string) (coretypes.ExecRoute, bool) {
	s.mu.Lock()
	actionID, ok := s.callIndex[callID]
	s.mu.Unlock()
	if !ok {
		return coretypes.ExecRoute{}, false
	}
	return s.Cancel(actionID)
}

// CancelTask cancels every action registered under taskID.
func (s *SchedulerRuntime) CancelTask(taskID coretypes.TaskId) []coretypes.ActionId {
	s.mu.Lock()
	set, ok := s.taskIndex[taskID]
	ids := make([]coretypes.ActionId, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	cancelled := make([]coretypes.ActionId, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.Cancel(id); ok {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}

// UpdateConfig applies a new SchedulerConfig. Growing global_slots adds
// permits immediately; shrinking only lowers the ceiling and logs a
// warning, letting in-flight permits drain naturally as spec.md
// prescribes. PerTaskLimit takes effect for jobs admitted after the
// call; jobs already counted against the old limit are unaffected.
func (s *SchedulerRuntime) UpdateConfig(next SchedulerConfig) {
	s.mu.Lock()
	prev := s.config
	s.config = next
	s.mu.Unlock()

	switch {
	case next.GlobalSlots > prev.GlobalSlots:
		s.slots.Grow(next.GlobalSlots - prev.GlobalSlots)
	case next.GlobalSlots < prev.GlobalSlots:
		s.logger.Warn("scheduler: global slot ceiling reduced, draining in-flight permits",
			zap.Int("previous", prev.GlobalSlots), zap.Int("next", next.GlobalSlots))
		s.slots.Shrink(prev.GlobalSlots - next.GlobalSlots)
	}

	if next.PerTaskLimit < prev.PerTaskLimit {
		s.logger.Warn("scheduler: per-task limit reduced",
			zap.Int("previous", prev.PerTaskLimit), zap.Int("next", next.PerTaskLimit))
	}
}

// Config returns the live configuration.
func (s *SchedulerRuntime) Config() SchedulerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Close shuts the runtime down: any goroutine parked in NextJob returns
// ErrClosed.
func (s *SchedulerRuntime) Close() {
	s.lanes.Close()
	s.slots.Close()
}
