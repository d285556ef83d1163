package scheduler

import "github.com/soulbrowser/soulbrowser/internal/coretypes"

// Job is one queued unit of work inside a PriorityLane: an action id
// tagged with the priority and enqueue sequence it was admitted with.
type Job struct {
	ActionID coretypes.ActionId
	Priority Priority
	Seq      uint64
}

// PriorityLane holds one mutex key's four priority queues and runs a
// weighted deficit round-robin over them: a priority's deficit is
// replenished to its weight whenever it reaches zero and its queue is
// non-empty, then drained one job per Pop() until either the deficit or
// the queue runs out, at which point the cursor rotates to the next
// priority. No reference source for this algorithm exists in the
// original implementation's scheduler crate (only its runtime module
// survived distillation); it is built directly from spec.md's prose
// description of WDRR with weights [8,4,2,1].
type PriorityLane struct {
	queues  [4][]Job
	deficit [4]int
	cursor  int
}

// NewPriorityLane returns an empty lane.
func NewPriorityLane() *PriorityLane {
	return &PriorityLane{}
}

func idx(p Priority) int {
	for i, q := range priorityOrder {
		if q == p {
			return i
		}
	}
	return int(PriorityDeep)
}

// Push appends job to its priority's queue.
func (l *PriorityLane) Push(job Job) {
	i := idx(job.Priority)
	l.queues[i] = append(l.queues[i], job)
}

// Pop returns the next job per WDRR, or false if every queue is empty.
func (l *PriorityLane) Pop() (Job, bool) {
	for attempt := 0; attempt < len(priorityOrder); attempt++ {
		i := (l.cursor + attempt) % len(priorityOrder)
		if len(l.queues[i]) == 0 {
			continue
		}

		p := priorityOrder[i]
		if l.deficit[i] == 0 {
			l.deficit[i] = priorityWeight(p)
		}

		job := l.queues[i][0]
		l.queues[i] = l.queues[i][1:]
		l.deficit[i]--

		if l.deficit[i] <= 0 || len(l.queues[i]) == 0 {
			l.deficit[i] = 0
			l.cursor = (i + 1) % len(priorityOrder)
		} else {
			l.cursor = i
		}

		return job, true
	}
	return Job{}, false
}

// IsEmpty reports whether every priority queue in the lane is empty.
func (l *PriorityLane) IsEmpty() bool {
	for _, q := range l.queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

// Requeue re-inserts job at the head of its priority queue, used when a
// dispatch attempt must back off (per-task limit hit, global slot
// channel closed) without losing the job's place in line.
func (l *PriorityLane) Requeue(job Job) {
	i := idx(job.Priority)
	l.queues[i] = append([]Job{job}, l.queues[i]...)
}
