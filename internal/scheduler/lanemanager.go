package scheduler

import (
	"sync"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// LaneManager owns one PriorityLane per mutex key (spec.md's
// `map<mutex_key, PriorityLane>`) plus the ordered key list and rotating
// cursor that give dequeue() cross-frame interleaving: a saturated
// frame never starves jobs queued against other frames.
type LaneManager struct {
	mu      sync.Mutex
	cond    *sync.Cond
	lanes   map[string]*PriorityLane
	order   []string
	cursor  int
	nextSeq uint64
	closed  bool
}

// NewLaneManager returns an empty LaneManager.
func NewLaneManager() *LaneManager {
	m := &LaneManager{lanes: make(map[string]*PriorityLane)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Enqueue stamps job with a monotonically increasing sequence, pushes it
// onto key's lane (creating the lane and appending key to the order if
// this is the first job seen for it), and wakes any blocked Dequeue.
func (m *LaneManager) Enqueue(key string, actionID coretypes.ActionId, priority Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lane, ok := m.lanes[key]
	if !ok {
		lane = NewPriorityLane()
		m.lanes[key] = lane
		m.order = append(m.order, key)
	}

	m.nextSeq++
	lane.Push(Job{ActionID: actionID, Priority: priority, Seq: m.nextSeq})
	m.cond.Broadcast()
}

// Dequeue rotates through active keys starting at the cursor, popping one
// job from the first non-empty lane it finds. If every lane is empty it
// blocks until Enqueue wakes it or Close is called (returning false).
func (m *LaneManager) Dequeue() (string, Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if m.closed {
			return "", Job{}, false
		}

		if key, job, ok := m.dequeueLocked(); ok {
			return key, job, true
		}

		m.cond.Wait()
	}
}

// TryDequeue is Dequeue's non-blocking counterpart: it returns
// immediately with ok=false if every lane is empty.
func (m *LaneManager) TryDequeue() (string, Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dequeueLocked()
}

func (m *LaneManager) dequeueLocked() (string, Job, bool) {
	n := len(m.order)
	for attempt := 0; attempt < n; attempt++ {
		i := (m.cursor + attempt) % n
		key := m.order[i]
		lane := m.lanes[key]

		job, ok := lane.Pop()
		if !ok {
			continue
		}

		m.cursor = (i + 1) % n
		if lane.IsEmpty() {
			m.removeKeyLocked(key)
		}
		return key, job, true
	}
	return "", Job{}, false
}

func (m *LaneManager) removeKeyLocked(key string) {
	delete(m.lanes, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.cursor >= len(m.order) {
		m.cursor = 0
	}
}

// Requeue re-admits job at the head of key's lane without consuming a
// new sequence number, used when a dispatch attempt backs off after
// Dequeue already removed it.
func (m *LaneManager) Requeue(key string, job Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lane, ok := m.lanes[key]
	if !ok {
		lane = NewPriorityLane()
		m.lanes[key] = lane
		m.order = append(m.order, key)
	}
	lane.Requeue(job)
	m.cond.Broadcast()
}

// Close unblocks every goroutine parked in Dequeue, which then return
// ok=false.
func (m *LaneManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}
