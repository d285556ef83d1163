package perception

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/cdpadapter"
)

// EventSource is the subset of *cdpadapter.Adapter the watcher needs; kept
// as an interface so tests can feed synthetic events without a live browser.
type EventSource interface {
	Subscribe(buffer int) (<-chan cdpadapter.RawEvent, func())
}

// LifecycleWatcher subscribes to the adapter's broadcast event bus and
// invalidates the anchor/snapshot caches according to spec.md §4.3's
// invalidation table, grounded on
// original_source/crates/perceiver-structural/src/lifecycle.rs's phase
// dispatch (translated from a CancellationToken-guarded tokio task to a
// stop-channel-guarded goroutine).
type LifecycleWatcher struct {
	anchorCache   *AnchorCache
	snapshotCache *SnapshotCache
	logger        *zap.Logger

	mu      sync.Mutex
	stop    chan struct{}
	release func()
	done    chan struct{}
}

// NewLifecycleWatcher builds a watcher over the given caches.
func NewLifecycleWatcher(anchorCache *AnchorCache, snapshotCache *SnapshotCache, logger *zap.Logger) *LifecycleWatcher {
	return &LifecycleWatcher{
		anchorCache:   anchorCache,
		snapshotCache: snapshotCache,
		logger:        logger,
	}
}

// Start subscribes to bus and begins invalidating caches as events arrive.
// Calling Start again first stops any previous subscription.
func (w *LifecycleWatcher) Start(bus EventSource) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.release != nil {
		w.release()
		<-w.done
	}

	events, release := bus.Subscribe(32)
	stop := make(chan struct{})
	done := make(chan struct{})
	w.release = release
	w.stop = stop
	w.done = done

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				w.handleEvent(ev)
			}
		}
	}()
}

// Stop unsubscribes from the bus and waits for the watcher goroutine to exit.
func (w *LifecycleWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.release == nil {
		return
	}
	close(w.stop)
	w.release()
	<-w.done
	w.release = nil
}

func (w *LifecycleWatcher) handleEvent(ev cdpadapter.RawEvent) {
	switch ev.Kind {
	case cdpadapter.EventPageLifecycle:
		w.handlePhase(ev.Page.String(), ev.LifecycleName)
	case cdpadapter.EventPageNavigated:
		w.handlePhase(ev.Page.String(), "navigate")
	default:
		// NetworkActivity, NetworkSummary and Error carry no DOM-structure
		// implication (spec.md §4.3): no invalidation.
	}
}

func (w *LifecycleWatcher) handlePhase(page, phase string) {
	switch strings.ToLower(phase) {
	case "navigate", "load", "commit":
		w.anchorCache.InvalidatePrefix(PagePrefix(page))
		w.snapshotCache.InvalidatePrefix(SnapshotPagePrefix(page))
	case "domcontentloaded", "frame_attached", "frame_detached", "frameattached", "framedetached":
		w.snapshotCache.InvalidatePrefix(SnapshotPagePrefix(page))
	case "networkidle", "opened", "closed", "focus":
		// No invalidation.
	default:
		if w.logger != nil {
			w.logger.Debug("unrecognized lifecycle phase, no cache invalidation",
				zap.String("page", page), zap.String("phase", phase))
		}
	}
}
