package cdpadapter

import (
	"sync"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// RawEventKind discriminates the broadcast event variants (spec.md §4.1).
type RawEventKind int

const (
	EventPageLifecycle RawEventKind = iota
	EventPageNavigated
	EventNetworkActivity
	EventNetworkSummary
	EventError
)

// RawEvent is a single item on the adapter's broadcast bus. Only the fields
// relevant to Kind are populated, mirroring AnchorDescriptor's kind-tagged
// shape.
type RawEvent struct {
	Kind RawEventKind
	Page coretypes.PageId

	LifecycleName string // PageLifecycle
	FrameID       string // PageLifecycle / PageNavigated

	URL string // PageNavigated

	RequestID     string // NetworkActivity
	RequestURL    string // NetworkActivity
	InFlightCount int    // NetworkSummary

	Err string // Error
}

// eventBus is a broadcast pub-sub of RawEvents, generalizing the teacher's
// single-renderer EventCollector (internal/chrome/events.go, now removed)
// into a multi-subscriber bus. The Listen/Release channel-registry shape is
// grounded on chromedp's own TargetHandler.Listen/Release
// (chromedp-chromedp/handler.go); unlike that implementation, a full
// subscriber channel is dropped-and-logged rather than panicking, since a
// slow HTTP client is expected, not a bug.
type eventBus struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[chan RawEvent]struct{}
}

func newEventBus(logger *zap.Logger) *eventBus {
	return &eventBus{
		logger: logger,
		subs:   make(map[chan RawEvent]struct{}),
	}
}

// Subscribe returns a buffered channel of RawEvents. Call release (the
// returned func) when done to unregister and close the channel.
func (b *eventBus) Subscribe(buffer int) (<-chan RawEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan RawEvent, buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	release := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
	return ch, release
}

func (b *eventBus) publish(ev RawEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for lagged subscriber",
				zap.Int("kind", int(ev.Kind)),
				zap.String("page", ev.Page.String()),
			)
		}
	}
}
