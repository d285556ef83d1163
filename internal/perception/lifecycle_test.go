package perception

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/cdpadapter"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// fakeEventSource is a minimal EventSource for tests, avoiding the need for
// a live Chrome instance behind a real *cdpadapter.Adapter.
type fakeEventSource struct {
	ch chan cdpadapter.RawEvent
}

func newFakeEventSource() *fakeEventSource {
	return &fakeEventSource{ch: make(chan cdpadapter.RawEvent, 16)}
}

func (f *fakeEventSource) Subscribe(buffer int) (<-chan cdpadapter.RawEvent, func()) {
	return f.ch, func() { close(f.ch) }
}

func (f *fakeEventSource) emit(ev cdpadapter.RawEvent) { f.ch <- ev }

func TestLifecycleWatcher_NavigateInvalidatesBothCaches(t *testing.T) {
	anchorCache := NewAnchorCache(time.Minute)
	snapshotCache := NewSnapshotCache(time.Minute)
	anchorCache.Put(AnchorFingerprint("p1", "f1", "css:#a"), "stale")
	snapshotCache.Put(SnapshotFingerprint("p1", "body", "full"), "stale")

	watcher := NewLifecycleWatcher(anchorCache, snapshotCache, zap.NewNop())
	src := newFakeEventSource()
	watcher.Start(src)
	defer watcher.Stop()

	src.emit(cdpadapter.RawEvent{Kind: cdpadapter.EventPageNavigated, Page: coretypes.PageId("p1")})
	time.Sleep(30 * time.Millisecond)

	if _, ok := anchorCache.Get(AnchorFingerprint("p1", "f1", "css:#a")); ok {
		t.Error("anchor cache should be invalidated on navigate")
	}
	if _, ok := snapshotCache.Get(SnapshotFingerprint("p1", "body", "full")); ok {
		t.Error("snapshot cache should be invalidated on navigate")
	}
}

func TestLifecycleWatcher_DomContentLoadedPreservesAnchors(t *testing.T) {
	anchorCache := NewAnchorCache(time.Minute)
	snapshotCache := NewSnapshotCache(time.Minute)
	anchorCache.Put(AnchorFingerprint("p1", "f1", "css:#a"), "still valid")
	snapshotCache.Put(SnapshotFingerprint("p1", "body", "full"), "stale")

	watcher := NewLifecycleWatcher(anchorCache, snapshotCache, zap.NewNop())
	src := newFakeEventSource()
	watcher.Start(src)
	defer watcher.Stop()

	src.emit(cdpadapter.RawEvent{
		Kind:          cdpadapter.EventPageLifecycle,
		Page:          coretypes.PageId("p1"),
		LifecycleName: "domcontentloaded",
	})
	time.Sleep(30 * time.Millisecond)

	if _, ok := anchorCache.Get(AnchorFingerprint("p1", "f1", "css:#a")); !ok {
		t.Error("anchor cache should survive domcontentloaded")
	}
	if _, ok := snapshotCache.Get(SnapshotFingerprint("p1", "body", "full")); ok {
		t.Error("snapshot cache should be invalidated on domcontentloaded")
	}
}

func TestLifecycleWatcher_NetworkIdleDoesNotInvalidate(t *testing.T) {
	anchorCache := NewAnchorCache(time.Minute)
	snapshotCache := NewSnapshotCache(time.Minute)
	anchorCache.Put(AnchorFingerprint("p1", "f1", "css:#a"), "still valid")

	watcher := NewLifecycleWatcher(anchorCache, snapshotCache, zap.NewNop())
	src := newFakeEventSource()
	watcher.Start(src)
	defer watcher.Stop()

	src.emit(cdpadapter.RawEvent{
		Kind:          cdpadapter.EventPageLifecycle,
		Page:          coretypes.PageId("p1"),
		LifecycleName: "networkidle",
	})
	time.Sleep(30 * time.Millisecond)

	if _, ok := anchorCache.Get(AnchorFingerprint("p1", "f1", "css:#a")); !ok {
		t.Error("networkidle must not invalidate the anchor cache")
	}
}

func TestLifecycleWatcher_StopsCleanly(t *testing.T) {
	watcher := NewLifecycleWatcher(NewAnchorCache(time.Minute), NewSnapshotCache(time.Minute), zap.NewNop())
	src := newFakeEventSource()
	watcher.Start(src)
	watcher.Stop()
}
