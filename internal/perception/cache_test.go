package perception

import (
	"testing"
	"time"
)

func TestAnchorCache_GetPutExpiry(t *testing.T) {
	c := NewAnchorCache(20 * time.Millisecond)

	c.Put("p1::f1::css:#a", "selector-a")

	if v, ok := c.Get("p1::f1::css:#a"); !ok || v != "selector-a" {
		t.Fatalf("Get() = %v, %v", v, ok)
	}

	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("p1::f1::css:#a"); ok {
		t.Error("entry should have expired")
	}
}

func TestAnchorCache_InvalidatePrefix(t *testing.T) {
	c := NewAnchorCache(time.Minute)

	c.Put("p1::f1::css:#a", "a")
	c.Put("p1::f2::css:#b", "b")
	c.Put("p2::f1::css:#c", "c")

	c.InvalidatePrefix(PagePrefix("p1"))

	if _, ok := c.Get("p1::f1::css:#a"); ok {
		t.Error("p1 entry should be invalidated")
	}
	if _, ok := c.Get("p1::f2::css:#b"); ok {
		t.Error("p1 entry should be invalidated")
	}
	if _, ok := c.Get("p2::f1::css:#c"); !ok {
		t.Error("p2 entry should survive p1's invalidation")
	}
}

func TestSnapshotCache_FingerprintRoundTrip(t *testing.T) {
	c := NewSnapshotCache(time.Minute)
	key := SnapshotFingerprint("p1", "body", "full")

	c.Put(key, "snapshot-data")

	if v, ok := c.Get(key); !ok || v != "snapshot-data" {
		t.Fatalf("Get() = %v, %v", v, ok)
	}

	c.InvalidatePrefix(SnapshotPagePrefix("p1"))
	if _, ok := c.Get(key); ok {
		t.Error("entry should be invalidated by page prefix")
	}
}
