// Package registry tracks the live tree of sessions, pages and frames and
// resolves logical routing hints down to a concrete ExecRoute (spec.md
// §4.2). Submitted events are applied on the ingest goroutine started by
// New, while SessionCreate and PageOpen mutate state directly under the
// registry's lock; all exported methods that read state take the registry's
// RWMutex instead, following the teacher's everywhere-else mutex idiom
// (chrome.Instance.mu, chrome.ChromePool's atomic counters).
package registry

import (
	"time"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// LifeState is the coarse lifecycle state of a session or page.
type LifeState int

const (
	LifeActive LifeState = iota
	LifeClosed
)

func (s LifeState) String() string {
	if s == LifeClosed {
		return "closed"
	}
	return "active"
}

// Health summarizes a page's most recent network activity, fed by
// NetworkSummary events.
type Health struct {
	RequestCount  int64
	Response2xx   int64
	Response4xx   int64
	Response5xx   int64
	InFlight      int
	Quiet         bool
	LastUpdatedAt time.Time
}

// SessionCtx is the registry's record of one logical session.
type SessionCtx struct {
	ID    coretypes.SessionId
	Label string
	State LifeState
	Pages []coretypes.PageId
}

// PageCtx is the registry's record of one browser tab.
type PageCtx struct {
	ID            coretypes.PageId
	Session       coretypes.SessionId
	MainFrame     coretypes.FrameId
	FocusedFrame  coretypes.FrameId
	Health        Health
	ChildFrames   []coretypes.FrameId
	State         LifeState
}

// FrameCtx is the registry's record of one frame within a page.
type FrameCtx struct {
	ID       coretypes.FrameId
	Page     coretypes.PageId
	Parent   coretypes.FrameId // zero value ("") means no parent
	Children []coretypes.FrameId
	IsMain   bool
}
