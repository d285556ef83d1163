// Package coretypes holds the identifiers and data shapes shared by every
// core subsystem: the adapter, registry, perception layer, scheduler, and
// action primitives all speak these types rather than each other's internals.
package coretypes

import "fmt"

// SessionId, PageId, FrameId, ActionId and TaskId are opaque unique values
// threaded through the adapter, registry and scheduler. They are plain
// strings rather than a dedicated numeric type because every one of them
// originates as a CDP-assigned or UUID-assigned string.
type (
	SessionId string
	PageId    string
	FrameId   string
	ActionId  string
	TaskId    string
)

func (s SessionId) String() string { return string(s) }
func (p PageId) String() string    { return string(p) }
func (f FrameId) String() string   { return string(f) }
func (a ActionId) String() string  { return string(a) }
func (t TaskId) String() string    { return string(t) }

// ExecRoute fully identifies where an action runs.
type ExecRoute struct {
	Session SessionId
	Page    PageId
	Frame   FrameId
}

// MutexKey derives the lane key that linearises operations within a frame.
// Two routes with the same frame never run concurrently.
func (r ExecRoute) MutexKey() string {
	return fmt.Sprintf("frame:%s", r.Frame)
}

// IsZero reports whether the route names no page at all.
func (r ExecRoute) IsZero() bool {
	return r.Session == "" && r.Page == "" && r.Frame == ""
}
