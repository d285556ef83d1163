package registry

import "github.com/soulbrowser/soulbrowser/internal/coretypes"

// EventKind discriminates RegistryEvent variants (spec.md §4.2).
type EventKind int

const (
	EventPageOpen EventKind = iota
	EventPageClose
	EventPageFocus
	EventFrameAttached
	EventFrameDetached
	EventFrameFocus
	EventNetworkSummary
	EventHealthProbeTick
)

// Event is one registry mutation, consumed single-writer by the ingest
// goroutine. Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Session coretypes.SessionId // PageOpen
	Page    coretypes.PageId    // PageOpen (result, set by caller after PageOpen returns) / PageClose / PageFocus / FrameAttached / NetworkSummary
	Frame   coretypes.FrameId   // FrameAttached / FrameDetached / FrameFocus
	Parent  coretypes.FrameId   // FrameAttached; zero value means no parent
	IsMain  bool                // FrameAttached

	NetSummary NetworkSummary // NetworkSummary
}

// NetworkSummary mirrors the reference implementation's NetworkSnapshot:
// aggregate counters over a rolling window.
type NetworkSummary struct {
	Requests             int64
	Responses2xx          int64
	Responses4xx          int64
	Responses5xx          int64
	InFlight              int
	Quiet                 bool
	WindowMs              int64
	SinceLastActivityMs   int64
}
