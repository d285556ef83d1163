package coretypes

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnchorKind discriminates the AnchorDescriptor variants. Go has no tagged
// union, so the descriptor is a struct with a kind tag and one populated
// field per kind, mirroring the teacher's own "kind + typed fields" idiom
// (see chrome.InstanceStatus / errors.AppError's Code field).
type AnchorKind int

const (
	AnchorCss AnchorKind = iota
	AnchorAria
	AnchorText
	AnchorAttr
	AnchorBackend
	AnchorGeometry
	AnchorCombo
)

func (k AnchorKind) String() string {
	switch k {
	case AnchorCss:
		return "css"
	case AnchorAria:
		return "aria"
	case AnchorText:
		return "text"
	case AnchorAttr:
		return "attr"
	case AnchorBackend:
		return "backend"
	case AnchorGeometry:
		return "geometry"
	case AnchorCombo:
		return "combo"
	default:
		return "unknown"
	}
}

// MarshalJSON renders an AnchorKind as its lowercase name.
func (k AnchorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON parses an AnchorKind from its lowercase name.
func (k *AnchorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "css":
		*k = AnchorCss
	case "aria":
		*k = AnchorAria
	case "text":
		*k = AnchorText
	case "attr":
		*k = AnchorAttr
	case "backend":
		*k = AnchorBackend
	case "geometry":
		*k = AnchorGeometry
	case "combo":
		*k = AnchorCombo
	default:
		return fmt.Errorf("coretypes: unknown anchor kind %q", s)
	}
	return nil
}

// AnchorDescriptor is a declarative description of a DOM element. The three
// primary variants (Css, Aria, Text) come from spec.md directly; Attr,
// Backend, Geometry and Combo are additive identifiers needed by the
// confidence table but not spelled out as data-model variants in spec.md.
type AnchorDescriptor struct {
	Kind AnchorKind `json:"kind"`

	// Css: literal CSS selector.
	Selector string `json:"selector,omitempty"`

	// Aria: accessible role + accessible name (normalized, case-insensitive).
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`

	// Text: visible text content + whether the match must be exact.
	Text  string `json:"text,omitempty"`
	Exact bool   `json:"exact,omitempty"`

	// Attr: key=value attribute match.
	AttrKey   string `json:"attr_key,omitempty"`
	AttrValue string `json:"attr_value,omitempty"`

	// Backend: reuse of a previously resolved CDP backend node id.
	BackendNodeID int64 `json:"backend_node_id,omitempty"`

	// Geometry: bounding box match, viewport-relative pixels.
	GeomX float64 `json:"geom_x,omitempty"`
	GeomY float64 `json:"geom_y,omitempty"`
	GeomW float64 `json:"geom_w,omitempty"`
	GeomH float64 `json:"geom_h,omitempty"`

	// Combo: aggregate of sub-descriptors.
	Sub []AnchorDescriptor `json:"sub,omitempty"`
}

// Css builds a Css anchor descriptor.
func Css(selector string) AnchorDescriptor {
	return AnchorDescriptor{Kind: AnchorCss, Selector: selector}
}

// Aria builds an Aria anchor descriptor.
func Aria(role, name string) AnchorDescriptor {
	return AnchorDescriptor{Kind: AnchorAria, Role: role, Name: name}
}

// Text builds a Text anchor descriptor.
func Text(content string, exact bool) AnchorDescriptor {
	return AnchorDescriptor{Kind: AnchorText, Text: content, Exact: exact}
}

// Combo builds a Combo anchor descriptor from its sub-descriptors.
func Combo(sub ...AnchorDescriptor) AnchorDescriptor {
	return AnchorDescriptor{Kind: AnchorCombo, Sub: sub}
}

// ResolvedSelector is what an anchor resolver produces; the CDP adapter
// consumes only ConcreteCSSSelector and ExecutionContext, never the anchor
// itself.
type ResolvedSelector struct {
	ConcreteCSSSelector string
	ExecutionContext    string // isolated-world / frame execution context id
	StrategyLabel       string
	Confidence          float64
	HealInfo            *HealInfo
}

// HealInfo records that an anchor resolver fell back to an alternative
// strategy, and which one.
type HealInfo struct {
	OriginalStrategy string `json:"original_strategy"`
	UsedStrategy     string `json:"used_strategy"`
	Reason           string `json:"reason,omitempty"`
}

// PostSignals captures lightweight page state after a primitive runs.
type PostSignals struct {
	URLAfter   string `json:"url_after,omitempty"`
	TitleAfter string `json:"title_after,omitempty"`
}

// ActionReport is produced on a primitive's success.
type ActionReport struct {
	StartedAt   time.Time    `json:"started_at"`
	LatencyMs   int64        `json:"latency_ms"`
	PostSignals PostSignals  `json:"post_signals"`
	HealInfo    *HealInfo    `json:"heal_info,omitempty"`
}

// WaitTier selects a post-action waiting policy.
type WaitTier int

const (
	WaitNone WaitTier = iota
	WaitDomReady
	WaitNetworkIdle
	WaitFull
)

func (t WaitTier) String() string {
	switch t {
	case WaitNone:
		return "none"
	case WaitDomReady:
		return "dom_ready"
	case WaitNetworkIdle:
		return "network_idle"
	case WaitFull:
		return "full"
	default:
		return "unknown"
	}
}

// MarshalJSON renders a WaitTier as its lowercase name.
func (t WaitTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses a WaitTier from its lowercase name.
func (t *WaitTier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "none":
		*t = WaitNone
	case "dom_ready":
		*t = WaitDomReady
	case "network_idle":
		*t = WaitNetworkIdle
	case "full":
		*t = WaitFull
	default:
		return fmt.Errorf("coretypes: unknown wait tier %q", s)
	}
	return nil
}

// SnapshotLink is one hyperlink captured in a StructuralSnapshot.
type SnapshotLink struct {
	Href string
	Text string
}

// StructuralSnapshot is the concrete payload behind a snapshot cache entry:
// a best-effort structural read of a page or a sub-scope of it.
type StructuralSnapshot struct {
	Page       PageId
	Scope      string
	Level      string
	CapturedAt time.Time
	HTML       string
	Title      string
	Text       string
	Links      []SnapshotLink
}
