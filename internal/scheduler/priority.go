// Package scheduler serialises operations per frame, caps global
// concurrency, enforces per-task fairness and honours priority (spec.md
// §4.4). The shape mirrors internal/chrome.ChromePool's token-channel
// idiom for the global concurrency cap, generalised from "N chrome
// instances" to "N concurrent in-flight actions".
package scheduler

import (
	"encoding/json"
	"fmt"
)

// Priority orders jobs within a single mutex-key lane. Higher priorities
// are serviced more often by the lane's weighted deficit round-robin, not
// exclusively: a saturated Lightning stream still yields to Deep jobs
// periodically.
type Priority int

const (
	PriorityLightning Priority = iota
	PriorityQuick
	PriorityStandard
	PriorityDeep
)

func (p Priority) String() string {
	switch p {
	case PriorityLightning:
		return "lightning"
	case PriorityQuick:
		return "quick"
	case PriorityStandard:
		return "standard"
	case PriorityDeep:
		return "deep"
	default:
		return "unknown"
	}
}

// MarshalJSON renders a Priority as its lowercase name, so the flow
// control surface's JSON wire format never exposes the raw iota value.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses a Priority from its lowercase name.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "lightning":
		*p = PriorityLightning
	case "quick":
		*p = PriorityQuick
	case "standard":
		*p = PriorityStandard
	case "deep":
		*p = PriorityDeep
	default:
		return fmt.Errorf("scheduler: unknown priority %q", s)
	}
	return nil
}

// priorityOrder is the fixed rotation order the lane's cursor walks.
var priorityOrder = [4]Priority{PriorityLightning, PriorityQuick, PriorityStandard, PriorityDeep}

// priorityWeight returns the WDRR quantum for p: Lightning gets 8
// consecutive services per visit before the lane moves on, Quick 4,
// Standard 2, Deep 1.
func priorityWeight(p Priority) int {
	switch p {
	case PriorityLightning:
		return 8
	case PriorityQuick:
		return 4
	case PriorityStandard:
		return 2
	case PriorityDeep:
		return 1
	default:
		return 1
	}
}
