package primitives

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/cdpadapter"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// WaitConditionKind discriminates WaitCondition's variants (spec.md §4.5).
type WaitConditionKind int

const (
	WaitElementVisible WaitConditionKind = iota
	WaitElementHidden
	WaitUrlMatches
	WaitUrlEquals
	WaitTitleMatches
	WaitDuration
	WaitNetworkIdleCondition
)

func (k WaitConditionKind) String() string {
	switch k {
	case WaitElementVisible:
		return "element_visible"
	case WaitElementHidden:
		return "element_hidden"
	case WaitUrlMatches:
		return "url_matches"
	case WaitUrlEquals:
		return "url_equals"
	case WaitTitleMatches:
		return "title_matches"
	case WaitDuration:
		return "duration"
	case WaitNetworkIdleCondition:
		return "network_idle"
	default:
		return "unknown"
	}
}

// MarshalJSON renders a WaitConditionKind as its lowercase name.
func (k WaitConditionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON parses a WaitConditionKind from its lowercase name.
func (k *WaitConditionKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "element_visible":
		*k = WaitElementVisible
	case "element_hidden":
		*k = WaitElementHidden
	case "url_matches":
		*k = WaitUrlMatches
	case "url_equals":
		*k = WaitUrlEquals
	case "title_matches":
		*k = WaitTitleMatches
	case "duration":
		*k = WaitDuration
	case "network_idle":
		*k = WaitNetworkIdleCondition
	default:
		return fmt.Errorf("primitives: unknown wait condition kind %q", s)
	}
	return nil
}

// WaitCondition is the argument to the wait primitive: a kind tag plus
// the one field each variant actually uses.
type WaitCondition struct {
	Kind WaitConditionKind `json:"kind"`

	Anchor  coretypes.AnchorDescriptor `json:"anchor,omitempty"`  // ElementVisible / ElementHidden
	Pattern string                     `json:"pattern,omitempty"` // UrlMatches / TitleMatches (regex)
	Literal string                     `json:"literal,omitempty"` // UrlEquals
	Millis  int64                      `json:"millis,omitempty"`  // Duration / NetworkIdle's quiet window
}

const waitPollInterval = 100 * time.Millisecond

// Wait blocks until condition is satisfied or ec's deadline passes,
// rechecking cancellation and the deadline on every poll iteration
// (spec.md §4.5's wait primitive: 100ms poll, recheck both each time).
func (p *Primitives) Wait(ec *coretypes.ExecCtx, condition WaitCondition) (coretypes.ActionReport, *apperrors.PrimitiveError) {
	startedAt := time.Now()

	if perr := checkLiveness(ec); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	rec, aerr := p.adapter.ResolveExecutionContext(ec.Route)
	if aerr != nil {
		return coretypes.ActionReport{}, apperrors.FromAdapterError(aerr)
	}

	if perr := p.waitForCondition(ec, rec, condition); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	return p.finish(ec, rec, startedAt, nil), nil
}

func (p *Primitives) waitForCondition(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext, condition WaitCondition) *apperrors.PrimitiveError {
	switch condition.Kind {
	case WaitElementVisible:
		return p.waitElementVisibility(ec, rec, condition.Anchor, true)
	case WaitElementHidden:
		return p.waitElementVisibility(ec, rec, condition.Anchor, false)
	case WaitUrlMatches:
		re, err := regexp.Compile(condition.Pattern)
		if err != nil {
			return apperrors.NewPrimitiveError(apperrors.ActInternal, "invalid URL pattern: "+err.Error(), err)
		}
		return p.pollUntil(ec, func() (bool, *apperrors.PrimitiveError) {
			url, perr := p.readStringProperty(ec, rec, "window.location.href || ''")
			if perr != nil {
				return false, perr
			}
			return re.MatchString(url), nil
		})
	case WaitUrlEquals:
		return p.pollUntil(ec, func() (bool, *apperrors.PrimitiveError) {
			url, perr := p.readStringProperty(ec, rec, "window.location.href || ''")
			if perr != nil {
				return false, perr
			}
			return url == condition.Literal, nil
		})
	case WaitTitleMatches:
		re, err := regexp.Compile(condition.Pattern)
		if err != nil {
			return apperrors.NewPrimitiveError(apperrors.ActInternal, "invalid title pattern: "+err.Error(), err)
		}
		return p.pollUntil(ec, func() (bool, *apperrors.PrimitiveError) {
			title, perr := p.readStringProperty(ec, rec, "document.title || ''")
			if perr != nil {
				return false, perr
			}
			return re.MatchString(title), nil
		})
	case WaitDuration:
		deadline := time.Now().Add(time.Duration(condition.Millis) * time.Millisecond)
		return p.pollUntil(ec, func() (bool, *apperrors.PrimitiveError) {
			return !time.Now().Before(deadline), nil
		})
	case WaitNetworkIdleCondition:
		return p.waitNetworkQuiet(ec, ec.Route.Page, time.Duration(condition.Millis)*time.Millisecond)
	default:
		return apperrors.NewPrimitiveError(apperrors.ActInternal, "unknown wait condition", nil)
	}
}

func (p *Primitives) waitElementVisibility(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext, anchor coretypes.AnchorDescriptor, wantVisible bool) *apperrors.PrimitiveError {
	return p.pollUntil(ec, func() (bool, *apperrors.PrimitiveError) {
		resolved, perr := p.resolveAnchor(ec, anchor)
		if perr != nil {
			if !wantVisible && perr.Kind == apperrors.ActAnchorNotFound {
				return true, nil
			}
			return false, nil
		}

		state, perr := p.checkElementState(ec, rec, resolved.ConcreteCSSSelector)
		if perr != nil {
			if !wantVisible {
				return true, nil
			}
			return false, nil
		}
		return state.Visible == wantVisible, nil
	})
}

func (p *Primitives) readStringProperty(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext, expr string) (string, *apperrors.PrimitiveError) {
	value, aerr := p.adapter.EvaluateScriptInContext(rec, expr, ec.Deadline)
	if aerr != nil {
		return "", apperrors.FromAdapterError(aerr)
	}
	s, _ := value.(string)
	return s, nil
}

// waitNetworkQuiet polls the registered HealthSource for quiet==true
// with no in-flight requests, the NetworkQuiet{window_ms, max_inflight:0}
// gate spec.md describes. If no HealthSource was wired, it fails
// immediately with WaitTimeout rather than spinning forever.
func (p *Primitives) waitNetworkQuiet(ec *coretypes.ExecCtx, pageID coretypes.PageId, quietWindow time.Duration) *apperrors.PrimitiveError {
	if p.health == nil {
		return apperrors.WaitTimeout("no network health source configured for network-idle waits")
	}
	return p.pollUntil(ec, func() (bool, *apperrors.PrimitiveError) {
		h, err := p.health.PageHealth(pageID)
		if err != nil {
			return false, apperrors.NewPrimitiveError(apperrors.ActInternal, err.Error(), err)
		}
		if h.InFlight != 0 || !h.Quiet {
			return false, nil
		}
		return time.Since(h.LastUpdatedAt) >= quietWindow, nil
	})
}

func (p *Primitives) pollUntil(ec *coretypes.ExecCtx, check func() (bool, *apperrors.PrimitiveError)) *apperrors.PrimitiveError {
	for {
		if ec.IsCancelled() {
			return apperrors.Interrupted()
		}
		if ec.IsExpired() {
			return apperrors.WaitTimeout("condition not met before deadline")
		}

		ok, perr := check()
		if perr != nil {
			return perr
		}
		if ok {
			return nil
		}

		time.Sleep(waitPollInterval)
	}
}
