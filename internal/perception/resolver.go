package perception

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/cdpadapter"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// Confidence bands for each resolution strategy (spec.md §4.3).
const (
	ConfidenceBackendNode   = 0.90
	ConfidenceCssLiteral    = 0.68
	ConfidenceCssSuffix     = 0.58
	ConfidenceAriaFull      = 0.66
	ConfidenceAriaRoleOnly  = 0.60
	ConfidenceAccessibility = 0.62
	ConfidenceTextContains  = 0.57
	ConfidenceTextCI        = 0.52
	ConfidenceTextFuzzBase  = 0.45
	ConfidenceTextFuzzGain  = 0.10
	ConfidenceAttribute     = 0.55
	ConfidenceGeometry      = 0.50
	ConfidenceComboBonus    = 0.05
)

// anchorAttr is the data-* attribute injected by script-based resolvers to
// tag the located element, mirroring the reference resolver's
// "data-soulbrowser-anchor" convention.
const anchorAttr = "data-soulbrowser-anchor"

// clamp01 clamps a confidence value to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampTextFuzz clamps the fuzzy-text confidence band to [0.3, 0.6], the
// band the reference implementation (original_source's generate.rs scorer)
// uses, rather than [0, 1]. For a similarity in [0, 1] the base formula
// 0.45 + 0.1*fuzz already lies in [0.45, 0.55]; the clamp bounds
// out-of-range similarities. See DESIGN.md's Open Question resolution.
func clampTextFuzz(v float64) float64 {
	if v < 0.3 {
		return 0.3
	}
	if v > 0.6 {
		return 0.6
	}
	return v
}

// FuzzyTextConfidence scores a fuzzy text match given a similarity in
// [0, 1], applying the reference implementation's tightened [0.3, 0.6] band.
func FuzzyTextConfidence(fuzz float64) float64 {
	return clampTextFuzz(ConfidenceTextFuzzBase + ConfidenceTextFuzzGain*fuzz)
}

// Resolver turns an AnchorDescriptor into a ResolvedSelector by evaluating
// JavaScript in the page (for Aria/Text/Attr/Combo) or passing a CSS
// selector through unchanged, following the reference locator's per-kind
// dispatch (original_source/crates/action-primitives/src/locator.rs).
type Resolver struct {
	adapter *cdpadapter.Adapter
	cache   *AnchorCache
}

// NewResolver builds a Resolver backed by adapter and caching resolutions
// in cache.
func NewResolver(adapter *cdpadapter.Adapter, cache *AnchorCache) *Resolver {
	return &Resolver{adapter: adapter, cache: cache}
}

// Resolve resolves anchor against route, consulting (and populating) the
// anchor cache first.
func (r *Resolver) Resolve(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor) (coretypes.ResolvedSelector, *apperrors.PrimitiveError) {
	fingerprint := AnchorFingerprint(ec.Route.Page.String(), ec.Route.Frame.String(), anchorCacheKey(anchor))

	if cached, ok := r.cache.Get(fingerprint); ok {
		if rs, ok := cached.(coretypes.ResolvedSelector); ok {
			return rs, nil
		}
	}

	rec, aerr := r.adapter.ResolveExecutionContext(ec.Route)
	if aerr != nil {
		return coretypes.ResolvedSelector{}, apperrors.FromAdapterError(aerr)
	}

	rs, perr := r.resolveOnPage(ec, rec, anchor)
	if perr != nil {
		return coretypes.ResolvedSelector{}, perr
	}

	r.cache.Put(fingerprint, rs)
	return rs, nil
}

func (r *Resolver) resolveOnPage(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext, anchor coretypes.AnchorDescriptor) (coretypes.ResolvedSelector, *apperrors.PrimitiveError) {
	switch anchor.Kind {
	case coretypes.AnchorCss:
		trimmed := strings.TrimSpace(anchor.Selector)
		if trimmed == "" {
			return coretypes.ResolvedSelector{}, apperrors.AnchorNotFound("empty CSS selector")
		}
		return coretypes.ResolvedSelector{
			ConcreteCSSSelector: trimmed,
			ExecutionContext:    rec.FrameID,
			StrategyLabel:       "css",
			Confidence:          ConfidenceCssLiteral,
		}, nil

	case coretypes.AnchorAria:
		if strings.TrimSpace(anchor.Role) == "" || strings.TrimSpace(anchor.Name) == "" {
			return coretypes.ResolvedSelector{}, apperrors.AnchorNotFound("ARIA role and name must be provided")
		}
		return r.evaluateTagSelector(ec, rec, ariaExpression(anchor.Role, anchor.Name), "ARIA descriptor", "aria", ConfidenceAriaFull)

	case coretypes.AnchorText:
		if strings.TrimSpace(anchor.Text) == "" {
			return coretypes.ResolvedSelector{}, apperrors.AnchorNotFound("text content cannot be empty")
		}
		confidence := ConfidenceTextCI
		if anchor.Exact {
			confidence = ConfidenceTextContains
		}
		return r.evaluateTagSelector(ec, rec, textExpression(anchor.Text, anchor.Exact), "text anchor", "text", confidence)

	case coretypes.AnchorAttr:
		if strings.TrimSpace(anchor.AttrKey) == "" {
			return coretypes.ResolvedSelector{}, apperrors.AnchorNotFound("attribute key must be provided")
		}
		selector := fmt.Sprintf("[%s=%q]", anchor.AttrKey, anchor.AttrValue)
		return coretypes.ResolvedSelector{
			ConcreteCSSSelector: selector,
			ExecutionContext:    rec.FrameID,
			StrategyLabel:       "attr",
			Confidence:          ConfidenceAttribute,
		}, nil

	case coretypes.AnchorBackend:
		if anchor.BackendNodeID == 0 {
			return coretypes.ResolvedSelector{}, apperrors.AnchorNotFound("backend node id must be non-zero")
		}
		return coretypes.ResolvedSelector{
			ConcreteCSSSelector: fmt.Sprintf("/* backend-node:%d */", anchor.BackendNodeID),
			ExecutionContext:    rec.FrameID,
			StrategyLabel:       "backend",
			Confidence:          ConfidenceBackendNode,
		}, nil

	case coretypes.AnchorGeometry:
		return coretypes.ResolvedSelector{
			ConcreteCSSSelector: fmt.Sprintf("/* geometry:%.0f,%.0f,%.0f,%.0f */", anchor.GeomX, anchor.GeomY, anchor.GeomW, anchor.GeomH),
			ExecutionContext:    rec.FrameID,
			StrategyLabel:       "geometry",
			Confidence:          ConfidenceGeometry,
		}, nil

	case coretypes.AnchorCombo:
		return r.resolveCombo(ec, rec, anchor.Sub)

	default:
		return coretypes.ResolvedSelector{}, apperrors.AnchorNotFound("unknown anchor kind")
	}
}

func (r *Resolver) resolveCombo(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext, sub []coretypes.AnchorDescriptor) (coretypes.ResolvedSelector, *apperrors.PrimitiveError) {
	if len(sub) == 0 {
		return coretypes.ResolvedSelector{}, apperrors.AnchorNotFound("combo anchor has no sub-strategies")
	}

	var sum float64
	var best coretypes.ResolvedSelector
	for _, s := range sub {
		rs, perr := r.resolveOnPage(ec, rec, s)
		if perr != nil {
			return coretypes.ResolvedSelector{}, perr
		}
		sum += rs.Confidence
		if rs.Confidence > best.Confidence {
			best = rs
		}
	}

	mean := sum / float64(len(sub))
	confidence := clamp01(mean + ConfidenceComboBonus*float64(len(sub)-1))

	return coretypes.ResolvedSelector{
		ConcreteCSSSelector: best.ConcreteCSSSelector,
		ExecutionContext:    rec.FrameID,
		StrategyLabel:       "combo",
		Confidence:          confidence,
	}, nil
}

// evaluateTagSelector runs an expression that tags a matched element with a
// fresh data-* token and returns a selector for that token.
func (r *Resolver) evaluateTagSelector(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext, expression, label, strategy string, confidence float64) (coretypes.ResolvedSelector, *apperrors.PrimitiveError) {
	value, aerr := r.adapter.EvaluateScriptInContext(rec, expression, ec.Deadline)
	if aerr != nil {
		return coretypes.ResolvedSelector{}, apperrors.FromAdapterError(aerr)
	}

	selector, ok := extractSelector(value)
	if !ok {
		return coretypes.ResolvedSelector{}, apperrors.AnchorNotFound(fmt.Sprintf("%s did not resolve to a visible element", label))
	}

	return coretypes.ResolvedSelector{
		ConcreteCSSSelector: selector,
		ExecutionContext:    rec.FrameID,
		StrategyLabel:       strategy,
		Confidence:          confidence,
	}, nil
}

func extractSelector(value interface{}) (string, bool) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return "", false
	}
	status, _ := m["status"].(string)
	if status != "ok" {
		return "", false
	}
	selector, ok := m["selector"].(string)
	return selector, ok
}

func anchorCacheKey(anchor coretypes.AnchorDescriptor) string {
	switch anchor.Kind {
	case coretypes.AnchorCss:
		return "css:" + anchor.Selector
	case coretypes.AnchorAria:
		return "aria:" + anchor.Role + ":" + anchor.Name
	case coretypes.AnchorText:
		return fmt.Sprintf("text:%t:%s", anchor.Exact, anchor.Text)
	case coretypes.AnchorAttr:
		return "attr:" + anchor.AttrKey + "=" + anchor.AttrValue
	case coretypes.AnchorBackend:
		return fmt.Sprintf("backend:%d", anchor.BackendNodeID)
	case coretypes.AnchorGeometry:
		return fmt.Sprintf("geom:%.0f,%.0f,%.0f,%.0f", anchor.GeomX, anchor.GeomY, anchor.GeomW, anchor.GeomH)
	default:
		return "combo"
	}
}

// jsonEncode encodes v the way the reference resolver assembles expressions:
// encode-before-interpolate, never string concatenation, to avoid injection
// through user-controlled anchor text (spec.md §9).
func jsonEncode(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func ariaExpression(role, name string) string {
	token := "aria-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf(`(() => {
		const role = %s;
		const targetName = %s;
		const attr = %s;
		const token = %s;
		const normalize = (input) => (input || '').trim().toLowerCase();
		const computeName = (el) => {
			if (!el) return '';
			const label = el.getAttribute('aria-label');
			if (label) return label.trim();
			const labelledby = el.getAttribute('aria-labelledby');
			if (labelledby) {
				return labelledby.split(/\s+/)
					.map(id => document.getElementById(id))
					.map(node => node ? (node.textContent || '') : '')
					.join(' ')
					.trim();
			}
			if (el.title) return el.title.trim();
			return (el.innerText || el.textContent || '').trim();
		};
		const matches = Array.from(document.querySelectorAll('[role="' + role + '"]'));
		const match = matches.find(el => normalize(computeName(el)) === normalize(targetName));
		if (!match) {
			return { status: 'not-found' };
		}
		match.setAttribute(attr, token);
		return { status: 'ok', selector: '[' + attr + '="' + token + '"]' };
	})()`, jsonEncode(role), jsonEncode(name), jsonEncode(anchorAttr), jsonEncode(token))
}

func textExpression(text string, exact bool) string {
	token := "text-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	exactLiteral := "false"
	if exact {
		exactLiteral = "true"
	}
	return fmt.Sprintf(`(() => {
		const target = %s;
		const attr = %s;
		const token = %s;
		const exact = %s;
		const normalize = (input) => (input || '').trim();
		const lower = (input) => normalize(input).toLowerCase();
		const isVisible = (el) => {
			if (!(el instanceof Element)) return false;
			const style = window.getComputedStyle(el);
			if (style.visibility === 'hidden' || style.display === 'none') return false;
			const rect = el.getBoundingClientRect();
			return rect.width > 0 || rect.height > 0 || el.getClientRects().length > 0;
		};
		const nodes = Array.from(document.querySelectorAll('body *'));
		const match = nodes.find(el => {
			if (!isVisible(el)) return false;
			const value = normalize(el.innerText || el.textContent || '');
			if (!value) return false;
			if (exact) {
				return lower(value) === lower(target);
			}
			return lower(value).includes(lower(target));
		});
		if (!match) {
			return { status: 'not-found' };
		}
		match.setAttribute(attr, token);
		return { status: 'ok', selector: '[' + attr + '="' + token + '"]' };
	})()`, jsonEncode(text), jsonEncode(anchorAttr), jsonEncode(token), exactLiteral)
}
