// Package primitives implements the six action primitives (navigate,
// click, type, select, scroll, wait) that the flow interpreter drives.
// Every primitive shares the same ten-phase shape (spec.md §4.5); this
// file holds the phases common to all six so each primitive file only
// spells out its own domain-specific steps.
package primitives

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/cdpadapter"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
	"github.com/soulbrowser/soulbrowser/internal/perception"
	"github.com/soulbrowser/soulbrowser/internal/registry"
)

// HealthSource supplies a page's network health, used only by the wait
// primitive's NetworkIdle condition. Interface-typed so tests can supply
// a fake without a live registry.
type HealthSource interface {
	PageHealth(page coretypes.PageId) (registry.Health, error)
}

// Primitives bundles the adapter and resolver every primitive needs.
type Primitives struct {
	adapter  *cdpadapter.Adapter
	resolver *perception.Resolver
	health   HealthSource
	logger   *zap.Logger
}

// New builds a Primitives set. health may be nil; the wait primitive's
// NetworkIdle condition then always fails with WaitTimeout.
func New(adapter *cdpadapter.Adapter, resolver *perception.Resolver, health HealthSource, logger *zap.Logger) *Primitives {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Primitives{adapter: adapter, resolver: resolver, health: health, logger: logger}
}

// checkLiveness is phase 1: cancellation beats deadline beats everything
// else, so every primitive must check both before doing anything.
func checkLiveness(ec *coretypes.ExecCtx) *apperrors.PrimitiveError {
	if ec.IsCancelled() {
		return apperrors.Interrupted()
	}
	if ec.IsExpired() {
		return apperrors.WaitTimeout("deadline exceeded before the action could run")
	}
	return nil
}

// resolveAnchor is phase 3.
func (p *Primitives) resolveAnchor(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor) (coretypes.ResolvedSelector, *apperrors.PrimitiveError) {
	return p.resolver.Resolve(ec, anchor)
}

// jsonEncode encodes v for safe interpolation into an evaluated JS
// expression, the same encode-before-interpolate rule perception.Resolver
// follows (spec.md §9).
func jsonEncode(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

const postSignalsExpr = `(() => ({ url: window.location.href || '', title: document.title || '' }))()`

// capturePostSignals is phase 7: a failure here is logged and produces
// default-empty signals, it never fails the primitive.
func (p *Primitives) capturePostSignals(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext) coretypes.PostSignals {
	value, aerr := p.adapter.EvaluateScriptInContext(rec, postSignalsExpr, ec.Deadline)
	if aerr != nil {
		p.logger.Warn("post-signal capture failed, using empty signals",
			zap.String("action_id", ec.ActionID.String()), zap.Error(aerr))
		return coretypes.PostSignals{}
	}

	m, ok := value.(map[string]interface{})
	if !ok {
		return coretypes.PostSignals{}
	}

	url, _ := m["url"].(string)
	title, _ := m["title"].(string)
	return coretypes.PostSignals{URLAfter: url, TitleAfter: title}
}

// applyWaitTier is phase 6: runs the requested post-action wait strategy
// on the page, if any. WaitTier.None is a no-op.
func (p *Primitives) applyWaitTier(ec *coretypes.ExecCtx, pageID coretypes.PageId, tier coretypes.WaitTier) *apperrors.PrimitiveError {
	switch tier {
	case coretypes.WaitNone:
		return nil
	case coretypes.WaitDomReady:
		return p.waitGate(ec, pageID, "document.readyState === 'interactive' || document.readyState === 'complete'")
	case coretypes.WaitFull:
		return p.waitGate(ec, pageID, "document.readyState === 'complete'")
	case coretypes.WaitNetworkIdle:
		return p.waitNetworkQuiet(ec, pageID, 500*time.Millisecond)
	default:
		return nil
	}
}

func (p *Primitives) waitGate(ec *coretypes.ExecCtx, pageID coretypes.PageId, gate string) *apperrors.PrimitiveError {
	if aerr := p.adapter.WaitBasic(pageID, gate, ec.Deadline); aerr != nil {
		return apperrors.FromAdapterError(aerr)
	}
	return nil
}

// elementState is what the sanity-check phase (phase 4) reads back from
// the page before acting on a resolved selector.
type elementState struct {
	Exists   bool
	Visible  bool
	Disabled bool
	ReadOnly bool
	Tag      string
}

func elementStateExpr(selector string) string {
	return `(() => {
		const el = document.querySelector(` + jsonEncode(selector) + `);
		if (!el) return { exists: false };
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		const visible = style.visibility !== 'hidden' && style.display !== 'none' &&
			(rect.width > 0 || rect.height > 0 || el.getClientRects().length > 0);
		return {
			exists: true,
			visible,
			disabled: !!el.disabled,
			readOnly: !!el.readOnly,
			tag: (el.tagName || '').toLowerCase(),
		};
	})()`
}

// checkElementState is phase 4 (sanity-check the element) for the
// primitives that act on a resolved CSS selector: click, type, select.
func (p *Primitives) checkElementState(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext, selector string) (elementState, *apperrors.PrimitiveError) {
	value, aerr := p.adapter.EvaluateScriptInContext(rec, elementStateExpr(selector), ec.Deadline)
	if aerr != nil {
		return elementState{}, apperrors.FromAdapterError(aerr)
	}

	m, ok := value.(map[string]interface{})
	if !ok {
		return elementState{}, apperrors.AnchorNotFound("could not read element state")
	}
	exists, _ := m["exists"].(bool)
	if !exists {
		return elementState{}, apperrors.AnchorNotFound("resolved selector no longer matches an element")
	}

	visible, _ := m["visible"].(bool)
	disabled, _ := m["disabled"].(bool)
	readOnly, _ := m["readOnly"].(bool)
	tag, _ := m["tag"].(string)

	return elementState{Exists: true, Visible: visible, Disabled: disabled, ReadOnly: readOnly, Tag: tag}, nil
}

// buildReport is phase 9.
func buildReport(startedAt time.Time, signals coretypes.PostSignals, heal *coretypes.HealInfo) coretypes.ActionReport {
	return coretypes.ActionReport{
		StartedAt:   startedAt,
		LatencyMs:   time.Since(startedAt).Milliseconds(),
		PostSignals: signals,
		HealInfo:    heal,
	}
}

// finish runs phases 7-9 uniformly: capture post-signals, attach heal
// info, and stamp the final report.
func (p *Primitives) finish(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext, startedAt time.Time, heal *coretypes.HealInfo) coretypes.ActionReport {
	signals := p.capturePostSignals(ec, rec)
	return buildReport(startedAt, signals, heal)
}
