package primitives

import (
	"time"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/cdpadapter"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// Select resolves anchor to a <select> element and sets its value to
// optionValue, verifying the element's tag, enabled and visible state
// before acting (spec.md §4.5 phase 4's example). The tag check compares
// the element's tag name, so an element that is a listbox only by its ARIA
// role is rejected.
func (p *Primitives) Select(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor, optionValue string, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError) {
	startedAt := time.Now()

	if perr := checkLiveness(ec); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	resolved, perr := p.resolveAnchor(ec, anchor)
	if perr != nil {
		return coretypes.ActionReport{}, perr
	}

	rec, aerr := p.adapter.ResolveExecutionContext(ec.Route)
	if aerr != nil {
		return coretypes.ActionReport{}, apperrors.FromAdapterError(aerr)
	}

	state, perr := p.checkElementState(ec, rec, resolved.ConcreteCSSSelector)
	if perr != nil {
		return coretypes.ActionReport{}, perr
	}
	if state.Tag != "select" && state.Tag != "listbox" {
		return coretypes.ActionReport{}, apperrors.NotClickable("resolved element is not a select or listbox")
	}
	if !state.Visible {
		return coretypes.ActionReport{}, apperrors.NotClickable("element is not visible")
	}
	if state.Disabled || state.ReadOnly {
		return coretypes.ActionReport{}, apperrors.NotEnabled("element is disabled or read-only")
	}

	if perr := p.findOptionByValue(ec, rec, resolved.ConcreteCSSSelector, optionValue); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	if aerr := p.adapter.SelectOption(ec.Route.Page, resolved.ConcreteCSSSelector, optionValue, ec.Deadline); aerr != nil {
		return coretypes.ActionReport{}, apperrors.FromAdapterError(aerr)
	}

	if perr := p.applyWaitTier(ec, ec.Route.Page, wait); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	return p.finish(ec, rec, startedAt, resolved.HealInfo), nil
}

// findOptionByValue is phase 4's find_option step for the by-value select
// method: a pre-flight check that the target <select>/listbox actually has
// an <option> with the requested value before SelectOption is asked to set
// it, since assigning a non-existent value to a <select>'s .value silently
// leaves it unselected instead of erroring.
func (p *Primitives) findOptionByValue(ec *coretypes.ExecCtx, rec cdpadapter.ResolvedExecutionContext, selector, optionValue string) *apperrors.PrimitiveError {
	expression := `(() => {
		const root = document.querySelector(` + jsonEncode(selector) + `);
		if (!root) return { status: 'missing' };
		const options = Array.from(root.options || []);
		const target = ` + jsonEncode(optionValue) + `;
		const match = options.find(opt => (opt.value ?? '') === target);
		return { status: match ? 'ok' : 'not-found' };
	})()`

	value, aerr := p.adapter.EvaluateScriptInContext(rec, expression, ec.Deadline)
	if aerr != nil {
		return apperrors.FromAdapterError(aerr)
	}

	m, ok := value.(map[string]interface{})
	if !ok {
		return apperrors.AnchorNotFound("could not read option list")
	}

	switch m["status"] {
	case "ok":
		return nil
	case "missing":
		return apperrors.AnchorNotFound("resolved selector no longer matches an element")
	case "not-found":
		return apperrors.NewPrimitiveError(apperrors.ActOptionNotFound, "option with value '"+optionValue+"' not found", nil)
	default:
		return apperrors.AnchorNotFound("unexpected option lookup status")
	}
}
