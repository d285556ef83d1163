package primitives

import (
	"time"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// Type resolves anchor and sends text as keystrokes into it.
func (p *Primitives) Type(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor, text string, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError) {
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
	if !state.Visible {
		return coretypes.ActionReport{}, apperrors.NotClickable("element is not visible")
	}
	if state.Disabled || state.ReadOnly {
		return coretypes.ActionReport{}, apperrors.NotEnabled("element is disabled or read-only")
	}

	if aerr := p.adapter.TypeTextInContext(rec, resolved.ConcreteCSSSelector, text, ec.Deadline); aerr != nil {
		return coretypes.ActionReport{}, apperrors.FromAdapterError(aerr)
	}

	if perr := p.applyWaitTier(ec, ec.Route.Page, wait); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	return p.finish(ec, rec, startedAt, resolved.HealInfo), nil
}
