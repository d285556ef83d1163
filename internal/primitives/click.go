package primitives

import (
	"time"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// Click resolves anchor to a concrete selector and dispatches a mouse
// click on it.
func (p *Primitives) Click(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError) {
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
	if state.Disabled {
		return coretypes.ActionReport{}, apperrors.NotEnabled("element is disabled")
	}

	if aerr := p.adapter.Click(ec.Route.Page, resolved.ConcreteCSSSelector, ec.Deadline); aerr != nil {
		return coretypes.ActionReport{}, apperrors.FromAdapterError(aerr)
	}

	if perr := p.applyWaitTier(ec, ec.Route.Page, wait); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	return p.finish(ec, rec, startedAt, resolved.HealInfo), nil
}
