package primitives

import (
	"fmt"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// Scroll scrolls the page (anchor nil) or a specific element (anchor
// non-nil) by (deltaX, deltaY) pixels, via a small JS snippet rather than
// a dedicated CDP scroll command, since the scrollable target can be an
// arbitrary element, not just the viewport.
func (p *Primitives) Scroll(ec *coretypes.ExecCtx, anchor *coretypes.AnchorDescriptor, deltaX, deltaY float64, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError) {
	startedAt := time.Now()

	if perr := checkLiveness(ec); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	rec, aerr := p.adapter.ResolveExecutionContext(ec.Route)
	if aerr != nil {
		return coretypes.ActionReport{}, apperrors.FromAdapterError(aerr)
	}

	var heal *coretypes.HealInfo
	expr := windowScrollExpr(deltaX, deltaY)

	if anchor != nil {
		resolved, perr := p.resolveAnchor(ec, *anchor)
		if perr != nil {
			return coretypes.ActionReport{}, perr
		}
		heal = resolved.HealInfo
		expr = elementScrollExpr(resolved.ConcreteCSSSelector, deltaX, deltaY)
	}

	if _, aerr := p.adapter.EvaluateScriptInContext(rec, expr, ec.Deadline); aerr != nil {
		return coretypes.ActionReport{}, apperrors.FromAdapterError(aerr)
	}

	if perr := p.applyWaitTier(ec, ec.Route.Page, wait); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	return p.finish(ec, rec, startedAt, heal), nil
}

func windowScrollExpr(dx, dy float64) string {
	return fmt.Sprintf(`(() => { window.scrollBy(%g, %g); return { status: 'ok' }; })()`, dx, dy)
}

func elementScrollExpr(selector string, dx, dy float64) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return { status: 'not-found' };
		el.scrollBy(%g, %g);
		return { status: 'ok' };
	})()`, jsonEncode(selector), dx, dy)
}
