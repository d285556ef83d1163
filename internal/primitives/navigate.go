package primitives

import (
	"time"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// Navigate drives the routed page to url, applies the requested wait
// tier, and reports the resulting page state.
func (p *Primitives) Navigate(ec *coretypes.ExecCtx, url string, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError) {
	startedAt := time.Now()

	if perr := checkLiveness(ec); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	if allowed, reason := ec.Policy.Allow(url); !allowed {
		return coretypes.ActionReport{}, apperrors.NewPrimitiveError(apperrors.ActPolicyDenied, reason, nil)
	}

	if aerr := p.adapter.Navigate(ec.Route.Page, url, ec.Deadline); aerr != nil {
		return coretypes.ActionReport{}, apperrors.FromAdapterError(aerr)
	}

	if perr := p.applyWaitTier(ec, ec.Route.Page, wait); perr != nil {
		return coretypes.ActionReport{}, perr
	}

	rec, aerr := p.adapter.ResolveExecutionContext(ec.Route)
	if aerr != nil {
		return coretypes.ActionReport{}, apperrors.FromAdapterError(aerr)
	}

	return p.finish(ec, rec, startedAt, nil), nil
}
