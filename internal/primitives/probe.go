package primitives

import (
	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// ElementProbe is a read-only view of an anchor's current state, used by
// the flow interpreter's condition evaluation (ElementExists /
// ElementVisible) rather than by any action primitive.
type ElementProbe struct {
	Exists  bool
	Visible bool
}

// Probe resolves anchor and reports its current existence and visibility
// without acting on it. A resolution failure (anchor not found) reports
// Exists: false rather than an error, since "does this element exist" is
// exactly the question being asked.
func (p *Primitives) Probe(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor) (ElementProbe, *apperrors.PrimitiveError) {
	if perr := checkLiveness(ec); perr != nil {
		return ElementProbe{}, perr
	}

	resolved, perr := p.resolveAnchor(ec, anchor)
	if perr != nil {
		if perr.Kind == apperrors.ActAnchorNotFound {
			return ElementProbe{}, nil
		}
		return ElementProbe{}, perr
	}

	rec, aerr := p.adapter.ResolveExecutionContext(ec.Route)
	if aerr != nil {
		return ElementProbe{}, apperrors.FromAdapterError(aerr)
	}

	state, perr := p.checkElementState(ec, rec, resolved.ConcreteCSSSelector)
	if perr != nil {
		if perr.Kind == apperrors.ActAnchorNotFound {
			return ElementProbe{}, nil
		}
		return ElementProbe{}, perr
	}

	return ElementProbe{Exists: true, Visible: state.Visible}, nil
}

// PageState is a read-only snapshot of the routed page's URL and title,
// used by the flow interpreter's UrlMatches / TitleMatches conditions.
type PageState struct {
	URL   string
	Title string
}

// ReadPageState reads the routed page's current URL and title.
func (p *Primitives) ReadPageState(ec *coretypes.ExecCtx) (PageState, *apperrors.PrimitiveError) {
	if perr := checkLiveness(ec); perr != nil {
		return PageState{}, perr
	}

	rec, aerr := p.adapter.ResolveExecutionContext(ec.Route)
	if aerr != nil {
		return PageState{}, apperrors.FromAdapterError(aerr)
	}

	url, perr := p.readStringProperty(ec, rec, "window.location.href || ''")
	if perr != nil {
		return PageState{}, perr
	}
	title, perr := p.readStringProperty(ec, rec, "document.title || ''")
	if perr != nil {
		return PageState{}, perr
	}
	return PageState{URL: url, Title: title}, nil
}

// EvaluateExpr evaluates an arbitrary JS boolean expression against the
// routed page, used by the flow interpreter's JsEvaluates condition.
func (p *Primitives) EvaluateExpr(ec *coretypes.ExecCtx, expr string) (bool, *apperrors.PrimitiveError) {
	if perr := checkLiveness(ec); perr != nil {
		return false, perr
	}

	rec, aerr := p.adapter.ResolveExecutionContext(ec.Route)
	if aerr != nil {
		return false, apperrors.FromAdapterError(aerr)
	}

	value, aerr := p.adapter.EvaluateScriptInContext(rec, expr, ec.Deadline)
	if aerr != nil {
		return false, apperrors.FromAdapterError(aerr)
	}

	b, _ := value.(bool)
	return b, nil
}
