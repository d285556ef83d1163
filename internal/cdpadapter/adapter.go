// Package cdpadapter presents a typed API over the Chrome DevTools Protocol
// to the rest of the core, hiding WebSocket framing, command correlation,
// session attachment and target lifecycle (spec.md §4.1). It does this by
// wrapping chromedp's own ExecAllocator/BrowserContext plumbing rather than
// re-implementing command correlation: chromedp's Action/ListenTarget
// already gives typed command and event primitives, so there is no raw
// WebSocket framing left to hand-roll here.
package cdpadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/chrome"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// AttachFunc is notified whenever Start (or a later target attach event)
// brings a new CDP target under management, after RegisterPage has already
// made it queryable. It lets the registry-owning caller fold the discovery
// into its own session/page bookkeeping without the adapter importing
// internal/registry (spec.md §4.1/§4.2 stay decoupled).
type AttachFunc func(pageID coretypes.PageId, targetID, sessionID string)

// pageState is everything the adapter keeps for one registered page: its
// own chromedp tab context (derived from the owning Instance's browser
// context) plus the target/session identifiers CDP assigned it.
type pageState struct {
	ctx       context.Context
	cancel    context.CancelFunc
	targetID  string
	sessionID string

	mu        sync.Mutex
	isolated  map[string]runtime.ExecutionContextID // frame id -> isolated world context
}

// ResolvedExecutionContext is what resolve_execution_context produces: the
// CDP-level coordinates an adapter call needs to act within a logical route.
type ResolvedExecutionContext struct {
	Page      coretypes.PageId
	TargetID  string
	SessionID string
	FrameID   string
	WorldID   runtime.ExecutionContextID
}

// Adapter is the typed CDP facade for a single Chrome Instance. One Adapter
// hosts many pages (tabs), each identified by a logical PageId; this
// generalizes the teacher's chrome.Instance (which only ever drove one
// anonymous tab per render) to the multi-page session model spec.md
// requires.
type Adapter struct {
	instance *chrome.Instance
	logger   *zap.Logger
	bus      *eventBus

	startOnce sync.Once
	startErr  error
	onAttach  AttachFunc

	mu    sync.RWMutex
	pages map[coretypes.PageId]*pageState
}

// New builds an Adapter over an already-running Chrome instance.
func New(instance *chrome.Instance, logger *zap.Logger) *Adapter {
	return &Adapter{
		instance: instance,
		logger:   logger,
		bus:      newEventBus(logger),
		pages:    make(map[coretypes.PageId]*pageState),
	}
}

// Start connects to the browser, attaches to every target already open on
// it (spec.md §4.1's "attach to existing targets"), and begins the browser
// event pump. onAttach, if non-nil, fires once per attached target (the
// ones discovered here plus any attached later via handleBrowserEvent) so
// the caller can fold the new page into its own session registry. Start is
// idempotent: subsequent calls return the result of the first call.
func (a *Adapter) Start(ctx context.Context, onAttach AttachFunc) error {
	a.startOnce.Do(func() {
		a.onAttach = onAttach

		browserCtx, _ := a.instance.GetContext()
		chromedp.ListenBrowser(browserCtx, func(ev interface{}) {
			a.handleBrowserEvent(ev)
		})

		a.startErr = a.discoverExistingTargets(browserCtx)
	})
	return a.startErr
}

// discoverExistingTargets enumerates the browser's live targets and attaches
// to each page-type one the adapter doesn't already track. This is what
// picks up the tab chrome.Instance.createBrowser's about:blank startup
// navigation already opened, before a single Navigate/Click call has ever
// been issued.
func (a *Adapter) discoverExistingTargets(browserCtx context.Context) error {
	var infos []*target.Info
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		infos, err = target.GetTargets().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("cdpadapter: list existing targets: %w", err)
	}

	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if _, err := a.attachToTarget(coretypes.PageId(string(info.TargetID)), string(info.TargetID)); err != nil {
			return fmt.Errorf("cdpadapter: attach to target %s: %w", info.TargetID, err)
		}
	}
	return nil
}

// attachToTarget attaches a tab context to an already-existing CDP target
// (chromedp.WithTargetID), as opposed to RegisterPage's chromedp.NewContext,
// which allocates a brand new one. Idempotent per pageID: attaching twice is
// a no-op. Reports whether this call was the one that actually attached, so
// callers can avoid firing onAttach twice for the same target.
func (a *Adapter) attachToTarget(pageID coretypes.PageId, targetID string) (bool, error) {
	a.mu.Lock()
	if _, exists := a.pages[pageID]; exists {
		a.mu.Unlock()
		return false, nil
	}
	// Reserve the slot before the target actually materializes so a
	// recursive Target.attachedToTarget event for this same attach can't
	// race us into attaching twice.
	a.pages[pageID] = &pageState{isolated: make(map[string]runtime.ExecutionContextID)}
	a.mu.Unlock()

	browserCtx, _ := a.instance.GetContext()
	tabCtx, cancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(target.ID(targetID)))

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		a.mu.Lock()
		delete(a.pages, pageID)
		a.mu.Unlock()
		return false, err
	}
	sessionID := string(chromedp.FromContext(tabCtx).Target.SessionID)

	ps := &pageState{
		ctx:       tabCtx,
		cancel:    cancel,
		targetID:  targetID,
		sessionID: sessionID,
		isolated:  make(map[string]runtime.ExecutionContextID),
	}

	a.mu.Lock()
	a.pages[pageID] = ps
	a.mu.Unlock()

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		a.handlePageEvent(pageID, ev)
	})

	if a.onAttach != nil {
		a.onAttach(pageID, targetID, sessionID)
	}
	return true, nil
}

func (a *Adapter) handleBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		a.bus.publish(RawEvent{
			Kind:    EventPageNavigated,
			FrameID: string(e.Frame.ID),
			URL:     e.Frame.URL,
		})
	case *target.EventAttachedToTarget:
		if e.TargetInfo.Type != "page" {
			return
		}
		pageID := coretypes.PageId(string(e.TargetInfo.TargetID))
		if _, err := a.attachToTarget(pageID, string(e.TargetInfo.TargetID)); err != nil {
			a.logger.Warn("failed to attach to newly discovered target",
				zap.String("target_id", string(e.TargetInfo.TargetID)),
				zap.Error(err),
			)
		}
	}
}

// RegisterPage opens a brand new tab under the owning Instance's browser
// context and tracks it under pageID, ignoring any caller-supplied
// targetID/sessionID beyond bookkeeping. Used to seed tests with a page
// without needing a live CDP target; real targets are attached via
// attachToTarget instead, which targets a specific existing one.
func (a *Adapter) RegisterPage(pageID coretypes.PageId, targetID, sessionID string) error {
	browserCtx, _ := a.instance.GetContext()
	tabCtx, cancel := chromedp.NewContext(browserCtx)

	ps := &pageState{
		ctx:       tabCtx,
		cancel:    cancel,
		targetID:  targetID,
		sessionID: sessionID,
		isolated:  make(map[string]runtime.ExecutionContextID),
	}

	a.mu.Lock()
	a.pages[pageID] = ps
	a.mu.Unlock()

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		a.handlePageEvent(pageID, ev)
	})

	return nil
}

// UnregisterPage releases a page's tab context. Safe to call more than once.
func (a *Adapter) UnregisterPage(pageID coretypes.PageId) {
	a.mu.Lock()
	ps, ok := a.pages[pageID]
	if ok {
		delete(a.pages, pageID)
	}
	a.mu.Unlock()

	if ok {
		ps.cancel()
	}
}

func (a *Adapter) handlePageEvent(pageID coretypes.PageId, ev interface{}) {
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		a.bus.publish(RawEvent{
			Kind:          EventPageLifecycle,
			Page:          pageID,
			LifecycleName: e.Name,
			FrameID:       string(e.FrameID),
		})
	case *page.EventFrameNavigated:
		a.bus.publish(RawEvent{
			Kind:    EventPageNavigated,
			Page:    pageID,
			FrameID: string(e.Frame.ID),
			URL:     e.Frame.URL,
		})
	}
}

// Subscribe returns a broadcast stream of RawEvents and a release func to
// stop receiving them.
func (a *Adapter) Subscribe(buffer int) (<-chan RawEvent, func()) {
	return a.bus.Subscribe(buffer)
}

func (a *Adapter) lookupPage(pageID coretypes.PageId) (*pageState, *apperrors.AdapterError) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ps, ok := a.pages[pageID]
	if !ok {
		return nil, apperrors.TargetNotFound(fmt.Sprintf("page %s is not registered", pageID))
	}
	return ps, nil
}

// ResolveExecutionContext produces the CDP-level coordinates for a logical
// route: the registered page's tab context plus, if the route names a
// frame, that frame's isolated execution world.
func (a *Adapter) ResolveExecutionContext(route coretypes.ExecRoute) (ResolvedExecutionContext, *apperrors.AdapterError) {
	ps, aerr := a.lookupPage(route.Page)
	if aerr != nil {
		return ResolvedExecutionContext{}, aerr
	}

	rec := ResolvedExecutionContext{
		Page:      route.Page,
		TargetID:  ps.targetID,
		SessionID: ps.sessionID,
		FrameID:   string(route.Frame),
	}

	ps.mu.Lock()
	if id, ok := ps.isolated[string(route.Frame)]; ok {
		rec.WorldID = id
	}
	ps.mu.Unlock()

	return rec, nil
}

func deadlineCtx(parent context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.WithCancel(parent)
	}
	return context.WithDeadline(parent, deadline)
}

// EvaluateScriptInContext runs expression in the resolved execution context
// and returns the deserialized JSON value. Callers are expected to
// JSON-encode any interpolated arguments themselves before building
// expression (spec.md §9's "encode before interpolate" rule); this method
// only evaluates.
func (a *Adapter) EvaluateScriptInContext(rec ResolvedExecutionContext, expression string, deadline time.Time) (interface{}, *apperrors.AdapterError) {
	ps, aerr := a.lookupPage(rec.Page)
	if aerr != nil {
		return nil, aerr
	}

	ctx, cancel := deadlineCtx(ps.ctx, deadline)
	defer cancel()

	var result interface{}
	opts := []chromedp.EvaluateOption{chromedp.EvalAsValue}
	if rec.WorldID != 0 {
		opts = append(opts, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithContextID(rec.WorldID)
		})
	}

	err := chromedp.Run(ctx, chromedp.Evaluate(expression, &result, opts...))
	if err != nil {
		return nil, classifyErr(err)
	}
	return result, nil
}

// DomSnapshot performs a batched DOM read: the root document node plus its
// outer HTML, used by internal/perception to build a StructuralSnapshot.
func (a *Adapter) DomSnapshot(pageID coretypes.PageId, deadline time.Time) (string, *apperrors.AdapterError) {
	ps, aerr := a.lookupPage(pageID)
	if aerr != nil {
		return "", aerr
	}

	ctx, cancel := deadlineCtx(ps.ctx, deadline)
	defer cancel()

	var html string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", classifyErr(err)
	}
	return html, nil
}

// QueryResult is one element matched by Query: a backend node id plus its
// viewport-relative geometry, which internal/perception turns into
// AnchorCandidates.
type QueryResult struct {
	BackendNodeID int64
	X, Y, W, H    float64
}

// Query runs a CSS selector against page and returns every matching element
// as a backend node id with geometry.
func (a *Adapter) Query(pageID coretypes.PageId, selector string, deadline time.Time) ([]QueryResult, *apperrors.AdapterError) {
	ps, aerr := a.lookupPage(pageID)
	if aerr != nil {
		return nil, aerr
	}

	ctx, cancel := deadlineCtx(ps.ctx, deadline)
	defer cancel()

	var out []QueryResult
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		nodeIDs, err := dom.QuerySelectorAll(root.NodeID, selector).Do(ctx)
		if err != nil {
			return err
		}
		for _, id := range nodeIDs {
			box, err := dom.GetBoxModel().WithNodeID(id).Do(ctx)
			if err != nil || box == nil || len(box.Content) < 8 {
				continue
			}
			node, err := dom.DescribeNode().WithNodeID(id).Do(ctx)
			var backendID int64
			if err == nil && node != nil {
				backendID = int64(node.BackendNodeID)
			}
			out = append(out, QueryResult{
				BackendNodeID: backendID,
				X:             box.Content[0],
				Y:             box.Content[1],
				W:             box.Content[2] - box.Content[0],
				H:             box.Content[5] - box.Content[1],
			})
		}
		return nil
	}))
	if err != nil {
		return nil, classifyErr(err)
	}
	return out, nil
}

// Navigate drives the page to url, waiting for it to become interactive.
func (a *Adapter) Navigate(pageID coretypes.PageId, url string, deadline time.Time) *apperrors.AdapterError {
	ps, aerr := a.lookupPage(pageID)
	if aerr != nil {
		return aerr
	}

	ctx, cancel := deadlineCtx(ps.ctx, deadline)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Navigate(url)); err != nil {
		return classifyErr(err)
	}
	return nil
}

// WaitBasic blocks until gate (a JS boolean expression) evaluates truthy or
// the deadline passes.
func (a *Adapter) WaitBasic(pageID coretypes.PageId, gate string, deadline time.Time) *apperrors.AdapterError {
	ps, aerr := a.lookupPage(pageID)
	if aerr != nil {
		return aerr
	}

	ctx, cancel := deadlineCtx(ps.ctx, deadline)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Poll(gate, nil)); err != nil {
		return classifyErr(err)
	}
	return nil
}

// SelectOption sets a <select>'s value via selector to optionValue.
func (a *Adapter) SelectOption(pageID coretypes.PageId, selector, optionValue string, deadline time.Time) *apperrors.AdapterError {
	ps, aerr := a.lookupPage(pageID)
	if aerr != nil {
		return aerr
	}

	ctx, cancel := deadlineCtx(ps.ctx, deadline)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.SetValue(selector, optionValue, chromedp.ByQuery))
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// TypeTextInContext sends keystrokes for text into the element at selector
// within the resolved execution context's frame.
func (a *Adapter) TypeTextInContext(rec ResolvedExecutionContext, selector, text string, deadline time.Time) *apperrors.AdapterError {
	ps, aerr := a.lookupPage(rec.Page)
	if aerr != nil {
		return aerr
	}

	ctx, cancel := deadlineCtx(ps.ctx, deadline)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// Click dispatches a mouse click against the element at selector.
func (a *Adapter) Click(pageID coretypes.PageId, selector string, deadline time.Time) *apperrors.AdapterError {
	ps, aerr := a.lookupPage(pageID)
	if aerr != nil {
		return aerr
	}

	ctx, cancel := deadlineCtx(ps.ctx, deadline)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.Click(selector, chromedp.ByQuery))
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// classifyErr maps a chromedp/context error onto the AdapterErrorKind
// taxonomy. context.DeadlineExceeded becomes NavTimeout; everything else is
// treated as a transport-level CdpIo failure.
func classifyErr(err error) *apperrors.AdapterError {
	if err == context.DeadlineExceeded {
		return apperrors.NavTimeout(err)
	}
	return apperrors.CdpIo(err)
}
