package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// ErrNoActivePage is returned by RouteResolve when the registry holds no
// live page to route to (spec.md §4.2).
var ErrNoActivePage = errors.New("registry: no active page")

// RoutingHint narrows route resolution to a specific page and/or frame.
type RoutingHint struct {
	Page  coretypes.PageId
	Frame coretypes.FrameId
}

// Registry is the live tree of sessions, pages and frames. Mutations
// arriving via Submit are applied single-writer on an internal goroutine;
// direct creation calls (SessionCreate, PageOpen) take the lock themselves
// since they must hand back a freshly generated id.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[coretypes.SessionId]*SessionCtx
	pages    map[coretypes.PageId]*PageCtx
	frames   map[coretypes.FrameId]*FrameCtx

	focusedPage coretypes.PageId

	events chan Event
	done   chan struct{}
}

// New builds a Registry and starts its event ingestion goroutine.
func New(logger *zap.Logger) *Registry {
	r := &Registry{
		logger:   logger,
		sessions: make(map[coretypes.SessionId]*SessionCtx),
		pages:    make(map[coretypes.PageId]*PageCtx),
		frames:   make(map[coretypes.FrameId]*FrameCtx),
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
	}
	go r.ingest()
	return r
}

// Close stops the ingestion goroutine.
func (r *Registry) Close() {
	close(r.done)
}

// Submit enqueues an asynchronous registry mutation (spec.md §4.2's
// "background task consumes RegistryEvent"). Non-blocking is not required
// here: the channel is generously buffered and callers are expected to be
// CDP event handlers, not latency-critical primitives.
func (r *Registry) Submit(ev Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *Registry) ingest() {
	for {
		select {
		case ev := <-r.events:
			if err := r.apply(ev); err != nil {
				r.logger.Warn("registry ingest error", zap.Error(err))
			}
		case <-r.done:
			return
		}
	}
}

func (r *Registry) apply(ev Event) error {
	switch ev.Kind {
	case EventPageOpen:
		return r.pageOpenExternal(ev.Session, ev.Page)
	case EventPageFocus:
		return r.pageFocus(ev.Page)
	case EventPageClose:
		return r.pageClose(ev.Page)
	case EventFrameFocus:
		return r.frameFocus(ev.Page, ev.Frame)
	case EventFrameAttached:
		return r.frameAttached(ev.Page, ev.Parent, ev.Frame, ev.IsMain)
	case EventFrameDetached:
		return r.frameDetached(ev.Frame)
	case EventNetworkSummary:
		return r.applyNetworkSummary(ev.Page, ev.NetSummary)
	case EventHealthProbeTick:
		return nil
	default:
		return nil
	}
}

// SessionCreate registers a new session and returns its id.
func (r *Registry) SessionCreate(label string) coretypes.SessionId {
	id := coretypes.SessionId(uuid.NewString())

	r.mu.Lock()
	r.sessions[id] = &SessionCtx{ID: id, Label: label, State: LifeActive}
	r.mu.Unlock()

	return id
}

// PageOpen creates a page (and its main frame) under session and returns
// the new page id.
func (r *Registry) PageOpen(session coretypes.SessionId) (coretypes.PageId, error) {
	pageID := coretypes.PageId(uuid.NewString())
	frameID := coretypes.FrameId(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[session]
	if !ok {
		return "", errors.New("registry: unknown session")
	}

	r.frames[frameID] = &FrameCtx{ID: frameID, Page: pageID, IsMain: true}
	r.pages[pageID] = &PageCtx{
		ID:           pageID,
		Session:      session,
		MainFrame:    frameID,
		FocusedFrame: frameID,
		State:        LifeActive,
	}
	sess.Pages = append(sess.Pages, pageID)
	r.focusedPage = pageID

	return pageID, nil
}

// pageOpenExternal registers a page whose id was assigned outside the
// registry (cdpadapter.Adapter.Start's target discovery, which keys pages by
// CDP target id rather than asking the registry to mint one). Idempotent:
// re-announcing an already-known page is a no-op, since the same target can
// be discovered once at startup and again via Target.attachedToTarget.
func (r *Registry) pageOpenExternal(session coretypes.SessionId, page coretypes.PageId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pages[page]; exists {
		return nil
	}

	sess, ok := r.sessions[session]
	if !ok {
		return errors.New("registry: unknown session")
	}

	frameID := coretypes.FrameId(uuid.NewString())
	r.frames[frameID] = &FrameCtx{ID: frameID, Page: page, IsMain: true}
	r.pages[page] = &PageCtx{
		ID:           page,
		Session:      session,
		MainFrame:    frameID,
		FocusedFrame: frameID,
		State:        LifeActive,
	}
	sess.Pages = append(sess.Pages, page)
	r.focusedPage = page

	return nil
}

func (r *Registry) pageFocus(page coretypes.PageId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pages[page]; !ok {
		return errors.New("registry: unknown page")
	}
	r.focusedPage = page
	return nil
}

func (r *Registry) pageClose(page coretypes.PageId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pages[page]
	if !ok {
		return nil
	}

	// Recursively drop every frame reachable from this page (spec.md §4.2
	// invariant: deleting a page recursively drops its frames).
	var drop func(id coretypes.FrameId)
	drop = func(id coretypes.FrameId) {
		f, ok := r.frames[id]
		if !ok {
			return
		}
		for _, c := range f.Children {
			drop(c)
		}
		delete(r.frames, id)
	}
	drop(p.MainFrame)

	delete(r.pages, page)

	if sess, ok := r.sessions[p.Session]; ok {
		sess.Pages = removePageID(sess.Pages, page)
	}

	if r.focusedPage == page {
		r.focusedPage = ""
		for id := range r.pages {
			r.focusedPage = id
			break
		}
	}

	return nil
}

func (r *Registry) frameFocus(page coretypes.PageId, frame coretypes.FrameId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pages[page]
	if !ok {
		return errors.New("registry: unknown page")
	}
	if _, ok := r.frames[frame]; !ok {
		return errors.New("registry: unknown frame")
	}
	p.FocusedFrame = frame
	return nil
}

func (r *Registry) frameAttached(page coretypes.PageId, parent, frame coretypes.FrameId, isMain bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pages[page]; !ok {
		return errors.New("registry: unknown page")
	}

	r.frames[frame] = &FrameCtx{ID: frame, Page: page, Parent: parent, IsMain: isMain}

	if parent != "" {
		if pf, ok := r.frames[parent]; ok {
			pf.Children = append(pf.Children, frame)
		}
	}

	return nil
}

func (r *Registry) frameDetached(frame coretypes.FrameId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.frames[frame]
	if !ok {
		return nil
	}

	if f.Parent != "" {
		if pf, ok := r.frames[f.Parent]; ok {
			pf.Children = removeFrameID(pf.Children, frame)
		}
	}
	delete(r.frames, frame)
	return nil
}

func (r *Registry) applyNetworkSummary(page coretypes.PageId, s NetworkSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pages[page]
	if !ok {
		return errors.New("registry: unknown page")
	}

	p.Health = Health{
		RequestCount:  s.Requests,
		Response2xx:   s.Responses2xx,
		Response4xx:   s.Responses4xx,
		Response5xx:   s.Responses5xx,
		InFlight:      s.InFlight,
		Quiet:         s.Quiet,
		LastUpdatedAt: time.Now(),
	}
	return nil
}

// RouteResolve picks the most specific matching page/frame for hint,
// falling back to the focused page and then any live page; within a page,
// an explicit frame id wins, then the focused frame, then the main frame
// (spec.md §4.2).
func (r *Registry) RouteResolve(hint *RoutingHint) (coretypes.ExecRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pageID := coretypes.PageId("")
	if hint != nil && hint.Page != "" {
		pageID = hint.Page
	} else {
		pageID = r.focusedPage
	}

	if pageID == "" {
		for id := range r.pages {
			pageID = id
			break
		}
	}

	p, ok := r.pages[pageID]
	if !ok {
		return coretypes.ExecRoute{}, ErrNoActivePage
	}

	frameID := p.FocusedFrame
	if hint != nil && hint.Frame != "" {
		if _, ok := r.frames[hint.Frame]; ok {
			frameID = hint.Frame
		}
	}
	if frameID == "" {
		frameID = p.MainFrame
	}

	return coretypes.ExecRoute{
		Session: p.Session,
		Page:    p.ID,
		Frame:   frameID,
	}, nil
}

// PageHealth returns a snapshot of page's health record.
func (r *Registry) PageHealth(page coretypes.PageId) (Health, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pages[page]
	if !ok {
		return Health{}, errors.New("registry: unknown page")
	}
	return p.Health, nil
}

// PageCount returns the number of live pages, used by the HTTP health
// endpoint to report registry liveness.
func (r *Registry) PageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}

func removePageID(s []coretypes.PageId, target coretypes.PageId) []coretypes.PageId {
	out := s[:0]
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func removeFrameID(s []coretypes.FrameId, target coretypes.FrameId) []coretypes.FrameId {
	out := s[:0]
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
