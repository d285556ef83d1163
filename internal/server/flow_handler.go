package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
	"github.com/soulbrowser/soulbrowser/internal/flow"
	"github.com/soulbrowser/soulbrowser/internal/registry"
)

// flowsPathPrefix is the POST target; GET/DELETE address a specific run
// at flowsPathPrefix + "/" + id.
const flowsPathPrefix = "/api/v1/flows"

// flowStatus is a run's lifecycle state as reported by GET /api/v1/flows/{id}.
type flowStatus string

const (
	flowStatusRunning   flowStatus = "running"
	flowStatusDone      flowStatus = "done"
	flowStatusCancelled flowStatus = "cancelled"
)

// flowRun is the in-memory bookkeeping record for one submitted flow,
// mirroring the shape of scheduler.JobEntry (enqueue time, a cancel
// handle, an eventual outcome) but scoped to the HTTP control surface
// rather than the action scheduler.
type flowRun struct {
	mu     sync.Mutex
	status flowStatus
	result *flow.FlowResult
	cancel context.CancelFunc
}

// FlowHandler implements the flow submit/poll/cancel endpoints
// (spec.md §6): POST /api/v1/flows submits a Flow tree for asynchronous
// execution, GET /api/v1/flows/{id} polls its outcome, and DELETE
// /api/v1/flows/{id} cancels an in-flight run.
type FlowHandler struct {
	interpreter      *flow.Interpreter
	registry         *registry.Registry
	policy           coretypes.PolicyView
	sseManager       *SSEManager
	logger           *zap.Logger
	defaultTimeoutMs int64

	mu   sync.Mutex
	runs map[string]*flowRun
}

// NewFlowHandler builds a FlowHandler. A positive defaultTimeoutMs
// replaces the TimeoutMs of every submitted flow, including one that set
// its own: Flow.UnmarshalJSON already fills in 300000ms when the JSON
// omits it, so the handler cannot tell an omitted value from an explicit one.
func NewFlowHandler(interpreter *flow.Interpreter, reg *registry.Registry, policy coretypes.PolicyView, sseManager *SSEManager, logger *zap.Logger, defaultTimeoutMs int64) *FlowHandler {
	return &FlowHandler{
		interpreter:      interpreter,
		registry:         reg,
		policy:           policy,
		sseManager:       sseManager,
		logger:           logger,
		defaultTimeoutMs: defaultTimeoutMs,
		runs:             make(map[string]*flowRun),
	}
}

func (h *FlowHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, flowsPathPrefix)
	id = strings.TrimPrefix(id, "/")

	switch {
	case r.Method == http.MethodPost && id == "":
		h.submit(w, r)
	case r.Method == http.MethodGet && id != "":
		h.poll(w, r, id)
	case r.Method == http.MethodDelete && id != "":
		h.cancelRun(w, r, id)
	default:
		h.writeJSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed for this path")
	}
}

func (h *FlowHandler) submit(w http.ResponseWriter, r *http.Request) {
	var f flow.Flow
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid flow JSON: "+err.Error())
		return
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if h.defaultTimeoutMs > 0 {
		f.TimeoutMs = h.defaultTimeoutMs
	}

	route, err := h.registry.RouteResolve(nil)
	if err != nil {
		h.writeJSONError(w, http.StatusServiceUnavailable, "NO_ACTIVE_PAGE", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(f.TimeoutMs)*time.Millisecond)
	run := &flowRun{status: flowStatusRunning, cancel: cancel}

	h.mu.Lock()
	h.runs[f.ID] = run
	h.mu.Unlock()

	h.sseManager.PublishFlowStarted(f.ID, f.Name)

	go h.execute(ctx, run, f, route)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"flow_id": f.ID, "status": string(flowStatusRunning)})
}

func (h *FlowHandler) execute(ctx context.Context, run *flowRun, f flow.Flow, route coretypes.ExecRoute) {
	result := h.interpreter.Run(ctx, f, route, h.policy)

	run.mu.Lock()
	if run.status == flowStatusRunning {
		run.status = flowStatusDone
	}
	run.result = result
	run.mu.Unlock()

	if result.Success {
		h.sseManager.PublishFlowComplete(f.ID, true, result.LatencyMs)
	} else {
		h.sseManager.PublishFlowError(f.ID, result.Error)
	}
}

func (h *FlowHandler) poll(w http.ResponseWriter, r *http.Request, id string) {
	h.mu.Lock()
	run, ok := h.runs[id]
	h.mu.Unlock()
	if !ok {
		h.writeJSONError(w, http.StatusNotFound, "FLOW_NOT_FOUND", "no flow run with that id")
		return
	}

	run.mu.Lock()
	status := run.status
	result := run.result
	run.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status == flowStatusRunning {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"flow_id": id, "status": string(status)})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func (h *FlowHandler) cancelRun(w http.ResponseWriter, r *http.Request, id string) {
	h.mu.Lock()
	run, ok := h.runs[id]
	h.mu.Unlock()
	if !ok {
		h.writeJSONError(w, http.StatusNotFound, "FLOW_NOT_FOUND", "no flow run with that id")
		return
	}

	run.mu.Lock()
	if run.status == flowStatusRunning {
		run.status = flowStatusCancelled
	}
	cancel := run.cancel
	run.mu.Unlock()
	cancel()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"flow_id": id, "status": string(flowStatusCancelled)})
}

func (h *FlowHandler) writeJSONError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(AuthErrorResponse{Error: AuthError{Code: code, Message: message}}); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
