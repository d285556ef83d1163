package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// SSE event types: a flow run moves from started through zero or more
// step-complete events to exactly one of flow-complete/flow-error.
const (
	SSEEventFlowStarted  = "flow-started"
	SSEEventStepComplete = "step-complete"
	SSEEventFlowComplete = "flow-complete"
	SSEEventFlowError    = "flow-error"
)

// SSE channel buffer size
const sseChannelBuffer = 16

// SSEEvent represents a server-sent event
type SSEEvent struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// SSEManager manages SSE subscriptions, keyed by flow ID.
type SSEManager struct {
	channels map[string]chan SSEEvent
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewSSEManager creates a new SSEManager
func NewSSEManager(logger *zap.Logger) *SSEManager {
	return &SSEManager{
		channels: make(map[string]chan SSEEvent),
		logger:   logger,
	}
}

// Subscribe creates a subscription for the given flow ID
func (m *SSEManager) Subscribe(flowID string) <-chan SSEEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Close existing channel if present
	if ch, exists := m.channels[flowID]; exists {
		close(ch)
	}

	ch := make(chan SSEEvent, sseChannelBuffer)
	m.channels[flowID] = ch

	m.logger.Debug("SSE subscription created", zap.String("flow_id", flowID))

	return ch
}

// Unsubscribe removes a subscription for the given flow ID
func (m *SSEManager) Unsubscribe(flowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, exists := m.channels[flowID]; exists {
		close(ch)
		delete(m.channels, flowID)
		m.logger.Debug("SSE subscription removed", zap.String("flow_id", flowID))
	}
}

// Publish sends an event to subscribers for the given flow ID
func (m *SSEManager) Publish(flowID string, event SSEEvent) {
	m.mu.RLock()
	ch, exists := m.channels[flowID]
	m.mu.RUnlock()

	if !exists {
		return
	}

	// Non-blocking send
	select {
	case ch <- event:
		m.logger.Debug("SSE event published",
			zap.String("flow_id", flowID),
			zap.String("event_type", event.Type),
		)
	default:
		m.logger.Warn("SSE channel full, dropping event",
			zap.String("flow_id", flowID),
			zap.String("event_type", event.Type),
		)
	}
}

// HasSubscriber checks if there's an active subscriber for the flow ID
func (m *SSEManager) HasSubscriber(flowID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.channels[flowID]
	return exists
}

// SSEHandler handles SSE connections
type SSEHandler struct {
	manager *SSEManager
	logger  *zap.Logger
}

// NewSSEHandler creates a new SSEHandler
func NewSSEHandler(manager *SSEManager, logger *zap.Logger) *SSEHandler {
	return &SSEHandler{
		manager: manager,
		logger:  logger,
	}
}

// ServeHTTP handles GET /api/v1/flows/stream requests.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flowID := r.URL.Query().Get("flow_id")
	if flowID == "" {
		http.Error(w, "flow_id query parameter is required", http.StatusBadRequest)
		return
	}

	// Check if response writer supports flushing
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe to events
	events := h.manager.Subscribe(flowID)
	defer h.manager.Unsubscribe(flowID)

	h.logger.Debug("SSE connection established", zap.String("flow_id", flowID))

	// Stream events
	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("SSE client disconnected", zap.String("flow_id", flowID))
			return

		case event, ok := <-events:
			if !ok {
				// Channel closed
				return
			}

			if err := h.writeEvent(w, event); err != nil {
				h.logger.Error("Failed to write SSE event",
					zap.String("flow_id", flowID),
					zap.Error(err),
				)
				return
			}
			flusher.Flush()

			// Close connection once the flow has reached a terminal state
			if event.Type == SSEEventFlowComplete || event.Type == SSEEventFlowError {
				return
			}
		}
	}
}

// writeEvent writes an SSE event to the response writer
func (h *SSEHandler) writeEvent(w http.ResponseWriter, event SSEEvent) error {
	// Format: event: {type}\ndata: {json}\n\n
	data, err := json.Marshal(event.Data)
	if err != nil {
		data = []byte("{}")
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, string(data))
	return err
}

// PublishFlowStarted publishes a flow-started event.
func (m *SSEManager) PublishFlowStarted(flowID, name string) {
	m.Publish(flowID, SSEEvent{
		Type: SSEEventFlowStarted,
		Data: map[string]interface{}{
			"flow_id": flowID,
			"name":    name,
		},
	})
}

// PublishStepComplete publishes a step-complete event carrying one
// flow.StepResult's outcome. Kept loosely typed (map[string]interface{})
// rather than importing internal/flow, since flow already depends on
// nothing in this package and shouldn't gain a reverse import.
func (m *SSEManager) PublishStepComplete(flowID, stepID, stepType string, success bool, latencyMs int64, errMsg string) {
	m.Publish(flowID, SSEEvent{
		Type: SSEEventStepComplete,
		Data: map[string]interface{}{
			"step_id":    stepID,
			"step_type":  stepType,
			"success":    success,
			"latency_ms": latencyMs,
			"error":      errMsg,
		},
	})
}

// PublishFlowComplete publishes a flow-complete event.
func (m *SSEManager) PublishFlowComplete(flowID string, success bool, latencyMs int64) {
	m.Publish(flowID, SSEEvent{
		Type: SSEEventFlowComplete,
		Data: map[string]interface{}{
			"success":    success,
			"latency_ms": latencyMs,
		},
	})
}

// PublishFlowError publishes a flow-error event.
func (m *SSEManager) PublishFlowError(flowID, message string) {
	m.Publish(flowID, SSEEvent{
		Type: SSEEventFlowError,
		Data: map[string]interface{}{
			"message": message,
		},
	})
}
