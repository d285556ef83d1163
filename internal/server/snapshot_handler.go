package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
	"github.com/soulbrowser/soulbrowser/internal/perception"
)

// snapshotsPathPrefix is the GET target: a page id followed by /snapshot,
// e.g. /api/v1/pages/{id}/snapshot?scope=viewport&level=text.
const snapshotsPathPrefix = "/api/v1/pages/"

const snapshotReadTimeout = 10 * time.Second

// SnapshotHandler exposes perception's structural-read half of the Perception
// layer over HTTP: GET /api/v1/pages/{id}/snapshot (spec.md §6's Perception
// surface, the read counterpart to the anchor resolver the primitives already
// drive). reader does the actual DOM read and goquery extraction
// (internal/perception.SnapshotReader); this handler only does request/
// response plumbing, the same split FlowHandler keeps from flow.Interpreter.
type SnapshotHandler struct {
	reader *perception.SnapshotReader
	logger *zap.Logger
}

// NewSnapshotHandler builds a SnapshotHandler backed by reader.
func NewSnapshotHandler(reader *perception.SnapshotReader, logger *zap.Logger) *SnapshotHandler {
	return &SnapshotHandler{reader: reader, logger: logger}
}

func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeJSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed for this path")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, snapshotsPathPrefix)
	pageID := strings.TrimSuffix(rest, "/snapshot")
	if pageID == "" || pageID == rest {
		h.writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "expected /api/v1/pages/{id}/snapshot")
		return
	}

	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "page"
	}
	level := r.URL.Query().Get("level")
	if level == "" {
		level = "text"
	}

	snap, aerr := h.reader.Read(coretypes.PageId(pageID), scope, level, time.Now().Add(snapshotReadTimeout))
	if aerr != nil {
		h.writeJSONError(w, http.StatusBadGateway, string(aerr.Kind), aerr.Message)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.logger.Error("failed to write snapshot response", zap.Error(err))
	}
}

func (h *SnapshotHandler) writeJSONError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(AuthErrorResponse{Error: AuthError{Code: code, Message: message}}); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
