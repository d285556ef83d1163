package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/session"
)

// AuthRequest is the request body for POST /api/v1/auth/token: an API key
// exchanged for a short-lived bearer token, replacing the teacher's
// captcha-token exchange (captcha verification has no place in a
// machine-driven automation API).
type AuthRequest struct {
	APIKey string `json:"api_key"`
}

// AuthResponse is the response for POST /api/v1/auth/token.
type AuthResponse struct {
	SessionToken string `json:"session_token"`
	ExpiresAt    string `json:"expires_at"`
}

// AuthErrorResponse represents an error response
type AuthErrorResponse struct {
	Error AuthError `json:"error"`
}

// AuthError represents an error detail
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthHandler exchanges a configured API key for a bearer token. The
// server only issues the token; no endpoint checks an `Authorization`
// header.
type AuthHandler struct {
	validKeys    map[string]bool
	tokenManager *session.TokenManager
	logger       *zap.Logger
}

// NewAuthHandler builds an AuthHandler. keys is the configured API.Keys list.
func NewAuthHandler(keys []string, tokenManager *session.TokenManager, logger *zap.Logger) *AuthHandler {
	valid := make(map[string]bool, len(keys))
	for _, k := range keys {
		valid[k] = true
	}
	return &AuthHandler{
		validKeys:    valid,
		tokenManager: tokenManager,
		logger:       logger,
	}
}

// ServeHTTP handles POST /api/v1/auth/token requests.
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON request body")
		return
	}

	if req.APIKey == "" || !h.validKeys[req.APIKey] {
		h.writeError(w, http.StatusForbidden, "API_KEY_INVALID", "API key rejected")
		return
	}

	// The fingerprint ties the issued bearer token to the key that
	// requested it, the same role the teacher's browser-fingerprint hash
	// played for its captcha-issued tokens (see session.ValidateToken).
	fingerprint := session.HashFingerprint(req.APIKey, "", "")

	sessionToken, expiresAt, err := h.tokenManager.GenerateToken(fingerprint)
	if err != nil {
		h.logger.Error("failed to generate session token", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate session token")
		return
	}

	response := AuthResponse{
		SessionToken: sessionToken,
		ExpiresAt:    expiresAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *AuthHandler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := AuthErrorResponse{Error: AuthError{Code: code, Message: message}}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
