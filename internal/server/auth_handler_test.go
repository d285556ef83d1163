package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/session"
)

func newTestAuthHandler(t *testing.T, keys []string) *AuthHandler {
	t.Helper()
	logger := zap.NewNop()
	tokenManager, err := session.NewTokenManager("test-secret-key-32-bytes-long!!!", logger)
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	return NewAuthHandler(keys, tokenManager, logger)
}

func TestAuthHandler_ServeHTTP_Success(t *testing.T) {
	handler := newTestAuthHandler(t, []string{"good-key"})

	body := AuthRequest{APIKey: "good-key"}
	bodyBytes, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp AuthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SessionToken == "" {
		t.Error("SessionToken should not be empty")
	}
	if resp.ExpiresAt == "" {
		t.Error("ExpiresAt should not be empty")
	}
}

func TestAuthHandler_ServeHTTP_MethodNotAllowed(t *testing.T) {
	handler := newTestAuthHandler(t, []string{"good-key"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/token", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestAuthHandler_ServeHTTP_MissingAPIKey(t *testing.T) {
	handler := newTestAuthHandler(t, []string{"good-key"})

	body := AuthRequest{APIKey: ""}
	bodyBytes, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}

	var resp AuthErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != "API_KEY_INVALID" {
		t.Errorf("error code = %q, want %q", resp.Error.Code, "API_KEY_INVALID")
	}
}

func TestAuthHandler_ServeHTTP_InvalidAPIKey(t *testing.T) {
	handler := newTestAuthHandler(t, []string{"good-key"})

	body := AuthRequest{APIKey: "wrong-key"}
	bodyBytes, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAuthHandler_ServeHTTP_InvalidJSON(t *testing.T) {
	handler := newTestAuthHandler(t, []string{"good-key"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
