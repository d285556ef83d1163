package apperrors

import (
	"errors"
	"testing"
)

func TestAdapterErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      *AdapterError
		wantKind AdapterErrorKind
	}{
		{"TargetNotFound", TargetNotFound("page gone"), KindTargetNotFound},
		{"NavTimeout", NavTimeout(errors.New("deadline")), KindNavTimeout},
		{"PolicyDenied", PolicyDenied("blocked by robots.txt"), KindPolicyDenied},
		{"CdpIo", CdpIo(errors.New("socket closed")), KindCdpIo},
		{"OptionNotFound", OptionNotFound("no such option"), KindOptionNotFound},
		{"Internal", Internal("invariant violated", nil), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", tt.err.Kind, tt.wantKind)
			}
			if tt.err.Code != string(tt.wantKind) {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.wantKind)
			}
		})
	}
}

func TestAdapterErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NavTimeout(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should unwrap to cause")
	}
}

func TestAdapterErrorWithHint(t *testing.T) {
	err := TargetNotFound("page gone").WithHint("did you forget to attach?")
	if err.Hint != "did you forget to attach?" {
		t.Errorf("Hint = %q", err.Hint)
	}
}

func TestFromAdapterError(t *testing.T) {
	tests := []struct {
		name     string
		in       *AdapterError
		wantKind ActionErrorKind
	}{
		{"TargetNotFound->AnchorNotFound", TargetNotFound("x"), ActAnchorNotFound},
		{"OptionNotFound->OptionNotFound", OptionNotFound("x"), ActOptionNotFound},
		{"NavTimeout->WaitTimeout", NavTimeout(nil), ActWaitTimeout},
		{"PolicyDenied->PolicyDenied", PolicyDenied("x"), ActPolicyDenied},
		{"CdpIo->CdpIo", CdpIo(nil), ActCdpIo},
		{"Internal->CdpIo", Internal("x", nil), ActCdpIo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAdapterError(tt.in)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.wantKind)
			}
		})
	}
}

func TestActionErrorKindIsRetryable(t *testing.T) {
	if ActPolicyDenied.IsRetryable() {
		t.Error("PolicyDenied must never be retryable")
	}
	if ActInterrupted.IsRetryable() {
		t.Error("Interrupted must never be retryable")
	}
	if !ActWaitTimeout.IsRetryable() {
		t.Error("WaitTimeout should be retryable")
	}
}
