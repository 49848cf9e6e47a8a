package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestProviderKindRoundTrip(t *testing.T) {
	for _, k := range []ProviderKind{KindRetryable, KindPolicy, KindUnavailable, KindTerminal} {
		if got := ParseProviderKind(k.String()); got != k {
			t.Errorf("ParseProviderKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if got := ParseProviderKind("bogus"); got != KindUnknown {
		t.Errorf("ParseProviderKind(bogus) = %v, want KindUnknown", got)
	}
}

func TestProviderError(t *testing.T) {
	cause := New("429 too many requests")
	err := NewProviderError(KindRetryable, "rate limited", cause).
		WithProvider("sim").
		WithCapability("image")

	msg := err.Error()
	for _, want := range []string{"kind=retryable", "provider=sim", "capability=image", "rate limited", "429"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	if !err.IsRetryable() {
		t.Error("retryable provider error should report IsRetryable")
	}
	if !Is(err, cause) {
		t.Error("Is(err, cause) = false, want true")
	}

	var pe *ProviderError
	if !As(fmt.Errorf("wrapped: %w", err), &pe) {
		t.Fatal("As() failed through wrapping")
	}
	if pe.Kind != KindRetryable {
		t.Errorf("Kind = %v, want retryable", pe.Kind)
	}
}

func TestProviderError_TerminalSeverity(t *testing.T) {
	err := NewProviderError(KindTerminal, "bad credentials", nil)
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want error", err.Severity())
	}
	if err.IsRetryable() {
		t.Error("terminal provider error must not be retryable")
	}
}

func TestClassifyProvider(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ProviderKind
	}{
		{"nil", nil, KindUnknown},
		{"policy", NewProviderError(KindPolicy, "nope", nil), KindPolicy},
		{"wrapped unavailable", Wrap(NewProviderError(KindUnavailable, "down", nil), "call"), KindUnavailable},
		{"deadline", context.DeadlineExceeded, KindRetryable},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindRetryable},
		{"timeout error", NewTimeoutError("call", time.Second), KindRetryable},
		{"unknown", New("boom"), KindUnavailable},
		{"unsupported", Wrap(ErrUnsupportedCapability, "video"), KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyProvider(tt.err); got != tt.want {
				t.Errorf("ClassifyProvider() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("no provider chain", ErrNoProvider).WithCapability("video").WithKey("providers.chains.video")

	if !Is(err, ErrNoProvider) {
		t.Error("Is(err, ErrNoProvider) = false")
	}
	if !IsConfiguration(Wrap(err, "dispatch")) {
		t.Error("IsConfiguration through Wrap = false")
	}
	if GetSeverity(err) != SeverityCritical {
		t.Errorf("GetSeverity() = %v, want critical", GetSeverity(err))
	}
	if !IsUserFacing(err) {
		t.Error("configuration errors should be user facing")
	}
	want := "configuration error [capability=video, key=providers.chains.video]: no provider chain: no provider registered"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("mission text cannot be empty").WithField("mission").WithValue("")

	if !Is(err, ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
	if !IsValidation(Wrapf(err, "analyze %s", "intent")) {
		t.Error("IsValidation through Wrapf = false")
	}
	if IsRetryable(err) {
		t.Error("validation errors are not retryable")
	}
	if !strings.HasPrefix(err.Error(), "validation error [field=mission, value=]") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name         string
		resourceType string
		resourceID   string
		want         string
	}{
		{"run", "run", "abc123", "run 'abc123' not found"},
		{"result", "result", "sha256:ff", "result 'sha256:ff' not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewNotFoundError(tt.resourceType, tt.resourceID)
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
			var nf *NotFoundError
			if !As(Wrap(err, "load"), &nf) {
				t.Error("As(NotFoundError) through Wrap failed")
			}
			if !IsNotFound(Wrapf(err, "loading %s", tt.resourceID)) {
				t.Error("IsNotFound through Wrapf = false")
			}
		})
	}

	if IsNotFound(NewValidationError("bad")) {
		t.Error("IsNotFound(validation) = true")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", NewTimeoutError("x", time.Second), true},
		{"sentinel timeout", Wrap(ErrTimeout, "x"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"policy", NewProviderError(KindPolicy, "x", nil), false},
		{"plain", New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

