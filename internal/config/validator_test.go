package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

// hasField reports whether errs contains an error for field.
func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestConfig_Validate_Sections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero rounds", func(c *Config) { c.Negotiation.MaxRounds = 0 }, "negotiation.max_rounds"},
		{"negative history", func(c *Config) { c.Negotiation.HistoryWindow = -1 }, "negotiation.history_window"},
		{"max below min personas", func(c *Config) { c.Negotiation.MaxPersonas = 2 }, "negotiation.max_personas"},
		{"threshold above one", func(c *Config) { c.Negotiation.DefaultThreshold = 1.2 }, "negotiation.default_threshold"},
		{"zero threshold", func(c *Config) { c.Negotiation.DefaultThreshold = 0 }, "negotiation.default_threshold"},
		{"topic threshold override", func(c *Config) { c.Negotiation.Thresholds = map[string]float64{"tone": -0.1} }, "negotiation.thresholds.tone"},
		{"zero parallel topics", func(c *Config) { c.Negotiation.ParallelTopics = 0 }, "negotiation.parallel_topics"},
		{"zero attempts", func(c *Config) { c.Resilience.MaxAttempts = 0 }, "resilience.max_attempts"},
		{"cap below base", func(c *Config) { c.Resilience.MaxDelayMs = 10 }, "resilience.max_delay_ms"},
		{"negative remediations", func(c *Config) { c.Resilience.MaxRemediations = -1 }, "resilience.max_remediations"},
		{"zero concurrency", func(c *Config) { c.Dispatch.Concurrency = 0 }, "dispatch.concurrency"},
		{"zero segment length", func(c *Config) { c.Dispatch.SegmentSeconds = 0 }, "dispatch.segment_seconds"},
		{"unknown capability", func(c *Config) { c.Providers.Chains["music"] = []string{"simulated"} }, "providers.chains.music"},
		{"unknown adapter", func(c *Config) { c.Providers.Chains["video"] = []string{"sora"} }, "providers.chains.video"},
		{"http without base url", func(c *Config) { c.Providers.Chains["image"] = []string{"http"} }, "providers.http.base_url"},
		{"http negotiator without base url", func(c *Config) { c.Providers.Negotiator = "http" }, "providers.http.base_url"},
		{"unknown remediator", func(c *Config) { c.Providers.Remediator = "nope" }, "providers.remediator"},
		{"unknown unavailable capability", func(c *Config) { c.Providers.Simulated.Unavailable = []string{"smell"} }, "providers.simulated.unavailable"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"huge log size", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasField(errs, tt.field) {
				t.Errorf("Validate() = %v, want error for %q", errs, tt.field)
			}
		})
	}
}

func TestConfig_Validate_LogLevelCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "DEBUG"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want none", errs)
	}
}

func TestConfig_Validate_Personas(t *testing.T) {
	cfg := Default()
	cfg.Personas = []PersonaConfig{
		{ID: "director", Expertise: []string{"narrative"}, Weight: 1},
		{ID: "director", Expertise: []string{"visual"}, Weight: 1},
		{ID: "editor", Expertise: nil, Weight: 0},
		{ID: ""},
	}

	errs := cfg.Validate()
	for _, field := range []string{"personas[1].id", "personas[2].weight", "personas[2].expertise", "personas[3].id"} {
		if !hasField(errs, field) {
			t.Errorf("missing error for %s in %v", field, errs)
		}
	}
}

func TestConfig_Validate_Topics(t *testing.T) {
	cfg := Default()
	cfg.Topics = []TopicConfig{
		{ID: "tone", Options: []string{"calm", "upbeat"}, Default: "calm"},
		{ID: "pacing", Options: []string{"slow"}, Default: "fast", Requires: []string{"tone", "ghost"}},
		{ID: "loop", Options: []string{"a"}, Requires: []string{"loop"}},
		{ID: "empty", Threshold: 2},
		{ID: "tone", Options: []string{"x"}},
	}

	errs := cfg.Validate()
	for _, field := range []string{
		"topics[1].default",
		"topics[1].requires",
		"topics[2].requires",
		"topics[3].options",
		"topics[3].threshold",
		"topics[4].id",
	} {
		if !hasField(errs, field) {
			t.Errorf("missing error for %s in %v", field, errs)
		}
	}
	if hasField(errs, "topics[0].default") {
		t.Errorf("valid topic reported: %v", errs)
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Negotiation.MaxRounds = 0
	cfg.Resilience.MaxAttempts = 0
	cfg.Logging.Level = "invalid"
	cfg.Dispatch.Concurrency = -1

	errs := cfg.Validate()
	if len(errs) < 4 {
		t.Errorf("expected at least 4 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()
	expected := []string{"debug", "info", "warn", "error"}
	if len(levels) != len(expected) {
		t.Fatalf("ValidLogLevels() returned %d levels, want %d", len(levels), len(expected))
	}
	for i, level := range expected {
		if levels[i] != level {
			t.Errorf("ValidLogLevels()[%d] = %q, want %q", i, levels[i], level)
		}
	}
}
