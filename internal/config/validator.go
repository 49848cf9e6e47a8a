package config

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "negotiation.max_rounds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateNegotiation()...)
	errors = append(errors, c.validateResilience()...)
	errors = append(errors, c.validateDispatch()...)
	errors = append(errors, c.validateProviders()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePersonas()...)
	errors = append(errors, c.validateTopics()...)

	return errors
}

func (c *Config) validateNegotiation() []ValidationError {
	var errors []ValidationError
	n := c.Negotiation

	if n.MaxRounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "negotiation.max_rounds",
			Value:   n.MaxRounds,
			Message: "must be at least 1",
		})
	}

	if n.HistoryWindow < 0 {
		errors = append(errors, ValidationError{
			Field:   "negotiation.history_window",
			Value:   n.HistoryWindow,
			Message: "must be non-negative",
		})
	}

	if n.PersonaTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "negotiation.persona_timeout_ms",
			Value:   n.PersonaTimeoutMs,
			Message: "must be non-negative",
		})
	}

	if n.MinPersonas < 1 {
		errors = append(errors, ValidationError{
			Field:   "negotiation.min_personas",
			Value:   n.MinPersonas,
			Message: "must be at least 1",
		})
	}

	if n.MaxPersonas < n.MinPersonas {
		errors = append(errors, ValidationError{
			Field:   "negotiation.max_personas",
			Value:   n.MaxPersonas,
			Message: fmt.Sprintf("must be at least min_personas (%d)", n.MinPersonas),
		})
	}

	if !validThreshold(n.DefaultThreshold) {
		errors = append(errors, ValidationError{
			Field:   "negotiation.default_threshold",
			Value:   n.DefaultThreshold,
			Message: "must be in (0, 1]",
		})
	}

	// Sorted so repeated validation reports errors in a stable order
	ids := make([]string, 0, len(n.Thresholds))
	for id := range n.Thresholds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !validThreshold(n.Thresholds[id]) {
			errors = append(errors, ValidationError{
				Field:   "negotiation.thresholds." + id,
				Value:   n.Thresholds[id],
				Message: "must be in (0, 1]",
			})
		}
	}

	if n.ParallelTopics < 1 {
		errors = append(errors, ValidationError{
			Field:   "negotiation.parallel_topics",
			Value:   n.ParallelTopics,
			Message: "must be at least 1",
		})
	}

	if n.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "negotiation.top_k",
			Value:   n.TopK,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateResilience() []ValidationError {
	var errors []ValidationError
	r := c.Resilience

	if r.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "resilience.max_attempts",
			Value:   r.MaxAttempts,
			Message: "must be at least 1",
		})
	}

	if r.BaseDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "resilience.base_delay_ms",
			Value:   r.BaseDelayMs,
			Message: "must be non-negative",
		})
	}

	if r.MaxDelayMs < r.BaseDelayMs {
		errors = append(errors, ValidationError{
			Field:   "resilience.max_delay_ms",
			Value:   r.MaxDelayMs,
			Message: fmt.Sprintf("must be at least base_delay_ms (%d)", r.BaseDelayMs),
		})
	}

	if r.MaxRemediations < 0 {
		errors = append(errors, ValidationError{
			Field:   "resilience.max_remediations",
			Value:   r.MaxRemediations,
			Message: "must be non-negative",
		})
	}

	if r.CallTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "resilience.call_timeout_ms",
			Value:   r.CallTimeoutMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateDispatch() []ValidationError {
	var errors []ValidationError

	if c.Dispatch.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.concurrency",
			Value:   c.Dispatch.Concurrency,
			Message: "must be at least 1",
		})
	}

	if c.Dispatch.SegmentSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.segment_seconds",
			Value:   c.Dispatch.SegmentSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateProviders() []ValidationError {
	var errors []ValidationError
	p := c.Providers
	usesHTTP := false

	caps := make([]string, 0, len(p.Chains))
	for capability := range p.Chains {
		caps = append(caps, capability)
	}
	sort.Strings(caps)

	for _, capability := range caps {
		field := "providers.chains." + capability
		if !slices.Contains(ValidCapabilities(), capability) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   capability,
				Message: fmt.Sprintf("capability must be one of: %s", strings.Join(ValidCapabilities(), ", ")),
			})
			continue
		}
		for _, name := range p.Chains[capability] {
			if !slices.Contains(ValidAdapters(), name) {
				errors = append(errors, ValidationError{
					Field:   field,
					Value:   name,
					Message: fmt.Sprintf("adapter must be one of: %s", strings.Join(ValidAdapters(), ", ")),
				})
			}
			if name == AdapterHTTP {
				usesHTTP = true
			}
		}
	}

	if p.Remediator != "" && !slices.Contains(ValidAdapters(), p.Remediator) {
		errors = append(errors, ValidationError{
			Field:   "providers.remediator",
			Value:   p.Remediator,
			Message: fmt.Sprintf("must be empty or one of: %s", strings.Join(ValidAdapters(), ", ")),
		})
	}

	if p.Negotiator != "" && !slices.Contains(ValidAdapters(), p.Negotiator) {
		errors = append(errors, ValidationError{
			Field:   "providers.negotiator",
			Value:   p.Negotiator,
			Message: fmt.Sprintf("must be empty or one of: %s", strings.Join(ValidAdapters(), ", ")),
		})
	}
	usesHTTP = usesHTTP || p.Remediator == AdapterHTTP || p.Negotiator == AdapterHTTP

	if usesHTTP && p.HTTP.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "providers.http.base_url",
			Value:   p.HTTP.BaseURL,
			Message: "is required when the http adapter is used",
		})
	}

	if p.HTTP.TimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "providers.http.timeout_ms",
			Value:   p.HTTP.TimeoutMs,
			Message: "must be non-negative",
		})
	}

	if p.Simulated.RetryableEvery < 0 {
		errors = append(errors, ValidationError{
			Field:   "providers.simulated.retryable_every",
			Value:   p.Simulated.RetryableEvery,
			Message: "must be non-negative",
		})
	}

	for _, capability := range p.Simulated.Unavailable {
		if !slices.Contains(ValidCapabilities(), capability) {
			errors = append(errors, ValidationError{
				Field:   "providers.simulated.unavailable",
				Value:   capability,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCapabilities(), ", ")),
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validatePersonas() []ValidationError {
	var errors []ValidationError
	seen := make(map[string]bool)

	for i, p := range c.Personas {
		field := fmt.Sprintf("personas[%d]", i)
		if p.ID == "" {
			errors = append(errors, ValidationError{Field: field + ".id", Value: p.ID, Message: "is required"})
			continue
		}
		if seen[p.ID] {
			errors = append(errors, ValidationError{Field: field + ".id", Value: p.ID, Message: "is duplicated"})
		}
		seen[p.ID] = true

		if p.Weight <= 0 {
			errors = append(errors, ValidationError{Field: field + ".weight", Value: p.Weight, Message: "must be positive"})
		}
		if len(p.Expertise) == 0 {
			errors = append(errors, ValidationError{Field: field + ".expertise", Value: p.Expertise, Message: "must not be empty"})
		}
	}

	return errors
}

func (c *Config) validateTopics() []ValidationError {
	var errors []ValidationError
	known := make(map[string]bool, len(c.Topics))
	for _, t := range c.Topics {
		known[t.ID] = true
	}

	seen := make(map[string]bool)
	for i, t := range c.Topics {
		field := fmt.Sprintf("topics[%d]", i)
		if t.ID == "" {
			errors = append(errors, ValidationError{Field: field + ".id", Value: t.ID, Message: "is required"})
			continue
		}
		if seen[t.ID] {
			errors = append(errors, ValidationError{Field: field + ".id", Value: t.ID, Message: "is duplicated"})
		}
		seen[t.ID] = true

		if len(t.Options) == 0 {
			errors = append(errors, ValidationError{Field: field + ".options", Value: t.Options, Message: "must not be empty"})
		} else if t.Default != "" && !slices.Contains(t.Options, t.Default) {
			errors = append(errors, ValidationError{Field: field + ".default", Value: t.Default, Message: "must be one of the topic options"})
		}

		if t.Threshold != 0 && !validThreshold(t.Threshold) {
			errors = append(errors, ValidationError{Field: field + ".threshold", Value: t.Threshold, Message: "must be in (0, 1]"})
		}

		for _, dep := range t.Requires {
			if dep == t.ID {
				errors = append(errors, ValidationError{Field: field + ".requires", Value: dep, Message: "topic cannot require itself"})
			} else if !known[dep] {
				errors = append(errors, ValidationError{Field: field + ".requires", Value: dep, Message: "references an unknown topic"})
			}
		}
	}

	return errors
}

func validThreshold(v float64) bool {
	return v > 0 && v <= 1
}
