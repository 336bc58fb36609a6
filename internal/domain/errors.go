package domain

import "fmt"

// ConfigError is fatal and raised before any data is processed: weights that
// don't sum to 1, a non-positive household size, an unknown conflict policy.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for a named configuration field.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// QualityError marks a row that is excluded from scoring but does not abort
// the batch. Every error is attributable to a specific key and field.
type QualityError struct {
	Key    Key
	Field  string
	Reason string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("data quality error at %s field %q: %s", e.Key, e.Field, e.Reason)
}

// Warning is a non-fatal data-quality finding collected into the diagnostic
// report while the pipeline continues.
type Warning struct {
	Key     Key    `json:"key"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s field %q: %s", w.Key, w.Field, w.Message)
}

// ConflictError is raised only under the fail-on-conflict merge policy.
type ConflictError struct {
	Key     Key
	Field   string
	Sources []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge conflict at %s field %q between sources %v", e.Key, e.Field, e.Sources)
}
