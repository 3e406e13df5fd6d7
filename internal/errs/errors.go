package errs

import (
	"errors"
	"fmt"
)

// Kind classifies core failures so callers can decide between recovering and aborting
type Kind string

const (
	KindInput            Kind = "INPUT"
	KindInsufficientData Kind = "INSUFFICIENT_DATA"
	KindGuardrail        Kind = "GUARDRAIL_VIOLATION"
	KindConfiguration    Kind = "CONFIGURATION"
	KindInvariant        Kind = "INVARIANT"
)

// InputError describes a malformed or incomplete raw record. Recovered by dropping the record.
type InputError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e InputError) Error() string {
	return fmt.Sprintf("[%s] record %q: %s (field=%s)", KindInput, e.RecordID, e.Reason, e.Field)
}

// InsufficientDataError marks "no signal" conditions such as zero mentions or an empty baseline.
type InsufficientDataError struct {
	Symbol string
	Reason string
}

func (e InsufficientDataError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", KindInsufficientData, e.Symbol, e.Reason)
}

// GuardrailViolation records a failed hard pre-trade check. Surfaced as a deny decision, never thrown.
type GuardrailViolation struct {
	Check    string
	Observed string
}

func (e GuardrailViolation) Error() string {
	return fmt.Sprintf("[%s] %s failed (%s)", KindGuardrail, e.Check, e.Observed)
}

// ConfigurationError indicates invalid thresholds or grid parameters. Always fatal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", KindConfiguration, e.Field, e.Reason)
}

// InvariantError is an internal consistency failure (e.g. a negative count)
type InvariantError struct {
	What string
}

func (e InvariantError) Error() string {
	return fmt.Sprintf("[%s] %s", KindInvariant, e.What)
}

// Configf builds a ConfigurationError with a formatted reason
func Configf(field, format string, args ...interface{}) error {
	return ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfiguration reports whether err wraps a ConfigurationError
func IsConfiguration(err error) bool {
	var ce ConfigurationError
	return errors.As(err, &ce)
}

// IsInvariant reports whether err wraps an InvariantError
func IsInvariant(err error) bool {
	var ie InvariantError
	return errors.As(err, &ie)
}

// KindOf returns the classification of err, or "" for foreign errors
func KindOf(err error) Kind {
	var (
		ie  InputError
		ide InsufficientDataError
		gv  GuardrailViolation
		ce  ConfigurationError
		inv InvariantError
	)
	switch {
	case errors.As(err, &ce):
		return KindConfiguration
	case errors.As(err, &inv):
		return KindInvariant
	case errors.As(err, &gv):
		return KindGuardrail
	case errors.As(err, &ide):
		return KindInsufficientData
	case errors.As(err, &ie):
		return KindInput
	}
	return ""
}
