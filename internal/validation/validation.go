// Package validation checks user-submitted feature forms and identity fields.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"fluxmare/internal/domain"
)

// Validation error types for specific error handling.
var (
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrTooLong       = errors.New("value exceeds maximum length")
	ErrInvalidFormat = errors.New("invalid format")
	ErrMissingFields = errors.New("missing fields")
	ErrOutOfRange    = errors.New("value out of range")
)

// Constraints for validation.
const (
	MaxNameLength = 64
)

// MissingFieldsError reports how many form fields were left empty.
type MissingFieldsError struct {
	Count  int
	Fields []domain.FeatureField
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%d fields still empty", e.Count)
}

func (e *MissingFieldsError) Unwrap() error {
	return ErrMissingFields
}

// OutOfRangeError names the first field whose value fell outside its range.
type OutOfRangeError struct {
	Field domain.FeatureField
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s must be between %s and %s (got %s)",
		e.Field, formatBound(e.Min), formatBound(e.Max), formatBound(e.Value))
}

func (e *OutOfRangeError) Unwrap() error {
	return ErrOutOfRange
}

// FieldError reports a field that could not be parsed as a number.
type FieldError struct {
	Field  domain.FeatureField
	Raw    string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, truncate(e.Raw, 20), e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// NameError provides detailed name validation error information.
type NameError struct {
	Name   string
	Reason string
	Err    error
}

func (e *NameError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid name %q: %s", truncate(e.Name, 50), e.Reason)
	}
	return fmt.Sprintf("invalid name %q: %v", truncate(e.Name, 50), e.Err)
}

func (e *NameError) Unwrap() error {
	return e.Err
}

// ValidateFeatures turns a raw form submission into a FeatureInput.
// Empty fields are counted first; then every field is parsed and checked
// against its range in the order of domain.FeatureRanges. The first failure
// is returned and nothing is partially accepted.
func ValidateFeatures(raw domain.RawFeatures) (domain.FeatureInput, error) {
	var missing []domain.FeatureField
	for _, r := range domain.FeatureRanges {
		if strings.TrimSpace(raw.Get(r.Field)) == "" {
			missing = append(missing, r.Field)
		}
	}
	if len(missing) > 0 {
		return domain.FeatureInput{}, &MissingFieldsError{Count: len(missing), Fields: missing}
	}

	var in domain.FeatureInput
	for _, r := range domain.FeatureRanges {
		s := strings.TrimSpace(raw.Get(r.Field))
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.FeatureInput{}, &FieldError{Field: r.Field, Raw: s, Reason: "must be a number", Err: ErrInvalidFormat}
		}
		in.Set(r.Field, v)
	}

	for _, r := range domain.FeatureRanges {
		if v := in.Value(r.Field); !r.Contains(v) {
			return domain.FeatureInput{}, &OutOfRangeError{Field: r.Field, Value: v, Min: r.Min, Max: r.Max}
		}
	}
	return in, nil
}

// FeatureLabel renders the short history label for a submission.
func FeatureLabel(in domain.FeatureInput) string {
	return fmt.Sprintf("Speed %.1f | Wave %.2fm | Wind %.1fm/s", in.SpeedOverGround, in.WaveHeight, in.WindSpeed10M)
}

// FeatureSummary renders the chat text sent alongside a feature submission.
func FeatureSummary(raw domain.RawFeatures) string {
	var b strings.Builder
	b.WriteString("Fuel prediction request:")
	for _, r := range domain.FeatureRanges {
		fmt.Fprintf(&b, "\n%s: %s", r.Field, strings.TrimSpace(raw.Get(r.Field)))
	}
	return b.String()
}

// ValidateName validates a username.
// It checks for:
// - Non-empty (after trimming whitespace)
// - Not exceeding maximum length
// - No characters that would break a storage key
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &NameError{Name: name, Reason: "cannot be empty", Err: ErrEmptyValue}
	}

	if len(name) > MaxNameLength {
		return &NameError{
			Name:   name,
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxNameLength),
			Err:    ErrTooLong,
		}
	}

	if strings.ContainsAny(name, " \t\r\n/") {
		return &NameError{Name: name, Reason: "must not contain whitespace or '/'", Err: ErrInvalidFormat}
	}

	return nil
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// truncate shortens a string for display in error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
