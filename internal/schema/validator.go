package schema

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// sourcePattern defines the valid format for signal sources.
// Sources must be lowercase, start with a letter, and use dots as separators.
// Examples: "ids.suricata", "edr.agent", "auth.gateway"
var sourcePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// Validator handles validation of signals against the canonical schema.
type Validator struct {
	validate  *validator.Validate
	maxAge    time.Duration
	maxFuture time.Duration
}

// ValidatorConfig holds configuration for the validator.
type ValidatorConfig struct {
	MaxAge    time.Duration
	MaxFuture time.Duration
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxAge:    7 * 24 * time.Hour,
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the specified configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	v := validator.New()

	v.RegisterValidation("source_format", func(fl validator.FieldLevel) bool {
		return sourcePattern.MatchString(fl.Field().String())
	})

	return &Validator{
		validate:  v,
		maxAge:    cfg.MaxAge,
		maxFuture: cfg.MaxFuture,
	}
}

// Validate validates a signal against the canonical schema.
// Returns an error if validation fails.
func (v *Validator) Validate(sig *Signal) error {
	if err := v.validate.Struct(sig); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()

	if sig.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if sig.Timestamp.Before(now.Add(-v.maxAge)) {
		return fmt.Errorf("timestamp too old: %v (max age: %v)", sig.Timestamp, v.maxAge)
	}

	if sig.Timestamp.After(now.Add(v.maxFuture)) {
		return fmt.Errorf("timestamp in future: %v (max future: %v)", sig.Timestamp, v.maxFuture)
	}

	return nil
}

// ValidateSource checks if a source string matches the required format.
func ValidateSource(source string) bool {
	return sourcePattern.MatchString(source)
}
