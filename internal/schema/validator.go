package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator handles validation of inputs against the canonical schema.
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
		MaxAge:    7 * 24 * time.Hour, // 7 days
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the specified configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	return &Validator{
		validate:  validator.New(),
		maxAge:    cfg.MaxAge,
		maxFuture: cfg.MaxFuture,
	}
}

// ValidateEvent validates a network event against the canonical schema.
// Returns an error if validation fails.
func (v *Validator) ValidateEvent(event *NetworkEvent) error {
	if err := v.validate.Struct(event); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return v.checkTimestamp(event.Timestamp)
}

// ValidateText validates a text input against the canonical schema.
func (v *Validator) ValidateText(input *TextInput) error {
	if err := v.validate.Struct(input); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return v.checkTimestamp(input.Timestamp)
}

func (v *Validator) checkTimestamp(ts time.Time) error {
	now := time.Now().UTC()

	if ts.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if ts.Before(now.Add(-v.maxAge)) {
		return fmt.Errorf("timestamp too old: %v (max age: %v)", ts, v.maxAge)
	}

	if ts.After(now.Add(v.maxFuture)) {
		return fmt.Errorf("timestamp in future: %v (max future: %v)", ts, v.maxFuture)
	}

	return nil
}
