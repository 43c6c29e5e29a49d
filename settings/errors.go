package settings

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is matched by every ConfigurationError.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ConfigurationError reports a rejected settings update.
// The current snapshot is never modified when one is returned.
type ConfigurationError struct {
	Field string
	Err   error
}

// NewConfigurationError builds a ConfigurationError for a named field.
func NewConfigurationError(field string, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Field: field,
		Err:   fmt.Errorf(format, args...),
	}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", ErrInvalidConfiguration, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrInvalidConfiguration, e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// AsConfigurationError wraps err unless it already is a ConfigurationError.
func AsConfigurationError(err error) error {
	if err == nil {
		return nil
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &ConfigurationError{Err: err}
}
