package template

import (
	"errors"
	"fmt"
)

var ErrUnknownFormat = errors.New("template: unknown config format")

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}
