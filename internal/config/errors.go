package config

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrTypeMismatch indicates the value type doesn't match the setting.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrValidationFailed indicates the value is outside the allowed set.
	ErrValidationFailed = errors.New("validation failed")

	// ErrUnknownSetting indicates a key that no setting recognises.
	ErrUnknownSetting = errors.New("unknown setting")
)

// ValidationError describes a rejected value for one key.
type ValidationError struct {
	// Key is the dotted setting key.
	Key string
	// Value is the rejected value.
	Value any
	// Err is ErrTypeMismatch or ErrValidationFailed.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v (value: %v)", e.Key, e.Err, e.Value)
}

// Unwrap returns the sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
