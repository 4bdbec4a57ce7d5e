package internalerr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrBackendUnavailable = errors.New("embedding backend unavailable")
)

// ConfigError describes a fatal configuration problem. It matches
// ErrInvalidConfig with errors.Is.
type ConfigError struct {
	Topic  string // empty for global settings
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid configuration")
	if e.Topic != "" {
		fmt.Fprintf(&b, ": topic %q", e.Topic)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// BackendError reports an unusable embedding backend together with the
// context needed to diagnose it. It matches ErrBackendUnavailable.
type BackendError struct {
	Op    string
	Mode  string
	Topic string
	Items int
	Err   error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s: %v (mode=%s", e.Op, ErrBackendUnavailable, e.Mode)
	if e.Topic != "" {
		msg += fmt.Sprintf(" topic=%s", e.Topic)
	}
	msg += fmt.Sprintf(" items=%d)", e.Items)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackendUnavailable }
