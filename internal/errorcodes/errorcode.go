// Package errorcodes defines the control-channel error taxonomy.
// ControlError holds the numeric wire code and a human-readable detail.
package errorcodes

import "fmt"

// Wire codes for the two user-visible error kinds.
const (
	// CodeInvalidParams covers caller errors: bad paths, unknown names,
	// non-dynamic targets and duplicate registrations. Never retried.
	CodeInvalidParams = -32602
	// CodePluginError covers handshake and subprocess failures, including
	// cohort timeouts.
	CodePluginError = -3
)

// ControlError represents a control-channel error with its code and detail.
type ControlError struct {
	Code   int    // numeric wire code
	Detail string // human-readable detail, includes the offending path/name
}

// Error implements the Go error interface.
func (e *ControlError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Detail, e.Code)
}

// InvalidParamsf builds a caller-error ControlError.
func InvalidParamsf(format string, args ...any) *ControlError {
	return &ControlError{Code: CodeInvalidParams, Detail: fmt.Sprintf(format, args...)}
}

// PluginErrorf builds a plugin/process-layer ControlError.
func PluginErrorf(format string, args ...any) *ControlError {
	return &ControlError{Code: CodePluginError, Detail: fmt.Sprintf(format, args...)}
}
