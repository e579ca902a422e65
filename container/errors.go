package container

import (
	"errors"
	"fmt"
)

// Sentinel errors, grouped by the taxonomy in the container's error
// handling design: admission errors, resolution errors, invariant
// violations, and interruption, plus permission and admin/lookup errors.
var (
	// Admission errors (install/update)
	ErrStateChange      = errors.New("state change error")
	ErrRejectedByHook   = errors.New("rejected by collision hook")
	ErrDuplicateBundle  = errors.New("duplicate bundle")
	ErrModuleUninstalled = errors.New("module is uninstalled")

	// Resolution errors
	ErrResolution           = errors.New("resolution error")
	ErrSystemModuleRefresh  = errors.New("system module refresh in progress")
	ErrInconsistentDynamicWire = errors.New("resolver produced inconsistent dynamic wire")

	// Invariant violations
	ErrInvariantViolation = errors.New("invariant violation")

	// Interruption
	ErrInterrupted = errors.New("operation interrupted")

	// Permission
	ErrPermissionDenied = errors.New("permission denied")

	// Admin/lookup errors
	ErrModuleNotFound   = errors.New("module not found")
	ErrInvalidStartLevel = errors.New("invalid start level")
	ErrObserverNil      = errors.New("observer is nil")
	ErrContainerClosed  = errors.New("container is closed")
)

// ContainerError carries one of the sentinel errors above as its code plus
// an optional wrapped cause, so callers can both errors.Is against the code
// and inspect the underlying failure.
type ContainerError struct {
	Code  error
	Cause error
	Msg   string
}

func (e *ContainerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Msg, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Code)
}

func (e *ContainerError) Unwrap() error {
	if e.Cause != nil {
		return fmt.Errorf("%w: %w", e.Code, e.Cause)
	}
	return e.Code
}

func newContainerError(code error, msg string, cause error) *ContainerError {
	return &ContainerError{Code: code, Cause: cause, Msg: msg}
}
