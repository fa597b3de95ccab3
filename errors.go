package orchestrator

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, artifact directory failures, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// CredentialError represents a failure to acquire a delegated credential.
// It is fatal: no driver invocation may proceed without a valid credential.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *CredentialError) Unwrap() error {
	return e.Err
}

// NewCredentialError creates a new CredentialError
func NewCredentialError(err error) *CredentialError {
	return &CredentialError{Err: err}
}

// IsCredentialError checks if the error is or wraps a CredentialError
func IsCredentialError(err error) bool {
	var credErr *CredentialError
	return err != nil && errors.As(err, &credErr)
}

// FilesystemError represents a failure to prepare the scratch directory.
// It is fatal for the orchestration cycle.
type FilesystemError struct {
	Err error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// NewFilesystemError creates a new FilesystemError
func NewFilesystemError(err error) *FilesystemError {
	return &FilesystemError{Err: err}
}

// IsFilesystemError checks if the error is or wraps a FilesystemError
func IsFilesystemError(err error) bool {
	var fsErr *FilesystemError
	return err != nil && errors.As(err, &fsErr)
}

// DriverFailureError carries the exit code of the last driver invocation so
// the process can propagate it verbatim.
type DriverFailureError struct {
	ExitCode int
	Message  string
}

func (e *DriverFailureError) Error() string {
	return fmt.Sprintf("driver failure (exit %d): %s", e.ExitCode, e.Message)
}

// NewDriverFailureError creates a new DriverFailureError
func NewDriverFailureError(exitCode int, message string) *DriverFailureError {
	return &DriverFailureError{ExitCode: exitCode, Message: message}
}

// IsDriverFailureError checks if the error is or wraps a DriverFailureError
func IsDriverFailureError(err error) bool {
	var driverErr *DriverFailureError
	return err != nil && errors.As(err, &driverErr)
}

// DriverFailureExitCode extracts the driver exit code from a DriverFailureError
func DriverFailureExitCode(err error) (int, bool) {
	var driverErr *DriverFailureError
	if err != nil && errors.As(err, &driverErr) {
		return driverErr.ExitCode, true
	}
	return 0, false
}
