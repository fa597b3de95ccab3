// Package exitcodes defines the standard exit codes used by dl-acceptor.
package exitcodes

// Exit code constants used by dl-acceptor
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when the last driver invocation exits zero
// * DriverFailure (1): Fallback when a driver failure has no usable exit code
// * RuntimeErr (2): Used for runtime errors such as credential or filesystem failures
//
// When the driver's last invocation exits non-zero, that exit code is
// propagated verbatim rather than collapsed to DriverFailure.
const (
	Success       = 0 // Last driver invocation exited zero
	DriverFailure = 1 // Driver failure without a usable exit code
	RuntimeErr    = 2 // Credential, filesystem or other runtime errors
)
