// Package exitcodes defines the standard exit codes used by nvmetest.
package exitcodes

// Exit code constants used by nvmetest
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every requirement verification passes
// * TestFailure (1): Used when one or more verifications fail
// * RuntimeErr (2): Used for runtime errors such as panics, missing tools or unreadable devices
const (
	Success     = 0 // All verifications pass
	TestFailure = 1 // Verification failures
	RuntimeErr  = 2 // Runtime errors
)
