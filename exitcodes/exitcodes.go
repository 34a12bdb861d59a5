// Package exitcodes defines the standard exit codes used by op-webcept.
package exitcodes

// Exit code constants used by op-webcept
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when the requested unit passed, or the service shut down cleanly
// * TestFailure (1): Used when the requested unit failed or errored
// * RuntimeErr (2): Used for runtime errors such as unreadable settings or a missing Codeception config
const (
	Success     = 0 // Unit passed
	TestFailure = 1 // Unit failed or errored
	RuntimeErr  = 2 // Runtime errors
)
