package exitcodes

const (
	// ================================
	// Platform-universal exit codes
	// ================================

	// ExitCodeSuccess indicates no errors or failures had occurred.
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates some type of general error occurred.
	ExitCodeGeneralError = 1

	// ================================
	// Application-specific exit codes
	// ================================
	// Note: Despite not being standardized, exit codes 2-5 are often used for common use cases, so we avoid them.

	// ExitCodeHandledError indicates the error was already logged by the command that produced it, so the
	// top-level handler should exit without printing it a second time.
	ExitCodeHandledError = 6

	// ExitCodeAssertionViolated indicates a safety property was found violated and a counterexample was produced.
	ExitCodeAssertionViolated = 7
)
