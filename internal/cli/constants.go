package cli

// Default values for CLI flags and output.
const (
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// MetricsNamespace prefixes every exported metric.
	MetricsNamespace = "bagfetch"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitInvalid   = 2
	ExitPartial   = 3
	ExitCancelled = 4
)
