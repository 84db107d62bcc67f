package cmd

// addCheckFlags adds the various flags for the check command
func addCheckFlags() {
	// Prevent alphabetical sorting of usage message
	checkCmd.Flags().SortFlags = false

	// Compilation artifact
	checkCmd.Flags().String("artifact", "",
		"path to a solc combined-json file compiled with --combined-json bin-runtime,storage-layout")

	// Solver backend
	checkCmd.Flags().String("solver", "z3",
		"name or path of the SMT solver binary to invoke")

	// Per-query timeout
	checkCmd.Flags().Int("solver-timeout", 10,
		"number of seconds to allow each solver query before treating its answer as unknown")

	// Persistent query cache
	checkCmd.Flags().String("solver-cache", "",
		"path to a persistent solver query cache database; empty disables caching")

	// Report output
	checkCmd.Flags().String("reports-dir", "stheno-reports",
		"directory path for counterexample reports")

	// Logging verbosity
	checkCmd.Flags().String("log-level", "info",
		"verbosity of console output (trace, debug, info, warn, error)")
}
