package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/crytic/medusa-geth/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/sthenolabs/stheno/cmd/exitcodes"
	"github.com/sthenolabs/stheno/compilation"
	"github.com/sthenolabs/stheno/execution"
	"github.com/sthenolabs/stheno/logging"
	"github.com/sthenolabs/stheno/logging/colors"
	"github.com/sthenolabs/stheno/reporting"
	"github.com/sthenolabs/stheno/solver"
	"github.com/sthenolabs/stheno/storage"
	"github.com/sthenolabs/stheno/symbolic"
	"github.com/sthenolabs/stheno/utils"
)

// checkCmd represents the command provider for storage layout checking
var checkCmd = &cobra.Command{
	Use:               "check",
	Short:             "Checks contract storage layouts for slot aliasing",
	Long:              `Checks contract storage layouts for slot aliasing`,
	Args:              cmdValidateCheckArgs,
	ValidArgsFunction: cmdValidCheckArgs,
	RunE:              cmdRunCheck,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	addCheckFlags()

	// Add the check command and its associated flags to the root command
	rootCmd.AddCommand(checkCmd)
}

// cmdValidCheckArgs will return which flags and sub-commands are valid for dynamic completion for the check command
func cmdValidCheckArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Gather a list of flags that are available to be used in the current command but have not been used yet
	var unusedFlags []string

	// Examine all the flags, and add any flags that have not been set in the current command line
	// to a list of unused flags
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateCheckArgs makes sure that there are no positional arguments provided to the check command
func cmdValidateCheckArgs(cmd *cobra.Command, args []string) error {
	// Make sure we have no positional args
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("check does not accept any positional arguments, only flags and their associated values")
		cmdLogger.Error("Failed to validate args to the check command", err)
		return err
	}
	return nil
}

// cmdRunCheck executes the CLI check command. It loads a compilation artifact with storage
// layouts, probes the solver backend, and audits every contract's layout: representative
// slots are derived per declared variable (one for a scalar, two with independent fresh
// symbolic keys for a mapping or array), and each pair of slots is submitted to the alias
// decider. Distinct declared variables must never alias, and two accesses of the same
// variable under independent keys must only alias when the keys coincide, so any pair the
// decider cannot prove disjoint is reported with a witnessing counterexample.
func cmdRunCheck(cmd *cobra.Command, args []string) error {
	// Configure the global logger from the CLI flags before anything else logs
	levelFlag, err := cmd.Flags().GetString("log-level")
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return err
	}
	level, err := zerolog.ParseLevel(levelFlag)
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return err
	}
	logging.GlobalLogger.SetLevel(level)
	logging.GlobalLogger.EnableConsoleLogging()

	artifactPath, err := cmd.Flags().GetString("artifact")
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return err
	}
	if artifactPath == "" {
		err = fmt.Errorf("no compilation artifact was provided, use --artifact to point at a solc combined-json file")
		cmdLogger.Error("Failed to run the check command", err)
		return err
	}

	solverBinary, err := cmd.Flags().GetString("solver")
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return err
	}
	solverTimeout, err := cmd.Flags().GetInt("solver-timeout")
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return err
	}
	cachePath, err := cmd.Flags().GetString("solver-cache")
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return err
	}
	reportsDir, err := cmd.Flags().GetString("reports-dir")
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return err
	}

	// Load the compilation artifact and its storage layouts
	cmdLogger.Info("Reading the compilation artifact at: ", colors.Bold, artifactPath, colors.Reset)
	artifacts, err := compilation.LoadArtifacts(artifactPath)
	if err != nil {
		cmdLogger.Error("Failed to run the check command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	ctx := context.Background()
	queryTimeout := time.Duration(solverTimeout) * time.Second

	// Stand up the solver backend, with the persistent query cache in front when requested
	var smt solver.Solver = solver.NewZ3Solver(solverBinary)
	if cachePath != "" {
		cached, err := solver.NewCachedSolver(ctx, smt, cachePath)
		if err != nil {
			cmdLogger.Error("Failed to run the check command", err)
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
		}
		defer cached.Close()
		smt = cached
	}

	// Probe the backend with a trivial query so a missing binary fails loudly up front
	// instead of surfacing as an unknown verdict mid-audit
	builder := symbolic.NewBuilder()
	probeCtx, probeCancel := context.WithTimeout(ctx, queryTimeout)
	_, err = smt.CheckSat(probeCtx, solver.Query{Assertions: []*symbolic.Expr{builder.Bool(true)}})
	probeCancel()
	if err != nil {
		cmdLogger.Error("Failed to reach the solver backend", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	model := execution.NewStateModel(builder, smt)
	oracle := storage.NewDigestOracle(builder)

	violations := 0
	var reporter *reporting.Reporter
	for _, name := range utils.SortedKeys(artifacts) {
		artifact := artifacts[name]
		contract := contractAddress(name)
		if err = model.RegisterContract(contract, artifact.Layout); err != nil {
			cmdLogger.Error("Failed to run the check command", err)
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
		}
		cmdLogger.Info("Checking contract ", colors.Bold, name, colors.Reset, " with ",
			colors.Bold, len(artifact.Layout.Names()), colors.Reset, " storage variables")

		// Derive the representative slots per declared variable
		deriver := storage.NewSlotDeriver(artifact.Layout, oracle, builder)
		var slots []*storage.Slot
		for _, variableName := range artifact.Layout.Names() {
			variable, _ := artifact.Layout.Variable(variableName)
			for _, accessors := range representativePaths(builder, variable) {
				slot, err := deriver.DeriveSlot(accessors)
				if err != nil {
					cmdLogger.Error("Failed to derive a storage slot for variable "+variableName, err)
					return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
				}
				cmdLogger.Debug("Derived slot for ", variableName, ": ", slot.String())
				slots = append(slots, slot)
			}
		}

		// Audit every pair of variables for aliasing
		path := execution.NewRootPath(builder, smt)
		pathCondition, err := path.Condition()
		if err != nil {
			cmdLogger.Error("Failed to run the check command", err)
			return err
		}
		for i := 0; i < len(slots); i++ {
			for j := i + 1; j < len(slots); j++ {
				queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
				verdict, err := path.Decider().Decide(queryCtx, slots[i], slots[j], pathCondition)
				cancel()
				if err != nil {
					cmdLogger.Error("Failed to decide slot aliasing", err)
					return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
				}
				if verdict == storage.VerdictMustNot {
					continue
				}

				violations++
				if slots[i].Variable == slots[j].Variable {
					cmdLogger.Warn("Two accesses of variable ", colors.Bold, slots[i].Variable, colors.Reset,
						" of contract ", name, " may share a slot under independent keys (verdict: ",
						verdict.String(), ")")
				} else {
					cmdLogger.Warn("Variables ", colors.Bold, slots[i].Variable, colors.Reset, " and ",
						colors.Bold, slots[j].Variable, colors.Reset, " of contract ", name,
						" may share a slot (verdict: ", verdict.String(), ")")
				}
				if reporter == nil {
					if reporter, err = reporting.NewReporter(reportsDir); err != nil {
						cmdLogger.Error("Failed to run the check command", err)
						return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
					}
				}
				if err = saveAliasWitness(ctx, queryTimeout, model, path, slots[i], slots[j], reporter); err != nil {
					cmdLogger.Error("Failed to save a counterexample", err)
					return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
				}
			}
		}
	}

	if violations > 0 {
		err = fmt.Errorf("%d potential storage slot collision(s) found", violations)
		cmdLogger.Error("Check completed with findings", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeAssertionViolated)
	}
	cmdLogger.Info(colors.GreenBold, "Check completed, no storage slot collisions found", colors.Reset)
	return nil
}

// representativePaths builds the access paths audited for one declared variable. A scalar
// contributes its single base slot. A mapping or dynamic array contributes two paths with
// independent fresh keys, so same-variable pairs reach the solver instead of being settled
// by the decider's provenance rule.
func representativePaths(builder *symbolic.Builder, variable *storage.Variable) [][]storage.Accessor {
	first := representativePath(builder, variable, "a")
	if len(first) == 1 {
		return [][]storage.Accessor{first}
	}
	return [][]storage.Accessor{first, representativePath(builder, variable, "b")}
}

// representativePath builds an access path reaching one concrete slot of the variable,
// introducing a fresh symbolic key or index tagged with the given suffix wherever the layout
// requires one.
func representativePath(builder *symbolic.Builder, variable *storage.Variable, tag string) []storage.Accessor {
	accessors := []storage.Accessor{storage.Field(variable.Name)}
	node := variable.Type
	depth := 0
	for {
		switch node.Kind {
		case storage.LayoutMapping:
			key := builder.Var(fmt.Sprintf("%s.key%d%s", variable.Name, depth, tag), symbolic.WordWidth)
			accessors = append(accessors, storage.MapKey(key))
			node = node.Value
		case storage.LayoutDynamicArray:
			index := builder.Var(fmt.Sprintf("%s.index%d%s", variable.Name, depth, tag), symbolic.WordWidth)
			accessors = append(accessors, storage.ArrayIndex(index))
			node = node.Value
		default:
			return accessors
		}
		depth++
	}
}

// saveAliasWitness asks the solver for a concrete assignment under which the two slots collide
// and persists it as a counterexample report.
func saveAliasWitness(ctx context.Context, timeout time.Duration, model *execution.StateModel, path *execution.Path, a, b *storage.Slot, reporter *reporting.Reporter) error {
	collision, err := model.Builder().Eq(a.Expr, b.Expr)
	if err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := model.CheckAssertion(queryCtx, path, collision)
	if err != nil {
		return err
	}
	counterexample, err := reporting.NewCounterexample(path, result)
	if err != nil {
		return err
	}
	filePath, err := reporter.Save(counterexample)
	if err != nil {
		return err
	}
	cmdLogger.Info("Counterexample saved to: ", colors.Bold, filePath, colors.Reset)
	return nil
}

// contractAddress derives a stable address for a contract under audit from its name, so
// journal entries and reports reference the same address across runs.
func contractAddress(name string) common.Address {
	digest := utils.Keccak256([]byte(name))
	return common.BytesToAddress(digest[12:])
}
