package cmd

import (
	"github.com/spf13/cobra"
	"github.com/sthenolabs/stheno/logging"
)

// cmdLogger is the logger used by all CLI commands.
var cmdLogger = logging.GlobalLogger.NewSubLogger("module", "cmd")

var rootCmd = &cobra.Command{
	Use:   "stheno",
	Short: "A symbolic storage checker for EVM smart contracts",
	Long:  "stheno checks EVM smart contract storage safety properties with an SMT solver",
}

func Execute() error {
	return rootCmd.Execute()
}
