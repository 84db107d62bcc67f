package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sthenolabs/stheno/version"
)

// versionCmd represents the version command that displays build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	Long:  `Print the version, VCS revision, and Go version used to compile the binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
