package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blacklist-hub/blacklist/utils"
)

var rootCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Threat-intelligence blacklist collection server",
	Long:  "Aggregates IP blacklist feeds from external threat-intelligence sources under collection protection.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s (hash: %s)\n", utils.CurrentVersion, utils.VersionHash)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
