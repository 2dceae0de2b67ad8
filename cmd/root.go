// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X github.com/naka-gawa/repo-miner/cmd.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "repo-miner",
	Short: "A CLI tool to select GitHub repositories for mining studies.",
	Long: `repo-miner checks a fixed list of GitHub repositories against eligibility
criteria (availability, share of files with a target extension, sustained commit
activity over a rolling window of months) and collects the commit history of
every repository that qualifies.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format: console or json")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of repo-miner",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "repo-miner %s\n", version)
		},
	})
}
