// Package commands provides the CLI commands for tandem.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	printLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "tandem - AI coding agent engine",
	Long: `tandem runs an agentic coding loop against an LLM provider: it streams
model output, extracts embedded tool calls, executes them (in parallel
where safe), folds the results back into the conversation, and repeats
until the task is done.

Run 'tandem run "task"' to execute a task, or 'tandem config' to inspect
the resolved configuration.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")

	rootCmd.SetVersionTemplate(fmt.Sprintf("tandem %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
