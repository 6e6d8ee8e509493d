package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tandemcode/tandem/internal/config"
	"github.com/tandemcode/tandem/internal/tool"
	"github.com/tandemcode/tandem/internal/workspace"
)

var configDir string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after merging all sources (global, project,
environment). Useful for checking which file a setting came from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := GetWorkDir(configDir)
		if err != nil {
			return err
		}

		cfg, err := config.Load(workDir)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the available tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := os.Getwd()
		if err != nil {
			return err
		}

		registry := tool.Default(workDir, workspace.NewLocks())
		for _, name := range registry.ToolNames() {
			t, _ := registry.Get(name)
			fmt.Printf("%-8s %s\n", name, firstLine(t.Description()))
		}
		return nil
	},
}

func init() {
	configCmd.Flags().StringVar(&configDir, "directory", "", "Working directory")
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
