package main

import (
	"os"

	"github.com/spf13/cobra"
)

// #region commands
var rootCmd = &cobra.Command{
	Use:           "worldmodel",
	Short:         "worldmodel - recurrent world-model agent runtime",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to worldmodel.yaml (defaults + env when empty)")
	rootCmd.AddCommand(newRunCmd(), newExportCmd(), newInspectCmd(), newReplayCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
// #endregion commands
