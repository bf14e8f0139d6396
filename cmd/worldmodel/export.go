package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/config"
)

// #region command
func newExportCmd() *cobra.Command {
	var hiddenWidth int
	var force bool
	cmd := &cobra.Command{
		Use:   "export-models",
		Short: "Write freshly initialized loom networks for every stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			written, err := exportModels(cfg, hiddenWidth, force)
			for _, path := range written {
				fmt.Printf("  wrote %s\n", path)
			}
			if err != nil {
				return err
			}
			d := dimsFor(cfg)
			fmt.Printf("Exported %d models (obs=%d ctx=%d latent=%d hidden=%d action=%d)\n",
				len(written), d.Observation, d.Context, d.Latent, d.Hidden, d.Action)
			return nil
		},
	}
	cmd.Flags().IntVar(&hiddenWidth, "width", 64, "hidden layer width of each dense network")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing model files")
	return cmd
}
// #endregion command
