package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/replay"
)

// #region command
func newReplayCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Replay a recorded fixture through a fresh pipeline and compare outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			results, summary, mismatches, err := replay.RunFixture(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(struct {
					Results    []replay.Result
					Summary    replay.Summary
					Mismatches []replay.Mismatch
				}{results, summary, mismatches}); err != nil {
					return err
				}
			} else {
				printReplay(f, results, summary, mismatches)
			}
			if len(mismatches) > 0 {
				return fmt.Errorf("%d of %d frames did not match the fixture", len(mismatches), len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
// #endregion command

// #region output
func printReplay(f *replay.Fixture, results []replay.Result, s replay.Summary, mismatches []replay.Mismatch) {
	if f.Description != "" {
		fmt.Println(f.Description)
	}
	fmt.Printf("%-12s  %6s  %-14s  %-11s  %s\n", "Frame", "Tick", "Outcome", "Stage", "Action")
	for _, r := range results {
		stage := "-"
		if r.Stage != "" {
			stage = string(r.Stage)
		}
		fmt.Printf("%-12s  %6d  %-14s  %-11s  %v\n", r.FrameID, r.Tick, r.Outcome, stage, r.Action)
	}
	fmt.Printf("\nFrames: %d | OK: %d | Stage failures: %d | Config errors: %d | Hidden norm: %.4f\n",
		s.TotalFrames, s.OK, s.StageFailures, s.ConfigErrors, s.HiddenNorm)
	for _, m := range mismatches {
		fmt.Printf("  MISMATCH %s: want %s %v, got %s %v\n",
			m.FrameID, m.Expected.Outcome, m.Expected.Action, m.Got.Outcome, m.Got.Action)
	}
}
// #endregion output
