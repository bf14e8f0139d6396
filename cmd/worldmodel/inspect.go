package main

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/config"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/state"
)

// #region command
var (
	inspectJSON  bool
	inspectLimit int
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect stored checkpoints and tick history",
	}
	cmd.PersistentFlags().BoolVar(&inspectJSON, "json", false, "output JSON")
	cmd.PersistentFlags().IntVar(&inspectLimit, "limit", 20, "maximum rows")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "agents",
			Short: "List agents with an active checkpoint",
			RunE:  withStore(inspectAgents),
		},
		&cobra.Command{
			Use:   "checkpoints",
			Short: "List the agent's checkpoints, newest first",
			RunE:  withStore(inspectCheckpoints),
		},
		&cobra.Command{
			Use:   "ticks",
			Short: "List the agent's logged ticks and outcome totals",
			RunE:  withStore(inspectTicks),
		},
		&cobra.Command{
			Use:   "rollback <version-id>",
			Short: "Make an earlier checkpoint the agent's active one",
			Args:  cobra.ExactArgs(1),
			RunE:  withStore(rollback),
		},
	)
	return cmd
}

type storeFunc func(cfg config.Config, store *state.Store, args []string) error

func withStore(fn storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		store, err := state.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		return fn(cfg, store, args)
	}
}
// #endregion command

// #region agents
func inspectAgents(_ config.Config, store *state.Store, _ []string) error {
	agents, err := store.Agents()
	if err != nil {
		return err
	}
	if inspectJSON {
		return printJSON(agents)
	}
	if len(agents) == 0 {
		fmt.Println("No checkpoints stored.")
		return nil
	}
	for _, a := range agents {
		fmt.Println(a)
	}
	return nil
}
// #endregion agents

// #region checkpoints
type checkpointRow struct {
	VersionID  string    `json:"version_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Tick       uint64    `json:"tick"`
	HiddenDim  int       `json:"hidden_dim"`
	HiddenNorm float64   `json:"hidden_norm"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

func inspectCheckpoints(cfg config.Config, store *state.Store, _ []string) error {
	cps, err := store.ListCheckpoints(cfg.AgentID, inspectLimit)
	if err != nil {
		return err
	}
	activeID := ""
	if latest, err := store.Latest(cfg.AgentID); err == nil {
		activeID = latest.VersionID
	}

	rows := make([]checkpointRow, len(cps))
	for i, cp := range cps {
		rows[i] = checkpointRow{
			VersionID:  cp.VersionID,
			ParentID:   cp.ParentID,
			Tick:       cp.Tick,
			HiddenDim:  len(cp.Hidden),
			HiddenNorm: l2(cp.Hidden),
			Active:     cp.VersionID == activeID,
			CreatedAt:  cp.CreatedAt,
		}
	}
	if inspectJSON {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Printf("No checkpoints for %s.\n", cfg.AgentID)
		return nil
	}

	fmt.Printf("%-10s  %-10s  %8s  %6s  %10s  %s\n", "Version", "Parent", "Tick", "Dim", "Norm", "Time")
	for _, r := range rows {
		marker := ""
		if r.Active {
			marker = "  *"
		}
		parent := "-"
		if r.ParentID != "" {
			parent = shortID(r.ParentID)
		}
		fmt.Printf("%-10s  %-10s  %8d  %6d  %10.4f  %s%s\n",
			shortID(r.VersionID), parent, r.Tick, r.HiddenDim, r.HiddenNorm,
			r.CreatedAt.Format(time.DateTime), marker)
	}
	return nil
}
// #endregion checkpoints

// #region ticks
type tickReport struct {
	Totals []logging.OutcomeCount `json:"totals"`
	Ticks  []logging.TickEntry    `json:"ticks"`
}

func inspectTicks(cfg config.Config, store *state.Store, _ []string) error {
	ticks, err := logging.ListTicks(store.DB(), cfg.AgentID, inspectLimit)
	if err != nil {
		return err
	}
	totals, err := logging.CountOutcomes(store.DB(), cfg.AgentID)
	if err != nil {
		return err
	}
	if inspectJSON {
		return printJSON(tickReport{Totals: totals, Ticks: ticks})
	}

	for _, t := range totals {
		fmt.Printf("%-14s %d\n", t.Outcome, t.Count)
	}
	if len(ticks) == 0 {
		fmt.Printf("No ticks logged for %s.\n", cfg.AgentID)
		return nil
	}
	fmt.Println()
	fmt.Printf("%8s  %-14s  %-11s  %-10s  %6s  %8s  %s\n", "Tick", "Outcome", "Stage", "Action", "Phase", "Dt", "Checkpoint")
	for _, t := range ticks {
		stage, action, cp := "-", "-", ""
		if t.Stage != "" {
			stage = t.Stage
		}
		if t.ActionJSON != "" {
			action = t.ActionJSON
		}
		if t.VersionID != "" {
			cp = shortID(t.VersionID)
		}
		fmt.Printf("%8d  %-14s  %-11s  %-10s  %6.3f  %8.2f  %s\n",
			t.Tick, t.Outcome, stage, action, t.ClockPhase, t.TickDuration, cp)
	}
	return nil
}
// #endregion ticks

// #region rollback
func rollback(cfg config.Config, store *state.Store, args []string) error {
	if err := store.Rollback(cfg.AgentID, args[0]); err != nil {
		return err
	}
	fmt.Printf("Agent %s now resumes from %s.\n", cfg.AgentID, args[0])
	return nil
}
// #endregion rollback

// #region output
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
// #endregion output
