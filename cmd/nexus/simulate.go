package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/nexus/internal/diagram"
	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/pkg/schema"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Advance the orchestration graph offline and print each step",
	Long: `Runs the state machine for a fixed number of ticks without the store,
the hub or any timers. Useful to inspect the join policies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ticks, _ := cmd.Flags().GetInt("ticks")
		format, _ := cmd.Flags().GetString("format")
		policyFlag, _ := cmd.Flags().GetString("policy")
		if policyFlag == "" {
			policyFlag = cfg.JoinPolicy
		}
		policy, err := engine.ParseJoinPolicy(policyFlag)
		if err != nil {
			return err
		}
		if ticks < 0 {
			return schema.NewError(schema.ErrCodeValidation, "ticks must not be negative")
		}

		m := engine.NewMachine(engine.MachineOptions{Policy: policy, Logger: logger})
		out := cmd.OutOrStdout()
		lang := schema.ParseLang(cfg.Lang)

		if err := printStep(out, format, m.Snapshot(), lang); err != nil {
			return err
		}
		for range ticks {
			snap, err := m.Tick(cmd.Context())
			if err != nil {
				return err
			}
			if err := printStep(out, format, snap, lang); err != nil {
				return err
			}
		}
		return nil
	},
}

func printStep(w io.Writer, format string, snap engine.Snapshot, lang schema.Lang) error {
	switch format {
	case "", "vector":
		_, err := fmt.Fprintf(w, "%4d  cycle=%d  %s\n", snap.Tick, snap.Cycle, snap.Vector)
		return err
	case "ascii":
		_, err := fmt.Fprintf(w, "tick %d\n%s\n", snap.Tick, diagram.RenderASCII(diagram.Build(snap, lang)))
		return err
	case "json":
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q: must be vector, ascii or json", format)
	}
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntP("ticks", "n", 12, "Number of ticks to apply")
	simulateCmd.Flags().String("policy", "", "Join policy: eager or barrier (defaults to join_policy)")
	simulateCmd.Flags().StringP("format", "f", "vector", "Output format: vector, ascii or json")
}
