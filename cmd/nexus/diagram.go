package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/nexus/internal/diagram"
	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/ontology"
	"github.com/rendis/nexus/pkg/schema"
)

var diagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Render the orchestration graph or the ontology",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		ticks, _ := cmd.Flags().GetInt("ticks")
		lang := schema.ParseLang(cfg.Lang)

		var model *diagram.DiagramModel
		switch target {
		case "", "fsm":
			policy, err := engine.ParseJoinPolicy(cfg.JoinPolicy)
			if err != nil {
				return err
			}
			m := engine.NewMachine(engine.MachineOptions{Policy: policy, Logger: logger})
			snap := m.Snapshot()
			for range ticks {
				if snap, err = m.Tick(cmd.Context()); err != nil {
					return err
				}
			}
			model = diagram.Build(snap, lang)
		case "ontology":
			model = diagram.BuildOntology(ontology.Default())
		default:
			return schema.NewErrorf(schema.ErrCodeValidation, "unknown target %q: must be fsm or ontology", target)
		}

		var data []byte
		switch format {
		case "", "mermaid":
			data = []byte(diagram.RenderMermaid(model))
		case "ascii":
			data = []byte(diagram.RenderASCIIAuto(cmd.Context(), model, cfg.MermaidBinDir))
		case "png":
			img, err := diagram.RenderImage(cmd.Context(), model)
			if err != nil {
				return err
			}
			if outPath == "" {
				return schema.NewError(schema.ErrCodeValidation, "png output requires --out")
			}
			data = img
		default:
			return schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q: must be mermaid, ascii or png", format)
		}

		if outPath == "" {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("write diagram: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", outPath, len(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diagramCmd)
	diagramCmd.Flags().String("target", "fsm", "Graph to render: fsm or ontology")
	diagramCmd.Flags().StringP("format", "f", "mermaid", "Output format: mermaid, ascii or png")
	diagramCmd.Flags().StringP("out", "o", "", "Write to a file instead of stdout")
	diagramCmd.Flags().IntP("ticks", "n", 0, "Ticks to apply before rendering the fsm")
}
