package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/nexus/internal/metrics"
	"github.com/rendis/nexus/pkg/schema"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [snapshot]",
	Short: "Summarize a system log snapshot with the configured LLM",
	Long: `Sends a log snapshot to the insight service and prints the summary.
The snapshot is read from the argument, from --file ("-" for stdin), or
defaults to the dashboard's canned system snapshot.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := readInput(cmd, args, metrics.LogSnapshot)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		lang := langFlag(cmd)

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ins, err := a.insight.Analyze(cmd.Context(), snapshot, lang)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), ins)
		}
		md := fmt.Sprintf("## System insight\n\n%s\n\n_source: %s_\n", ins.Summary, ins.Source)
		_, err = fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(md))
		return err
	},
}

// readInput returns the positional argument, the --file contents or def.
func readInput(cmd *cobra.Command, args []string, def string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	path, _ := cmd.Flags().GetString("file")
	switch path {
	case "":
		return def, nil
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}

func langFlag(cmd *cobra.Command) schema.Lang {
	if l, _ := cmd.Flags().GetString("lang"); l != "" {
		return schema.ParseLang(l)
	}
	return schema.ParseLang(cfg.Lang)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().String("file", "", `Read the snapshot from a file ("-" for stdin)`)
	analyzeCmd.Flags().String("lang", "", "Response language: en or zh")
	analyzeCmd.Flags().Bool("json", false, "Print the stored insight as JSON")
}
