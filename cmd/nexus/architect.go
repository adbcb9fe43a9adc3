package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/nexus/internal/insight"
	"github.com/rendis/nexus/pkg/schema"
)

var architectCmd = &cobra.Command{
	Use:   "architect [description]",
	Short: "Generate an agent config from a description",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, err := readInput(cmd, args, "")
		if err != nil {
			return err
		}
		if strings.TrimSpace(description) == "" {
			return schema.NewError(schema.ErrCodeValidation, "a description is required")
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		lang := langFlag(cmd)

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.insight.Architect(cmd.Context(), description, lang)
		if err != nil {
			var ne *schema.NexusError
			if errors.As(err, &ne) && ne.Code == schema.ErrCodeGeneration {
				fmt.Fprintln(cmd.ErrOrStderr(), insight.ArchitectUnavailable(lang))
			}
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(agentMarkdown(res)))
		return err
	},
}

func agentMarkdown(res *insight.ArchitectResult) string {
	c := res.Config.Config
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", res.Reply)
	fmt.Fprintf(&b, "# %s\n\n", c.Name)
	fmt.Fprintf(&b, "**Role:** %s  \n", c.Role)
	fmt.Fprintf(&b, "**Model:** `%s` (temperature %.2f)  \n", c.Model, c.Temperature)
	fmt.Fprintf(&b, "**ID:** `%s`\n\n", res.Config.ID)
	fmt.Fprintf(&b, "%s\n\n", c.Description)
	if len(c.Tools) > 0 {
		b.WriteString("## Tools\n\n")
		for _, t := range c.Tools {
			fmt.Fprintf(&b, "- `%s`\n", t)
		}
		b.WriteString("\n")
	}
	b.WriteString("## System prompt\n\n")
	for _, line := range strings.Split(c.SystemPrompt, "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}
	if res.Config.Mock {
		b.WriteString("\n_No API key configured: this is a simulated config._\n")
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(architectCmd)
	architectCmd.Flags().String("file", "", `Read the description from a file ("-" for stdin)`)
	architectCmd.Flags().String("lang", "", "Reply language: en or zh")
	architectCmd.Flags().Bool("json", false, "Print the stored config as JSON")
}
