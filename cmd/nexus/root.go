package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/nexus/internal/logging"
)

var (
	cfg    Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Nexus runs the agent orchestration dashboard backend",
	Long: `Nexus simulates a six-node agent orchestration graph, streams a synthetic
system log feed and asks an LLM for health summaries and agent configs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings, _ := cmd.Flags().GetString("config")
		envFile, _ := cmd.Flags().GetString("env-file")

		loaded, err := loadConfig(settings, envFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-format") {
			loaded.LogFormat, _ = cmd.Flags().GetString("log-format")
		}
		cfg = loaded

		l, err := buildLogger(os.Stderr, cfg)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Settings file (default ~/.nexus/settings.yaml)")
	rootCmd.PersistentFlags().String("env-file", "", "Dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// buildLogger writes to stderr so stdout stays free for command output and
// the MCP stdio transport.
func buildLogger(w io.Writer, c Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(w, level, c.LogFormat)
}
