package main

import (
	"fmt"

	"github.com/spf13/cobra"

	nexusmcp "github.com/rendis/nexus/pkg/mcp"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/nexus/
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of nexus",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "nexus version %s\n", version)
	},
}

func init() {
	nexusmcp.Version = version
	rootCmd.AddCommand(versionCmd)
}
