// SnapNEarn - Citizen traffic violation reporting with police review.
// Copyright (c) 2025 SnapNEarn contributors
// Licensed under the Apache License 2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "snapnearn",
		Short:         "SnapNEarn traffic violation lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		serveCommand(&configPath),
		purgeCommand(&configPath),
		noticeCommand(&configPath),
		policyCommand(),
		versionCommand(),
	)

	// Running the bare binary starts the server.
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), configPath)
	}
	return root
}
