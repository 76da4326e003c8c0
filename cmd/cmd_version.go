package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), BuildDetails())
		},
	}
}

// BuildDetails returns the version, commit and build date
func BuildDetails() string {
	if version == "" {
		return "fxquery (unreleased)"
	}
	return fmt.Sprintf("fxquery %s\ncommit: %s\ndate: %s", version, commit, date)
}
