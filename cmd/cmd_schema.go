package main

import (
	"github.com/dosco/fxquery/serv"
	"github.com/spf13/cobra"
)

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-schema",
		Short: "Print the JSON schema of the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := serv.JSONSchema()
			if err != nil {
				return err
			}
			b = append(b, '\n')
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
