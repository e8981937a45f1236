package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pipeline definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadDefinition(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d stages, %d triggers\n",
				configPath, len(def.Stages), len(def.Triggers))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to pipeline definition file")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}
