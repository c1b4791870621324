package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/gamebridge/internal/appconfig"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the gamebridge config file",
	}
	var path string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := appconfig.WriteDefault(path, force)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), written)
			return err
		},
	}
	initCmd.Flags().StringVarP(&path, "path", "p", "", "config file path (default ~/.gamebridge/config.yaml)")
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
