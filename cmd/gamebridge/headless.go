package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/gamebridge/internal/appconfig"
	"pkt.systems/pslog"
)

func newHeadlessCmd() *cobra.Command {
	var cfgPath string
	var projectPath string
	cmd := &cobra.Command{
		Use:   "headless <operation> [params-json]",
		Short: "Run a headless engine operation and print its JSON result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			manager, err := newManager(cfg, nil, nil, logger)
			if err != nil {
				return err
			}
			var params json.RawMessage
			if len(args) == 2 {
				params = json.RawMessage(args[1])
			}
			result, err := manager.Headless(cmd.Context(), projectPath, args[0], params)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&projectPath, "path", "p", ".", "project root")
	return cmd
}
