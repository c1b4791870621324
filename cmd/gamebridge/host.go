package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/gamebridge/internal/appconfig"
	"pkt.systems/gamebridge/internal/enginehost"
	"pkt.systems/pslog"
)

func newHostCmd() *cobra.Command {
	var cfgPath string
	var projectPath string
	var headless bool
	var fps int
	var listenAddr string
	var debug bool
	cmd := &cobra.Command{
		Use:   "host [scene] | host --headless <operation> [params-json]",
		Short: "Run the reference engine host",
		Long: "Run the reference engine host. It loads the project and scene, steps frames and starts the " +
			"listener when the project registers it. Point engine.binary at gamebridge with extra_args [host] " +
			"to drive it through serve or run.",
		Args:               cobra.MaximumNArgs(2),
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if headless {
				if len(args) == 0 {
					return cmd.Usage()
				}
				var params json.RawMessage
				if len(args) == 2 {
					params = json.RawMessage(args[1])
				}
				return enginehost.RunHeadless(cmd.Context(), projectPath, projectOptions(cfg), args[0], params, cmd.OutOrStdout())
			}
			scene := ""
			if len(args) > 0 {
				scene = strings.TrimSpace(args[0])
			}
			if debug {
				logger = logger.With("debug", true)
			}
			host, err := enginehost.New(enginehost.Config{
				Root:       projectPath,
				Scene:      scene,
				Project:    projectOptions(cfg),
				FPS:        fps,
				ListenAddr: listenAddr,
				Stdout:     cmd.OutOrStdout(),
			}, logger)
			if err != nil {
				return err
			}
			return host.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&projectPath, "path", ".", "project root")
	cmd.Flags().BoolVar(&headless, "headless", false, "run one operation and exit")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "run in debug mode")
	cmd.Flags().IntVar(&fps, "fps", 30, "frames per second")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "override the listener address from the artifact")
	return cmd
}
