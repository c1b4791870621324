package main

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/gamebridge/internal/appconfig"
	"pkt.systems/gamebridge/internal/persist"
	"pkt.systems/gamebridge/internal/projectcfg"
	"pkt.systems/gamebridge/internal/version"
	"pkt.systems/pslog"
)

const doctorPingTimeout = 2 * time.Second

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var projectPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run gamebridge diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			build := version.Get()
			logger.Info("doctor start", "config", configPath, "version", build.Version, "revision", build.Revision, "modified", build.Modified)
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}

			runner, err := newRunner(cfg)
			if err != nil {
				return err
			}
			logger.Info("doctor engine ok", "binary", runner.Binary(), "pty", cfg.Engine.UsePTY)

			store, err := persist.NewStoreWithLogger(cfg.StateDir, logger)
			if err != nil {
				return err
			}
			roots, err := store.Roots()
			if err != nil {
				return err
			}
			if len(roots) == 0 {
				logger.Info("doctor state ok", "path", store.Path())
			}
			for _, root := range roots {
				logger.Warn("doctor injected root recorded", "root", root.Path, "since", root.InjectedAt, "pid", root.PID)
			}

			checkEndpoint(cmd.Context(), cfg, logger)

			if strings.TrimSpace(projectPath) != "" {
				root, err := projectcfg.ValidateRoot(projectPath, projectOptions(cfg))
				if err != nil {
					return err
				}
				injected, err := projectcfg.IsInjected(root, projectOptions(cfg))
				if err != nil {
					return err
				}
				logger.Info("doctor project ok", "root", root, "injected", injected)
			}
			logger.Info("doctor done")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&projectPath, "path", "p", "", "also check this project root")
	return cmd
}

// checkEndpoint reports whether the listener port is free or answering.
func checkEndpoint(ctx context.Context, cfg appconfig.Config, logger pslog.Logger) {
	addr := net.JoinHostPort(cfg.Bridge.Host, strconv.Itoa(cfg.Bridge.Port))
	conn, err := net.ListenPacket("udp", addr)
	if err == nil {
		_ = conn.Close()
		logger.Info("doctor endpoint free", "addr", addr)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, doctorPingTimeout)
	defer cancel()
	client := newBridgeClient(cfg, nil, nil)
	if perr := client.Ping(ctx); perr != nil {
		logger.Warn("doctor endpoint busy without a listener", "addr", addr, "bind_err", err, "ping_err", perr)
		return
	}
	logger.Info("doctor listener answering", "addr", addr)
}
