package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/gamebridge/internal/appconfig"
	"pkt.systems/gamebridge/internal/eventbus"
	"pkt.systems/gamebridge/internal/mcptools"
	"pkt.systems/gamebridge/internal/metrics"
	"pkt.systems/gamebridge/internal/version"
	"pkt.systems/pslog"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var cfgPath string
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control-plane tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(metricsAddr) != "" {
				cfg.Metrics.Addr = metricsAddr
			}

			m := metrics.New()
			if cfg.Metrics.Addr != "" {
				go func() {
					if err := metrics.ListenAndServe(ctx, cfg.Metrics.Addr, m); err != nil {
						logger.Warn("metrics server stopped", "err", err)
					}
				}()
			}

			bus := eventbus.New(logger)
			manager, err := newManager(cfg, bus, m, logger)
			if err != nil {
				return err
			}
			if err := manager.RecoverResidue(ctx); err != nil {
				logger.Warn("residue cleanup incomplete", "err", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("shutdown cleanup incomplete", "err", err)
				}
			}()

			tools := mcptools.New(manager, newBridgeClient(cfg, logger, m), logger)
			server := mcptools.NewServer(tools, version.Name, version.Current())
			events, unsubscribe := bus.Subscribe()
			defer unsubscribe()
			go mcptools.Forward(ctx, server, events)

			logger.Info("serve start", "bridge", cfg.Bridge.Host, "port", cfg.Bridge.Port, "version", version.Current())
			return mcptools.Serve(ctx, server, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	return cmd
}
