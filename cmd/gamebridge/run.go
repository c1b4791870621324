package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pkt.systems/gamebridge/core"
	"pkt.systems/gamebridge/internal/appconfig"
	"pkt.systems/gamebridge/internal/eventbus"
	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

func newRunCmd() *cobra.Command {
	var cfgPath string
	var projectPath string
	cmd := &cobra.Command{
		Use:   "run [scene]",
		Short: "Run a project with the listener injected and follow its output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			bus := eventbus.New(logger)
			manager, err := newManager(cfg, bus, nil, logger)
			if err != nil {
				return err
			}
			if err := manager.RecoverResidue(ctx); err != nil {
				logger.Warn("residue cleanup incomplete", "err", err)
			}

			events, unsubscribe := bus.Subscribe()
			defer unsubscribe()
			req := schema.StartRequest{ProjectRoot: projectPath}
			if len(args) == 1 {
				req.Scene = args[0]
			}
			resp, err := manager.Start(ctx, req)
			if err != nil {
				return err
			}
			logger.Info("run started", "project", resp.ProjectRoot, "pid", resp.PID, "injected", resp.Injected)

			exit := follow(ctx, events, cmd.OutOrStdout(), cmd.ErrOrStderr())

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			stopped, err := manager.Stop(stopCtx)
			if err != nil {
				return err
			}
			if exit != nil && (exit.ExitCode != 0 || exit.Signal != "") {
				return fmt.Errorf("target exited with code %d %s", exit.ExitCode, exit.Signal)
			}
			logger.Info("run stopped", "project", stopped.ProjectRoot, "exit_code", stopped.ExitCode)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&projectPath, "path", "p", ".", "project root")
	return cmd
}

// follow copies target output until the target exits or ctx is done. It
// returns the exit event, or nil when interrupted.
func follow(ctx context.Context, events <-chan eventbus.Event, stdout, stderr io.Writer) *schema.ExitEvent {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case schema.EventOutput:
				out := stdout
				if ev.Output.Stream == string(core.StreamStderr) {
					out = stderr
				}
				_, _ = fmt.Fprintln(out, ev.Output.Line)
			case schema.EventReady:
				pslog.Ctx(ctx).Info("listener ready", "addr", ev.Ready.Addr)
			case schema.EventExit:
				exit := ev.Exit
				return &exit
			}
		}
	}
}
