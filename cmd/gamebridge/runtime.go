package main

import (
	"net"
	"strconv"

	"pkt.systems/gamebridge/bridge"
	"pkt.systems/gamebridge/core"
	"pkt.systems/gamebridge/internal/appconfig"
	"pkt.systems/gamebridge/internal/engineproc"
	"pkt.systems/gamebridge/internal/metrics"
	"pkt.systems/gamebridge/internal/persist"
	"pkt.systems/gamebridge/internal/projectcfg"
	"pkt.systems/pslog"
)

func projectOptions(cfg appconfig.Config) projectcfg.Options {
	return projectcfg.Options{
		ProjectFile:  cfg.Listener.ProjectFile,
		Registration: cfg.Listener.Registration,
		ArtifactFile: cfg.Listener.ArtifactFile,
		OutputDir:    cfg.Listener.OutputDir,
		IgnoreMarker: cfg.Listener.IgnoreMarker,
	}
}

func listenerArtifact(cfg appconfig.Config) projectcfg.Artifact {
	return projectcfg.Artifact{
		Addr:          net.JoinHostPort(cfg.Bridge.Host, strconv.Itoa(cfg.Bridge.Port)),
		OutputDir:     cfg.Listener.OutputDir,
		ScriptTimeout: cfg.Listener.ScriptTimeout().String(),
	}
}

func newRunner(cfg appconfig.Config) (*engineproc.Runner, error) {
	return engineproc.NewRunner(engineproc.Config{
		BinaryPath: cfg.Engine.Binary,
		ExtraArgs:  cfg.Engine.ExtraArgs,
		Env:        cfg.Engine.EnvList(),
		UsePTY:     cfg.Engine.UsePTY,
	})
}

// newManager wires the session manager. sink may be nil.
func newManager(cfg appconfig.Config, sink core.EventSink, m *metrics.Metrics, logger pslog.Logger) (*core.Manager, error) {
	runner, err := newRunner(cfg)
	if err != nil {
		return nil, err
	}
	store, err := persist.NewStoreWithLogger(cfg.StateDir, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("engine resolved", "binary", runner.Binary(), "state", store.Path())
	return core.NewManager(core.ManagerConfig{
		Project:         projectOptions(cfg),
		Artifact:        listenerArtifact(cfg),
		OutputMaxLines:  cfg.Session.OutputMaxLines,
		ReadyTimeout:    cfg.Session.ReadyTimeout(),
		StopGrace:       cfg.Session.StopGrace(),
		HeadlessTimeout: cfg.Engine.HeadlessTimeout(),
	}, core.ManagerDeps{
		Launcher: runner,
		Sink:     sink,
		Store:    store,
		Metrics:  m,
		Logger:   logger,
	})
}

func newBridgeClient(cfg appconfig.Config, logger pslog.Logger, m *metrics.Metrics) *bridge.Client {
	return bridge.New(bridge.Config{
		Host:    cfg.Bridge.Host,
		Port:    cfg.Bridge.Port,
		Timeout: cfg.Bridge.Timeout(),
	}, logger, m)
}
