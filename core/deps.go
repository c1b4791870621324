package core

import (
	"pkt.systems/gamebridge/internal/metrics"
	"pkt.systems/gamebridge/internal/persist"
	"pkt.systems/pslog"
)

// ManagerDeps captures the collaborators of the session manager. Only
// Launcher is required.
type ManagerDeps struct {
	Launcher Launcher
	Sink     EventSink
	Store    *persist.Store
	Metrics  *metrics.Metrics
	Logger   pslog.Logger
}
