package core

import "pkt.systems/gamebridge/schema"

// EventSink receives session events from the manager. Implementations must
// not block.
type EventSink interface {
	OnOutput(event schema.OutputEvent)
	OnState(event schema.StateEvent)
	OnExit(event schema.ExitEvent)
	OnReady(event schema.ReadyEvent)
}
