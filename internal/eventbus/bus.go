package eventbus

import (
	"context"
	"sync"

	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

// Event is one session event delivered to subscribers. Only the field named
// by Type is set.
type Event struct {
	Type   schema.EventType
	Output schema.OutputEvent
	State  schema.StateEvent
	Exit   schema.ExitEvent
	Ready  schema.ReadyEvent
}

// Bus fans session events out to subscribers. Slow subscribers lose events
// instead of blocking the publisher.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger.With("component", "eventbus"),
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel
// function that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnOutput publishes an output line.
func (b *Bus) OnOutput(event schema.OutputEvent) {
	b.publish(Event{Type: schema.EventOutput, Output: event})
}

// OnState publishes a state transition.
func (b *Bus) OnState(event schema.StateEvent) {
	b.publish(Event{Type: schema.EventState, State: event})
}

// OnExit publishes a process exit.
func (b *Bus) OnExit(event schema.ExitEvent) {
	b.publish(Event{Type: schema.EventExit, Exit: event})
}

// OnReady publishes a listener readiness announcement.
func (b *Bus) OnReady(event schema.ReadyEvent) {
	b.publish(Event{Type: schema.EventReady, Ready: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return
	}
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
