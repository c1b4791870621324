package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"pkt.systems/gamebridge/internal/eventbus"
	"pkt.systems/gamebridge/schema"
)

// notifier is the part of the MCP server used to push log notifications.
type notifier interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

var _ notifier = (*server.MCPServer)(nil)

// Forward relays session lifecycle events to connected clients as log
// message notifications until ctx is done or events closes. Output lines
// are not forwarded; clients poll get_debug_output for them.
func Forward(ctx context.Context, s notifier, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if params, ok := notification(ev); ok {
				s.SendNotificationToAllClients("notifications/message", params)
			}
		}
	}
}

func notification(ev eventbus.Event) (map[string]any, bool) {
	switch ev.Type {
	case schema.EventState:
		return map[string]any{"level": "info", "logger": "session", "data": ev.State}, true
	case schema.EventReady:
		return map[string]any{"level": "info", "logger": "session", "data": ev.Ready}, true
	case schema.EventExit:
		level := "info"
		if ev.Exit.ExitCode != 0 || ev.Exit.Signal != "" {
			level = "warning"
		}
		return map[string]any{"level": level, "logger": "session", "data": ev.Exit}, true
	default:
		return nil, false
	}
}
