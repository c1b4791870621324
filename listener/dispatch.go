package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"pkt.systems/gamebridge/internal/uitree"
	"pkt.systems/gamebridge/scene"
	"pkt.systems/gamebridge/schema"
)

// decode returns the command and its raw envelope. Text that is not JSON at
// all falls back to the legacy plain-text commands. A non-nil ErrorReply
// means the datagram is answered with that envelope.
func decode(data []byte) (schema.Command, []byte, *schema.ErrorReply) {
	trimmed := bytes.TrimSpace(data)
	var generic any
	if err := json.Unmarshal(trimmed, &generic); err != nil {
		if cmd, ok := schema.LegacyCommand(string(trimmed)); ok {
			return cmd, nil, nil
		}
		return "", nil, &schema.ErrorReply{Error: fmt.Sprintf("%v: %q", schema.ErrUnknownCommand, truncate(string(trimmed), 64))}
	}
	obj, ok := generic.(map[string]any)
	if !ok {
		return "", nil, &schema.ErrorReply{Error: fmt.Sprintf("%v: command must be a JSON object", schema.ErrInvalidRequest)}
	}
	name, _ := obj["command"].(string)
	if name == "" {
		return "", nil, &schema.ErrorReply{Error: fmt.Sprintf("%v: missing command", schema.ErrInvalidRequest)}
	}
	cmd, ok := schema.ParseCommand(name)
	if !ok {
		return "", nil, &schema.ErrorReply{Error: fmt.Sprintf("%v: %q", schema.ErrUnknownCommand, name), Command: schema.Command(name)}
	}
	return cmd, trimmed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// encode marshals reply and substitutes an error envelope when the result
// cannot be encoded or would not fit in one datagram.
func encode(cmd schema.Command, reply any) []byte {
	data, err := json.Marshal(reply)
	if err != nil {
		data, _ = json.Marshal(schema.ErrorReply{Error: fmt.Sprintf("encode reply: %v", err), Command: cmd})
		return data
	}
	if len(data) > schema.MaxDatagramSize {
		data, _ = json.Marshal(schema.ErrorReply{
			Error:   fmt.Sprintf("reply too large: %d bytes exceeds the %d byte datagram limit", len(data), schema.MaxDatagramSize),
			Command: cmd,
		})
	}
	return data
}

func (s *Server) input(ctx context.Context, payload []byte) any {
	var req schema.InputRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return schema.InputReply{Error: fmt.Sprintf("%v: %v", schema.ErrInvalidRequest, err)}
	}
	return s.injector.Run(ctx, req.Actions)
}

func (s *Server) uiElements(payload []byte) any {
	var req schema.UIElementsRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return schema.ErrorReply{Error: fmt.Sprintf("%v: %v", schema.ErrInvalidRequest, err), Command: schema.CommandUIElements}
	}
	opts := uitree.Options{VisibleOnly: true, TypeFilter: req.TypeFilter}
	if req.VisibleOnly != nil {
		opts.VisibleOnly = *req.VisibleOnly
	}
	var elements []schema.UIElement
	s.host.Tree().Do(func(root *scene.Node) {
		elements = uitree.Collect(root, opts)
	})
	return schema.UIElementsReply{Elements: elements, Count: len(elements)}
}

func (s *Server) runScript(ctx context.Context, payload []byte) any {
	var req schema.RunScriptRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return schema.ErrorReply{Error: fmt.Sprintf("%v: %v", schema.ErrInvalidRequest, err), Command: schema.CommandRunScript}
	}
	if req.Source == "" {
		return schema.ErrorReply{Error: fmt.Sprintf("%v: source is required", schema.ErrInvalidRequest), Command: schema.CommandRunScript}
	}
	name := "script.js"
	if path, err := s.writeAudit(req.Source); err != nil {
		if s.log != nil {
			s.log.Warn("script audit copy failed", "err", err)
		}
	} else {
		name = path
	}
	result, err := s.scripts.Run(ctx, s.host.Tree(), name, req.Source)
	if err != nil {
		return schema.ErrorReply{Error: err.Error(), Command: schema.CommandRunScript}
	}
	return schema.ScriptReply{Success: true, Result: result}
}
