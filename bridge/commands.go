package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"pkt.systems/gamebridge/core"
	"pkt.systems/gamebridge/schema"
)

// RemoteError is an error envelope returned by the listener.
type RemoteError struct {
	Command          schema.Command
	Message          string
	ActionsProcessed *int
}

func (e *RemoteError) Error() string {
	if e.ActionsProcessed != nil {
		return fmt.Sprintf("%s: %s (actions processed: %d)", e.Command, e.Message, *e.ActionsProcessed)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

type errorProbe struct {
	Error            string `json:"error"`
	ActionsProcessed *int   `json:"actions_processed"`
}

// RemoteErrorOf returns the error carried by reply, or nil.
func RemoteErrorOf(cmd schema.Command, reply json.RawMessage) *RemoteError {
	var probe errorProbe
	if err := json.Unmarshal(reply, &probe); err != nil || probe.Error == "" {
		return nil
	}
	return &RemoteError{Command: cmd, Message: probe.Error, ActionsProcessed: probe.ActionsProcessed}
}

func call[T any](ctx context.Context, c *Client, cmd schema.Command, params any) (T, error) {
	var out T
	reply, err := c.Send(ctx, cmd, params, 0)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(reply, &out); err != nil {
		return out, &core.BridgeError{Kind: core.BridgeErrorMalformed, Op: "decode", Command: cmd, Err: err}
	}
	if remote := RemoteErrorOf(cmd, reply); remote != nil {
		return out, remote
	}
	return out, nil
}

// Ping checks that the listener answers.
func (c *Client) Ping(ctx context.Context) error {
	reply, err := call[schema.PongReply](ctx, c, schema.CommandPing, nil)
	if err != nil {
		return err
	}
	if reply.Status != "pong" {
		return &core.BridgeError{Kind: core.BridgeErrorMalformed, Op: "decode", Command: schema.CommandPing, Err: fmt.Errorf("unexpected status %q", reply.Status)}
	}
	return nil
}

// Screenshot captures the next frame and returns the file path.
func (c *Client) Screenshot(ctx context.Context) (string, error) {
	reply, err := call[schema.ScreenshotReply](ctx, c, schema.CommandScreenshot, nil)
	if err != nil {
		return "", err
	}
	return reply.Path, nil
}

// Input replays an action batch. actions is anything that encodes to a JSON
// array, typically []schema.Action or json.RawMessage. On a partial failure
// both the reply and a *RemoteError are returned.
func (c *Client) Input(ctx context.Context, actions any) (schema.InputReply, error) {
	raw, err := json.Marshal(actions)
	if err != nil {
		return schema.InputReply{}, &core.BridgeError{Kind: core.BridgeErrorConfig, Op: "encode", Command: schema.CommandInput, Err: err}
	}
	return call[schema.InputReply](ctx, c, schema.CommandInput, schema.InputRequest{Actions: raw})
}

// UIElements lists UI element records. visibleOnly nil keeps the listener default.
func (c *Client) UIElements(ctx context.Context, visibleOnly *bool, typeFilter string) ([]schema.UIElement, error) {
	reply, err := call[schema.UIElementsReply](ctx, c, schema.CommandUIElements, schema.UIElementsRequest{VisibleOnly: visibleOnly, TypeFilter: typeFilter})
	if err != nil {
		return nil, err
	}
	if reply.Elements == nil {
		reply.Elements = []schema.UIElement{}
	}
	return reply.Elements, nil
}

// RunScript executes source and returns the serialized result.
func (c *Client) RunScript(ctx context.Context, source string) (any, error) {
	reply, err := call[schema.ScriptReply](ctx, c, schema.CommandRunScript, schema.RunScriptRequest{Source: source})
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}
