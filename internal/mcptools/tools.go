// Package mcptools exposes the session manager and the bridge client as MCP
// tools over stdio.
package mcptools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"pkt.systems/gamebridge/bridge"
	"pkt.systems/gamebridge/core"
	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

// maxInlineImage caps screenshots embedded in a tool result.
const maxInlineImage = 4 << 20

// Session is the lifecycle surface the tools drive.
type Session interface {
	Start(ctx context.Context, req schema.StartRequest) (schema.StartResponse, error)
	Stop(ctx context.Context) (schema.StopResponse, error)
	Status() schema.SessionStatus
	Output(tail int) (schema.OutputSnapshot, error)
	WaitReady(ctx context.Context) (string, error)
	Headless(ctx context.Context, root, operation string, params json.RawMessage) (json.RawMessage, error)
}

// Bridge is the command surface of the running target.
type Bridge interface {
	Ping(ctx context.Context) error
	Screenshot(ctx context.Context) (string, error)
	Input(ctx context.Context, actions any) (schema.InputReply, error)
	UIElements(ctx context.Context, visibleOnly *bool, typeFilter string) ([]schema.UIElement, error)
	RunScript(ctx context.Context, source string) (any, error)
}

// Tools holds the tool handlers.
type Tools struct {
	session Session
	bridge  Bridge
	log     pslog.Logger
}

// New constructs the tool set.
func New(session Session, br Bridge, logger pslog.Logger) *Tools {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Tools{session: session, bridge: br, log: logger.With("component", "mcp")}
}

// NewServer builds an MCP server with every tool registered.
func NewServer(t *Tools, name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
	)
	t.Register(s)
	return s
}

// Serve runs s on the given stdio streams until ctx is done or in closes.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger pslog.Logger) error {
	stdio := server.NewStdioServer(s)
	if logger != nil {
		stdio.SetErrorLogger(pslog.LogLogger(logger))
	}
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Register adds the tools to s.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("run_project",
		mcp.WithDescription("Launch the project in debug mode with the bridge listener injected. Any running project is stopped first."),
		mcp.WithString("project_path", mcp.Required(), mcp.Description("Project root directory containing the project file")),
		mcp.WithString("scene", mcp.Description("Optional project-relative scene to run instead of the main scene")),
	), t.runProject)
	s.AddTool(mcp.NewTool("stop_project",
		mcp.WithDescription("Stop the running project, return its captured output and remove the listener registration."),
	), t.stopProject)
	s.AddTool(mcp.NewTool("session_status",
		mcp.WithDescription("Report the session state, pid, exit code and listener readiness."),
	), t.sessionStatus)
	s.AddTool(mcp.NewTool("get_debug_output",
		mcp.WithDescription("Return captured stdout and stderr of the current or last exited project."),
		mcp.WithNumber("tail", mcp.Description("Return at most this many trailing lines per stream; 0 returns everything retained")),
	), t.debugOutput)
	s.AddTool(mcp.NewTool("game_ping",
		mcp.WithDescription("Check that the running project's listener answers."),
	), t.ping)
	s.AddTool(mcp.NewTool("game_screenshot",
		mcp.WithDescription("Capture the next rendered frame to a PNG inside the project and return its path."),
	), t.screenshot)
	s.AddTool(mcp.NewTool("game_input",
		mcp.WithDescription("Replay an ordered batch of input actions: key, mouse_button, mouse_motion, click_element, action, wait."),
		mcp.WithArray("actions", mcp.Required(),
			mcp.Description("Actions executed in order; the batch stops at the first failure"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	), t.input)
	s.AddTool(mcp.NewTool("game_ui_elements",
		mcp.WithDescription("List UI elements of the live scene with their names, types, paths and rects."),
		mcp.WithBoolean("visible_only", mcp.Description("Only effectively visible elements (default true)")),
		mcp.WithString("type_filter", mcp.Description("Only elements of this class or a subclass")),
	), t.uiElements)
	s.AddTool(mcp.NewTool("game_run_script",
		mcp.WithDescription("Run a script against the live scene. The source must define function run(root); its return value is serialized."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Script source")),
	), t.runScript)
	s.AddTool(mcp.NewTool("headless_operation",
		mcp.WithDescription("Run a headless engine operation against a project and return its JSON result."),
		mcp.WithString("project_path", mcp.Required(), mcp.Description("Project root directory")),
		mcp.WithString("operation", mcp.Required(), mcp.Description("Operation name")),
		mcp.WithObject("params", mcp.Description("Operation parameters")),
	), t.headless)
}

func (t *Tools) runProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := req.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := t.session.Start(ctx, schema.StartRequest{ProjectRoot: root, Scene: req.GetString("scene", "")})
	if err != nil {
		return t.fail("run_project", err), nil
	}
	return jsonResult(resp)
}

func (t *Tools) stopProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := t.session.Stop(ctx)
	if err != nil {
		return t.fail("stop_project", err), nil
	}
	return jsonResult(resp)
}

func (t *Tools) sessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.session.Status())
}

func (t *Tools) debugOutput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tail := req.GetInt("tail", 0)
	if tail < 0 {
		return mcp.NewToolResultError("tail must not be negative"), nil
	}
	out, err := t.session.Output(tail)
	if err != nil {
		return t.fail("get_debug_output", err), nil
	}
	return jsonResult(out)
}

func (t *Tools) ping(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.ready(ctx); err != nil {
		return t.fail("game_ping", err), nil
	}
	if err := t.bridge.Ping(ctx); err != nil {
		return t.fail("game_ping", err), nil
	}
	return mcp.NewToolResultText("pong"), nil
}

func (t *Tools) screenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.ready(ctx); err != nil {
		return t.fail("game_screenshot", err), nil
	}
	path, err := t.bridge.Screenshot(ctx)
	if err != nil {
		return t.fail("game_screenshot", err), nil
	}
	result := &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(path)}}
	if info, err := os.Stat(path); err == nil && info.Size() <= maxInlineImage {
		if data, err := os.ReadFile(path); err == nil {
			result.Content = append(result.Content, mcp.NewImageContent(base64.StdEncoding.EncodeToString(data), "image/png"))
		}
	}
	return result, nil
}

func (t *Tools) input(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actions, ok := req.GetArguments()["actions"].([]any)
	if !ok || len(actions) == 0 {
		return mcp.NewToolResultError(schema.ErrEmptyBatch.Error()), nil
	}
	if err := t.ready(ctx); err != nil {
		return t.fail("game_input", err), nil
	}
	reply, err := t.bridge.Input(ctx, actions)
	if err != nil {
		return t.fail("game_input", err), nil
	}
	return jsonResult(reply)
}

func (t *Tools) uiElements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var visibleOnly *bool
	if _, set := req.GetArguments()["visible_only"]; set {
		value := req.GetBool("visible_only", true)
		visibleOnly = &value
	}
	if err := t.ready(ctx); err != nil {
		return t.fail("game_ui_elements", err), nil
	}
	elements, err := t.bridge.UIElements(ctx, visibleOnly, req.GetString("type_filter", ""))
	if err != nil {
		return t.fail("game_ui_elements", err), nil
	}
	return jsonResult(schema.UIElementsReply{Elements: elements, Count: len(elements)})
}

func (t *Tools) runScript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.ready(ctx); err != nil {
		return t.fail("game_run_script", err), nil
	}
	result, err := t.bridge.RunScript(ctx, source)
	if err != nil {
		return t.fail("game_run_script", err), nil
	}
	return jsonResult(schema.ScriptReply{Success: true, Result: result})
}

func (t *Tools) headless(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := req.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	operation, err := req.RequireString("operation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var params json.RawMessage
	if raw, ok := req.GetArguments()["params"]; ok && raw != nil {
		if params, err = json.Marshal(raw); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("params: %v", err)), nil
		}
	}
	value, err := t.session.Headless(ctx, root, operation, params)
	if err != nil {
		return t.fail("headless_operation", err), nil
	}
	return mcp.NewToolResultText(string(value)), nil
}

// ready holds bridge calls until the target's listener has announced itself.
func (t *Tools) ready(ctx context.Context) error {
	_, err := t.session.WaitReady(ctx)
	return err
}

// fail turns err into a tool error result, adding partial progress and a
// remediation hint when known.
func (t *Tools) fail(tool string, err error) *mcp.CallToolResult {
	msg := err.Error()
	var berr *core.BridgeError
	if errors.As(err, &berr) {
		if hint := berr.Hint(); hint != "" {
			msg += "\nhint: " + hint
		}
	}
	var remote *bridge.RemoteError
	if errors.As(err, &remote) && remote.ActionsProcessed != nil && !strings.Contains(msg, "actions processed") {
		msg += fmt.Sprintf(" (actions processed: %d)", *remote.ActionsProcessed)
	}
	t.log.Warn("tool failed", "tool", tool, "err", err)
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
