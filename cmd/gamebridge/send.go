package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pkt.systems/gamebridge/bridge"
	"pkt.systems/gamebridge/internal/appconfig"
	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

type sendOptions struct {
	cfgPath string
	host    string
	port    int
	timeout time.Duration
}

func (o *sendOptions) client(cmd *cobra.Command) (*bridge.Client, error) {
	cfg, err := appconfig.Load(o.cfgPath)
	if err != nil {
		return nil, err
	}
	if o.host != "" {
		cfg.Bridge.Host = o.host
	}
	if o.port > 0 {
		cfg.Bridge.Port = o.port
	}
	timeout := cfg.Bridge.Timeout()
	if o.timeout > 0 {
		timeout = o.timeout
	}
	return bridge.New(bridge.Config{Host: cfg.Bridge.Host, Port: cfg.Bridge.Port, Timeout: timeout}, pslog.Ctx(cmd.Context()), nil), nil
}

func newSendCmd() *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one command to a running listener",
	}
	cmd.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.host, "host", "", "listener host (loopback only)")
	cmd.PersistentFlags().IntVar(&opts.port, "port", 0, "listener port")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "reply timeout")

	cmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check that the listener answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "pong")
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "screenshot",
		Short: "Capture the next frame and print the file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			path, err := client.Screenshot(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "input <actions-json|@file|->",
		Short: "Replay a batch of input actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readArg(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			actions, err := parseActions(data)
			if err != nil {
				return err
			}
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			reply, err := client.Input(cmd.Context(), actions)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reply)
		},
	})
	cmd.AddCommand(newSendUICmd(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "script <source-file|->",
		Short: "Run a script against the live scene; it must define run(root)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := args[0]
			if arg != "-" && !strings.HasPrefix(arg, "@") {
				arg = "@" + arg
			}
			source, err := readArg(arg, cmd.InOrStdin())
			if err != nil {
				return err
			}
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			result, err := client.RunScript(cmd.Context(), string(source))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "raw <command> [params-json]",
		Short: "Send an arbitrary command envelope and print the undecoded reply",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params any
			if len(args) == 2 {
				params = json.RawMessage(args[1])
			}
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			reply, err := client.Send(cmd.Context(), schema.Command(args[0]), params, 0)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(reply))
			return err
		},
	})
	return cmd
}

func newSendUICmd(opts *sendOptions) *cobra.Command {
	var all bool
	var typeFilter string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "List UI elements of the live scene",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			var visibleOnly *bool
			if all {
				v := false
				visibleOnly = &v
			}
			elements, err := client.UIElements(cmd.Context(), visibleOnly, typeFilter)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), schema.UIElementsReply{Elements: elements, Count: len(elements)})
			}
			renderElements(cmd.OutOrStdout(), elements)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include hidden elements")
	cmd.Flags().StringVar(&typeFilter, "type", "", "only elements of this class or a subclass")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func renderElements(out io.Writer, elements []schema.UIElement) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Name", "Type", "Path", "Rect", "Visible", "Text"})
	for _, el := range elements {
		text := ""
		if el.Text != nil {
			text = *el.Text
		}
		if el.Disabled != nil && *el.Disabled {
			text = strings.TrimSpace(text + " (disabled)")
		}
		rect := fmt.Sprintf("%g,%g %gx%g", el.Rect.X, el.Rect.Y, el.Rect.Width, el.Rect.Height)
		tw.AppendRow(table.Row{el.Name, el.Type, el.Path, rect, el.Visible, text})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "count", len(elements)})
	tw.Render()
}

// readArg returns arg itself, the contents of @file, or stdin for "-".
func readArg(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(strings.TrimPrefix(arg, "@"))
	default:
		return []byte(arg), nil
	}
}

// parseActions accepts a JSON array of actions or an object with an actions
// field.
func parseActions(data []byte) ([]any, error) {
	trimmed := strings.TrimSpace(string(data))
	var actions []any
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Actions []any `json:"actions"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
		}
		actions = wrapped.Actions
	} else if err := json.Unmarshal([]byte(trimmed), &actions); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	if len(actions) == 0 {
		return nil, schema.ErrEmptyBatch
	}
	return actions, nil
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
