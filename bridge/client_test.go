package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"pkt.systems/gamebridge/core"
	"pkt.systems/gamebridge/listener"
	"pkt.systems/gamebridge/scene"
	"pkt.systems/gamebridge/schema"
)

type testHost struct {
	tree *scene.Tree
}

func (h *testHost) Tree() *scene.Tree { return h.tree }

func (h *testHost) Capture() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func startListener(t *testing.T) (*Client, *scene.Tree) {
	t.Helper()
	tree := scene.NewTree()
	main := scene.NewNode("Control", "Main")
	play := main.AddChild(scene.NewNode("Button", "Play"))
	play.Size = scene.Vector2{X: 20, Y: 10}
	tree.SetCurrentScene(main)

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := listener.New(&testHost{tree: tree}, listener.Config{OutputDir: t.TempDir(), Ready: io.Discard}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, conn)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	port := conn.LocalAddr().(*net.UDPAddr).Port
	return New(Config{Host: "127.0.0.1", Port: port, Timeout: 2 * time.Second}, nil, nil), tree
}

// fakeListener answers every datagram with reply, or never answers when reply is nil.
func fakeListener(t *testing.T, reply []byte) *Client {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	go func() {
		buf := make([]byte, 1024)
		for {
			_, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			if reply != nil {
				_, _ = conn.WriteTo(reply, addr)
			}
		}
	}()
	port := conn.LocalAddr().(*net.UDPAddr).Port
	return New(Config{Host: "127.0.0.1", Port: port, Timeout: 150 * time.Millisecond}, nil, nil)
}

func TestEnvelope(t *testing.T) {
	data, err := Envelope(schema.CommandUIElements, schema.UIElementsRequest{TypeFilter: "Button"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["command"] != "get_ui_elements" || got["type_filter"] != "Button" {
		t.Fatalf("unexpected envelope %s", data)
	}
	if _, err := Envelope("dance", nil); !errors.Is(err, schema.ErrUnknownCommand) {
		t.Fatalf("expected unknown command, got %v", err)
	}
	if _, err := Envelope(schema.CommandPing, []int{1}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected invalid params, got %v", err)
	}
}

func TestClientAgainstListener(t *testing.T) {
	client, tree := startListener(t)
	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	elements, err := client.UIElements(ctx, nil, "")
	if err != nil || len(elements) != 2 {
		t.Fatalf("expected Main and Play, got %v, %v", elements, err)
	}
	reply, err := client.Input(ctx, []schema.Action{{Type: schema.InputClickElement, Element: "Play"}})
	if err != nil || reply.ActionsProcessed != 1 {
		t.Fatalf("unexpected input reply %+v, %v", reply, err)
	}
	if n := len(tree.InputLog()); n != 2 {
		t.Fatalf("expected press and release, got %d events", n)
	}
	result, err := client.RunScript(ctx, `function run(root) { return 6 * 7; }`)
	if err != nil || result != float64(42) {
		t.Fatalf("unexpected script result %#v, %v", result, err)
	}
}

func TestClientSurfacesRemoteErrors(t *testing.T) {
	client, _ := startListener(t)
	ctx := context.Background()
	reply, err := client.Input(ctx, json.RawMessage(`[{"type":"key","key":"a"},{"type":"key","key":"BOGUS_KEY"}]`))
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if reply.ActionsProcessed != 1 || remote.ActionsProcessed == nil || *remote.ActionsProcessed != 1 {
		t.Fatalf("expected partial progress 1, got %+v / %+v", reply, remote)
	}
	if !strings.Contains(remote.Error(), "BOGUS_KEY") {
		t.Fatalf("expected key in error, got %q", remote.Error())
	}
	_, err = client.RunScript(ctx, `var x = 1;`)
	if !errors.As(err, &remote) || !strings.Contains(remote.Message, "must define") {
		t.Fatalf("expected missing entry point, got %v", err)
	}
}

func TestClientTimeoutNamesCommandAndElapsed(t *testing.T) {
	client := fakeListener(t, nil)
	err := client.Ping(context.Background())
	var bridgeErr *core.BridgeError
	if !errors.As(err, &bridgeErr) || bridgeErr.Kind != core.BridgeErrorTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if bridgeErr.Command != schema.CommandPing || bridgeErr.Elapsed < 100*time.Millisecond {
		t.Fatalf("expected command and elapsed, got %+v", bridgeErr)
	}
	if msg := err.Error(); !strings.Contains(msg, "ping") || !strings.Contains(msg, "after") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestClientMalformedReply(t *testing.T) {
	client := fakeListener(t, []byte("pong"))
	_, err := client.Send(context.Background(), schema.CommandPing, nil, 0)
	var bridgeErr *core.BridgeError
	if !errors.As(err, &bridgeErr) || bridgeErr.Kind != core.BridgeErrorMalformed {
		t.Fatalf("expected malformed reply error, got %v", err)
	}
}

func TestClientSerializesCalls(t *testing.T) {
	client, _ := startListener(t)
	ctx := context.Background()
	errs := make(chan error, 8)
	for i := 0; i < cap(errs); i++ {
		go func() { errs <- client.Ping(ctx) }()
	}
	for i := 0; i < cap(errs); i++ {
		if err := <-errs; err != nil {
			t.Fatalf("ping %d: %v", i, err)
		}
	}
}
