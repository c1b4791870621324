package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/gamebridge/scene"
	"pkt.systems/gamebridge/schema"
)

type fakeHost struct {
	tree    *scene.Tree
	capture func() (image.Image, error)
}

func (h *fakeHost) Tree() *scene.Tree { return h.tree }

func (h *fakeHost) Capture() (image.Image, error) {
	if h.capture != nil {
		return h.capture()
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	addr   net.Addr
	host   *fakeHost
	ready  *syncBuffer
	outDir string
}

func start(t *testing.T, host *fakeHost) *harness {
	t.Helper()
	if host == nil {
		host = &fakeHost{}
	}
	if host.tree == nil {
		host.tree = scene.NewTree()
		main := scene.NewNode("Node", "Main")
		hidden := main.AddChild(scene.NewNode("Button", "Hidden"))
		hidden.Visible = false
		label := main.AddChild(scene.NewNode("Label", "Shown"))
		label.Text = "hello"
		label.Size = scene.Vector2{X: 40, Y: 10}
		host.tree.SetCurrentScene(main)
	}
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ready := &syncBuffer{}
	outDir := t.TempDir()
	srv := New(host, Config{OutputDir: outDir, ScriptTimeout: time.Second, FrameTimeout: time.Second, Ready: ready}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, conn)
	}()
	frames := time.NewTicker(5 * time.Millisecond)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-frames.C:
				host.tree.Step()
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		frames.Stop()
		<-done
	})
	return &harness{addr: conn.LocalAddr(), host: host, ready: ready, outDir: outDir}
}

func (h *harness) sendRaw(t *testing.T, payload string) map[string]any {
	t.Helper()
	reply, err := exchange(h.addr, payload)
	if err != nil {
		t.Fatalf("exchange %s: %v", payload, err)
	}
	return reply
}

func exchange(addr net.Addr, payload string) (map[string]any, error) {
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(payload)); err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 70000)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	var reply map[string]any
	if err := json.Unmarshal(buf[:n], &reply); err != nil {
		return nil, fmt.Errorf("decode reply %q: %w", buf[:n], err)
	}
	return reply, nil
}

func (h *harness) send(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return h.sendRaw(t, string(data))
}

func TestServeWritesReadyMarker(t *testing.T) {
	h := start(t, nil)
	h.sendRaw(t, `{"command":"ping"}`)
	if !strings.HasPrefix(h.ready.String(), schema.ListenerReadyMarker) {
		t.Fatalf("expected ready marker, got %q", h.ready.String())
	}
}

func TestPingJSONAndLegacy(t *testing.T) {
	h := start(t, nil)
	for _, payload := range []string{`{"command":"ping"}`, "ping", "  PING\n"} {
		if got := h.sendRaw(t, payload); got["status"] != "pong" {
			t.Fatalf("%q: expected pong, got %v", payload, got)
		}
	}
}

func TestRejectsBadEnvelopes(t *testing.T) {
	h := start(t, nil)
	cases := map[string]string{
		`{"command":"dance"}`: "unknown command",
		`[1,2]`:               "JSON object",
		`"ping"`:              "JSON object",
		`{"foo":1}`:           "missing command",
		`hello there`:         "unknown command",
	}
	for payload, want := range cases {
		got := h.sendRaw(t, payload)
		msg, _ := got["error"].(string)
		if !strings.Contains(msg, want) {
			t.Fatalf("%s: expected error containing %q, got %v", payload, want, got)
		}
	}
}

func TestUIElementsDefaultsToVisibleOnly(t *testing.T) {
	h := start(t, nil)
	got := h.send(t, map[string]any{"command": "get_ui_elements"})
	elements, _ := got["elements"].([]any)
	if len(elements) != 1 || got["count"] != float64(1) {
		t.Fatalf("expected one visible element, got %v", got)
	}
	el := elements[0].(map[string]any)
	if el["name"] != "Shown" || el["text"] != "hello" || el["path"] != "/root/Main/Shown" {
		t.Fatalf("unexpected element %v", el)
	}
	rect := el["rect"].(map[string]any)
	if rect["width"] != float64(40) {
		t.Fatalf("unexpected rect %v", rect)
	}
	all := h.send(t, map[string]any{"command": "get_ui_elements", "visible_only": false, "type_filter": "BaseButton"})
	if all["count"] != float64(1) {
		t.Fatalf("expected hidden button with filter, got %v", all)
	}
}

func TestInputBatchReplies(t *testing.T) {
	h := start(t, nil)
	got := h.send(t, map[string]any{"command": "input", "actions": []any{
		map[string]any{"type": "key", "key": "enter"},
		map[string]any{"type": "mouse_motion", "x": 3, "y": 4},
	}})
	if got["success"] != true || got["actions_processed"] != float64(2) {
		t.Fatalf("unexpected reply %v", got)
	}
	got = h.send(t, map[string]any{"command": "input", "actions": []any{
		map[string]any{"type": "wait", "ms": 10},
		map[string]any{"type": "key", "key": "BOGUS_KEY"},
	}})
	if msg, _ := got["error"].(string); !strings.Contains(msg, "BOGUS_KEY") || got["actions_processed"] != float64(0) {
		t.Fatalf("unexpected reply %v", got)
	}
	got = h.send(t, map[string]any{"command": "input", "actions": []any{}})
	if got["error"] != schema.ErrEmptyBatch.Error() {
		t.Fatalf("expected empty batch error, got %v", got)
	}
}

func TestInputWaitDoesNotBlockOtherCommands(t *testing.T) {
	h := start(t, nil)
	slow := make(chan map[string]any, 1)
	go func() {
		reply, _ := exchange(h.addr, `{"command":"input","actions":[{"type":"wait","ms":400}]}`)
		slow <- reply
	}()
	time.Sleep(100 * time.Millisecond)
	started := time.Now()
	if got := h.sendRaw(t, "ping"); got["status"] != "pong" {
		t.Fatalf("expected pong during wait, got %v", got)
	}
	if time.Since(started) > 300*time.Millisecond {
		t.Fatalf("ping was blocked by the waiting batch")
	}
	busy := h.send(t, map[string]any{"command": "input", "actions": []any{
		map[string]any{"type": "key", "key": "a"},
	}})
	if busy["error"] != schema.ErrBatchInProgress.Error() {
		t.Fatalf("expected busy error, got %v", busy)
	}
	if first := <-slow; first["success"] != true {
		t.Fatalf("expected first batch to finish, got %v", first)
	}
}

func TestRunScript(t *testing.T) {
	h := start(t, nil)
	got := h.send(t, map[string]any{"command": "run_script", "source": `function run(root) { return root.getNode("Main/Shown").text + "!"; }`})
	if got["success"] != true || got["result"] != "hello!" {
		t.Fatalf("unexpected reply %v", got)
	}
	audits, err := filepath.Glob(filepath.Join(h.outDir, "scripts", "*.js"))
	if err != nil || len(audits) != 1 {
		t.Fatalf("expected one audit copy, got %v (%v)", audits, err)
	}

	got = h.send(t, map[string]any{"command": "run_script", "source": `function main(root) { root.getNode("Main/Shown").text = "x"; }`})
	if msg, _ := got["error"].(string); !strings.Contains(msg, "must define") {
		t.Fatalf("expected missing entry point error, got %v", got)
	}
	h.host.tree.Do(func(root *scene.Node) {
		if root.GetNode("Main/Shown").Text != "hello" {
			t.Fatalf("expected tree unmodified")
		}
	})

	got = h.send(t, map[string]any{"command": "run_script", "source": `function run(root) {`})
	if msg, _ := got["error"].(string); !strings.Contains(msg, "[parse_error]") {
		t.Fatalf("expected compile error code, got %v", got)
	}
}

func TestReplyTooLarge(t *testing.T) {
	h := start(t, nil)
	got := h.send(t, map[string]any{"command": "run_script", "source": `function run(root) { return "x".repeat(70000); }`})
	if msg, _ := got["error"].(string); !strings.Contains(msg, "too large") {
		t.Fatalf("expected size guard, got %v", got)
	}
}

func TestScreenshotWritesPNG(t *testing.T) {
	h := start(t, nil)
	got := h.send(t, map[string]any{"command": "screenshot"})
	path, _ := got["path"].(string)
	if path == "" {
		t.Fatalf("expected path, got %v", got)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open screenshot: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	if legacy := h.sendRaw(t, "screenshot"); legacy["path"] == "" || legacy["path"] == nil {
		t.Fatalf("expected legacy screenshot path, got %v", legacy)
	}
}

func TestScreenshotPanicIsContained(t *testing.T) {
	h := start(t, &fakeHost{capture: func() (image.Image, error) { panic("renderer exploded") }})
	got := h.send(t, map[string]any{"command": "screenshot"})
	if msg, _ := got["error"].(string); !strings.Contains(msg, "internal error") {
		t.Fatalf("expected internal error, got %v", got)
	}
	if ping := h.sendRaw(t, "ping"); ping["status"] != "pong" {
		t.Fatalf("expected listener alive after panic, got %v", ping)
	}
}
