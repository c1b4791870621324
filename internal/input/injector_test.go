package input

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"pkt.systems/gamebridge/scene"
	"pkt.systems/gamebridge/schema"
)

func newTree() *scene.Tree {
	tree := scene.NewTree()
	main := scene.NewNode("Control", "Main")
	play := main.AddChild(scene.NewNode("Button", "Play"))
	play.Position = scene.Vector2{X: 100, Y: 50}
	play.Size = scene.Vector2{X: 80, Y: 40}
	hidden := main.AddChild(scene.NewNode("Button", "Quit"))
	hidden.Visible = false
	tree.SetCurrentScene(main)
	return tree
}

func instant(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func run(t *testing.T, in *Injector, batch string) schema.InputReply {
	t.Helper()
	return in.Run(context.Background(), json.RawMessage(batch))
}

func TestRunKeyAndMouse(t *testing.T) {
	tree := newTree()
	in := New(tree, nil)
	reply := run(t, in, `[
		{"type":"key","key":"space"},
		{"type":"key","key":"a","pressed":false,"shift":true},
		{"type":"mouse_motion","x":5,"y":6,"relative_x":1},
		{"type":"mouse_button","button":"right","x":10,"y":20}
	]`)
	if !reply.Success || reply.Error != "" || reply.ActionsProcessed != 4 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	events := tree.InputLog()
	if len(events) != 5 {
		t.Fatalf("expected 5 events (mouse_button without pressed is a click), got %d", len(events))
	}
	key, ok := events[0].(scene.KeyEvent)
	if !ok || key.Keycode != scene.KeySpace || !key.Pressed {
		t.Fatalf("unexpected first event: %#v", events[0])
	}
	release, ok := events[1].(scene.KeyEvent)
	if !ok || release.Pressed || !release.Shift || release.Keycode != scene.Key('A') {
		t.Fatalf("unexpected key release: %#v", events[1])
	}
	press, ok := events[3].(scene.MouseButtonEvent)
	if !ok || press.Button != scene.MouseButtonRight || !press.Pressed {
		t.Fatalf("unexpected press: %#v", events[3])
	}
	if up := events[4].(scene.MouseButtonEvent); up.Pressed {
		t.Fatalf("expected release after press")
	}
	if got := tree.MousePosition(); got != (scene.Vector2{X: 10, Y: 20}) {
		t.Fatalf("unexpected mouse position %v", got)
	}
}

func TestRunActionDefaults(t *testing.T) {
	tree := newTree()
	in := New(tree, nil)
	reply := run(t, in, `[{"type":"action","action":"jump"}]`)
	if !reply.Success {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	state := tree.Action("jump")
	if !state.Pressed || state.Strength != 1 {
		t.Fatalf("expected pressed jump at full strength, got %+v", state)
	}
	run(t, in, `[{"type":"action","action":"jump","pressed":false}]`)
	if tree.Action("jump").Pressed {
		t.Fatalf("expected jump released")
	}
}

func TestRunClickElementTargetsCenter(t *testing.T) {
	tree := newTree()
	in := New(tree, nil)
	reply := run(t, in, `[{"type":"click_element","element":"Play"}]`)
	if !reply.Success || reply.ActionsProcessed != 1 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	events := tree.InputLog()
	if len(events) != 2 {
		t.Fatalf("expected press and release, got %d events", len(events))
	}
	press := events[0].(scene.MouseButtonEvent)
	if press.Position != (scene.Vector2{X: 140, Y: 70}) || press.Button != scene.MouseButtonLeft {
		t.Fatalf("unexpected click target %+v", press)
	}
}

func TestRunClickElementMissingOrHidden(t *testing.T) {
	tree := newTree()
	in := New(tree, nil)
	for _, element := range []string{"NonExistent", "Quit"} {
		reply := run(t, in, `[{"type":"click_element","element":"`+element+`"}]`)
		if reply.Success || reply.ActionsProcessed != 0 {
			t.Fatalf("expected failure for %s, got %+v", element, reply)
		}
		if !strings.Contains(reply.Error, element) {
			t.Fatalf("expected error naming %s, got %q", element, reply.Error)
		}
	}
	if !strings.Contains(run(t, in, `[{"type":"click_element","element":"NonExistent"}]`).Error, "not found") {
		t.Fatalf("expected not found wording")
	}
	if n := len(tree.InputLog()); n != 0 {
		t.Fatalf("expected no pointer events, got %d", n)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	tree := newTree()
	in := New(tree, nil)
	in.after = instant
	reply := run(t, in, `[{"type":"wait","ms":100},{"type":"key","key":"BOGUS_KEY"},{"type":"key","key":"a"}]`)
	if reply.Success {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(reply.Error, "BOGUS_KEY") {
		t.Fatalf("expected error naming key, got %q", reply.Error)
	}
	if reply.ActionsProcessed != 0 {
		t.Fatalf("expected 0 actions processed, got %d", reply.ActionsProcessed)
	}
	if n := len(tree.InputLog()); n != 0 {
		t.Fatalf("expected nothing after failure, got %d events", n)
	}

	reply = run(t, in, `[{"type":"key","key":"a"},{"type":"mouse_button","button":"fourth"}]`)
	if reply.ActionsProcessed != 1 || !strings.Contains(reply.Error, "fourth") {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestRunRejectsMalformedBatches(t *testing.T) {
	in := New(newTree(), nil)
	for _, batch := range []string{`[]`, `null`, `{"type":"key"}`, `"nope"`} {
		reply := run(t, in, batch)
		if reply.Error != schema.ErrEmptyBatch.Error() || reply.ActionsProcessed != 0 {
			t.Fatalf("batch %s: unexpected reply %+v", batch, reply)
		}
	}
	cases := map[string]string{
		`[{"type":"teleport"}]`:      "teleport",
		`[{}]`:                       "missing action type",
		`[42]`:                       "object",
		`[{"type":"wait"}]`:          "ms",
		`[{"type":"wait","ms":-5}]`:  "ms",
		`[{"type":"key","x":"abc"}]`: "malformed",
		`[{"type":"action"}]`:        "name",
	}
	for batch, want := range cases {
		reply := run(t, in, batch)
		if reply.Success || !strings.Contains(reply.Error, want) {
			t.Fatalf("batch %s: expected error containing %q, got %+v", batch, want, reply)
		}
	}
}

func TestRunSingleFlight(t *testing.T) {
	tree := newTree()
	in := New(tree, nil)
	release := make(chan time.Time)
	in.after = func(time.Duration) <-chan time.Time { return release }

	done := make(chan schema.InputReply, 1)
	go func() {
		done <- in.Run(context.Background(), json.RawMessage(`[{"type":"wait","ms":1000},{"type":"key","key":"a"}]`))
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !in.Busy() {
		if time.Now().After(deadline) {
			t.Fatalf("batch never started")
		}
		time.Sleep(time.Millisecond)
	}
	second := run(t, in, `[{"type":"key","key":"b"}]`)
	if second.Error != schema.ErrBatchInProgress.Error() {
		t.Fatalf("expected busy rejection, got %+v", second)
	}
	close(release)
	first := <-done
	if !first.Success || first.ActionsProcessed != 2 {
		t.Fatalf("unexpected first reply: %+v", first)
	}
	if in.Busy() {
		t.Fatalf("expected injector idle after batch")
	}
}

func TestRunWaitHonoursCancellation(t *testing.T) {
	in := New(newTree(), nil)
	in.after = func(time.Duration) <-chan time.Time { return nil }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reply := in.Run(ctx, json.RawMessage(`[{"type":"wait","ms":50}]`))
	if reply.Success || !strings.Contains(reply.Error, "canceled") {
		t.Fatalf("expected cancellation error, got %+v", reply)
	}
}

func TestRunHugeWaitDoesNotOverflow(t *testing.T) {
	in := New(newTree(), nil)
	var requested time.Duration
	in.after = func(d time.Duration) <-chan time.Time {
		requested = d
		return instant(d)
	}
	reply := run(t, in, `[{"type":"wait","ms":1e13}]`)
	if !reply.Success || reply.ActionsProcessed != 1 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if requested <= 0 {
		t.Fatalf("expected a positive clamped wait, got %s", requested)
	}
	if got := waitDuration(1500); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s", got)
	}
}
