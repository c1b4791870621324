package script

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pkt.systems/gamebridge/scene"
)

func newTree() *scene.Tree {
	tree := scene.NewTree()
	main := scene.NewNode("Control", "Main")
	label := main.AddChild(scene.NewNode("Label", "Label"))
	label.Text = "before"
	tree.SetCurrentScene(main)
	return tree
}

func TestRunReturnsSerializedValue(t *testing.T) {
	tree := newTree()
	var runner Runner
	got, err := runner.Run(context.Background(), tree, "t.js", `
function run(root) {
	var label = root.getNode("Main/Label");
	return {count: root.childCount(), text: label.text, pos: label.position, node: label, list: [1, "two", null]};
}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", got)
	}
	if m["count"] != int64(1) || m["text"] != "before" {
		t.Fatalf("unexpected result %#v", m)
	}
	node, ok := m["node"].(map[string]any)
	if !ok || node["path"] != "/root/Main/Label" || node["class"] != "Label" {
		t.Fatalf("expected node snapshot, got %#v", m["node"])
	}
	pos, ok := m["pos"].(map[string]any)
	if !ok || pos["x"] != float64(0) {
		t.Fatalf("expected vector map, got %#v", m["pos"])
	}
	list, ok := m["list"].([]any)
	if !ok || len(list) != 3 || list[1] != "two" || list[2] != nil {
		t.Fatalf("unexpected list %#v", m["list"])
	}
}

func TestRunMutatesLiveTree(t *testing.T) {
	tree := newTree()
	var runner Runner
	_, err := runner.Run(context.Background(), tree, "t.js", `
function run(root) {
	root.getNode("Main/Label").text = "after";
	root.getNode("Main").addChild(newNode("Button", "Added"));
}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	tree.Do(func(root *scene.Node) {
		if got := root.GetNode("Main/Label").Text; got != "after" {
			t.Fatalf("expected mutated text, got %q", got)
		}
		if root.GetNode("Main/Added") == nil {
			t.Fatalf("expected added node")
		}
	})
}

func TestRunUndefinedResultIsNil(t *testing.T) {
	var runner Runner
	got, err := runner.Run(context.Background(), newTree(), "t.js", `function run(root) {}`)
	if err != nil || got != nil {
		t.Fatalf("expected nil result, got %#v, %v", got, err)
	}
}

func TestRunCompileError(t *testing.T) {
	var runner Runner
	_, err := runner.Run(context.Background(), newTree(), "t.js", `function run(root) { return ( }`)
	var compileErr *CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected compile error, got %v", err)
	}
	if compileErr.Code != "parse_error" || !strings.Contains(err.Error(), "[parse_error]") {
		t.Fatalf("unexpected compile error %v", err)
	}
}

func TestRunMissingEntryPointLeavesTreeAlone(t *testing.T) {
	tree := newTree()
	var runner Runner
	_, err := runner.Run(context.Background(), tree, "t.js", `var x = 1; function main(root) { root.name = "gone"; }`)
	if !errors.Is(err, ErrMissingEntryPoint) {
		t.Fatalf("expected missing entry point, got %v", err)
	}
	if !strings.Contains(err.Error(), "must define") {
		t.Fatalf("expected 'must define' wording, got %q", err.Error())
	}
	tree.Do(func(root *scene.Node) {
		if root.Name != "root" || root.GetNode("Main/Label").Text != "before" {
			t.Fatalf("expected tree untouched")
		}
	})
}

func TestRunRuntimeError(t *testing.T) {
	var runner Runner
	_, err := runner.Run(context.Background(), newTree(), "t.js", `function run(root) { throw new Error("boom"); }`)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected runtime error, got %v", err)
	}
}

func TestRunWatchdogInterrupts(t *testing.T) {
	tree := newTree()
	runner := Runner{Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := runner.Run(context.Background(), tree, "t.js", `function run(root) { for (;;) {} }`)
	if err == nil || !strings.HasPrefix(err.Error(), "script interrupted") {
		t.Fatalf("expected interruption, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("watchdog too slow")
	}
	tree.Do(func(*scene.Node) {})
}

func TestRunRejectsAncestorAsChild(t *testing.T) {
	tree := newTree()
	var runner Runner
	_, err := runner.Run(context.Background(), tree, "t.js", `function run(root) { root.getNode("Main").addChild(root); }`)
	if !errors.Is(err, scene.ErrCycle) && (err == nil || !strings.Contains(err.Error(), "node cycle")) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	tree.Do(func(root *scene.Node) {
		if root.Parent() != nil || root.GetNode("Main/Label").Path() != "/root/Main/Label" {
			t.Fatalf("expected tree unchanged")
		}
	})
}

func TestRunNonFiniteResultStaysEncodable(t *testing.T) {
	var runner Runner
	got, err := runner.Run(context.Background(), newTree(), "t.js", `function run(root) { return [1/0, -1/0, 0/0, 1.5]; }`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	list, ok := got.([]any)
	if !ok || len(list) != 4 || list[0] != "inf" || list[1] != "-inf" || list[2] != "nan" {
		t.Fatalf("unexpected result %#v", got)
	}
}
