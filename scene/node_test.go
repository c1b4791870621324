package scene

import (
	"errors"
	"testing"
)

func buildUI() (*Tree, *Node) {
	tree := NewTree()
	main := NewNode("Control", "Main")
	panel := main.AddChild(NewNode("Panel", "Panel"))
	panel.Position = Vector2{X: 10, Y: 20}
	button := panel.AddChild(NewNode("Button", "Start"))
	button.Position = Vector2{X: 5, Y: 5}
	button.Size = Vector2{X: 100, Y: 40}
	tree.SetCurrentScene(main)
	return tree, button
}

func TestNodePathAndGetNode(t *testing.T) {
	tree, button := buildUI()
	if got := button.Path(); got != "/root/Main/Panel/Start" {
		t.Fatalf("expected absolute path, got %q", got)
	}
	tree.Do(func(root *Node) {
		if root.GetNode("/root/Main/Panel/Start") != button {
			t.Fatalf("expected absolute lookup to find button")
		}
		if root.GetNode("Main/Panel/Start") != button {
			t.Fatalf("expected relative lookup to find button")
		}
		if button.GetNode("../..") != root.GetNode("Main") {
			t.Fatalf("expected parent traversal to reach Main")
		}
		if root.GetNode("/other/Main") != nil {
			t.Fatalf("expected foreign absolute path to miss")
		}
		if got := button.PathFrom(root); got != "Main/Panel/Start" {
			t.Fatalf("expected relative path, got %q", got)
		}
	})
}

func TestNodeUniqueChildNames(t *testing.T) {
	parent := NewNode("Control", "P")
	a := parent.AddChild(NewNode("Label", "Item"))
	b := parent.AddChild(NewNode("Label", "Item"))
	if a.Name != "Item" || b.Name != "Item2" {
		t.Fatalf("expected Item/Item2, got %q/%q", a.Name, b.Name)
	}
}

func TestNodeVisibilityIsInherited(t *testing.T) {
	_, button := buildUI()
	if !button.IsVisibleInTree() {
		t.Fatalf("expected button visible")
	}
	button.Parent().Visible = false
	if button.IsVisibleInTree() {
		t.Fatalf("expected hidden ancestor to hide button")
	}
	if !button.Visible {
		t.Fatalf("expected local visibility untouched")
	}
}

func TestNodeGlobalRect(t *testing.T) {
	_, button := buildUI()
	rect := button.GlobalRect()
	if rect.Position != (Vector2{X: 15, Y: 25}) {
		t.Fatalf("unexpected global position: %v", rect.Position)
	}
	if rect.Center() != (Vector2{X: 65, Y: 45}) {
		t.Fatalf("unexpected center: %v", rect.Center())
	}
}

func TestNodeClassHierarchy(t *testing.T) {
	if !IsClass("CheckBox", ClassBaseButton) {
		t.Fatalf("expected CheckBox to be a BaseButton")
	}
	if IsClass("Node2D", ClassControl) {
		t.Fatalf("did not expect Node2D to be a Control")
	}
	if !IsClass("MyCustomThing", ClassNode) || IsClass("MyCustomThing", ClassCanvasItem) {
		t.Fatalf("expected unknown classes to inherit Node only")
	}
	RegisterClass("HealthBar", "ProgressBar")
	if !IsClass("HealthBar", ClassControl) {
		t.Fatalf("expected registered class to inherit Control")
	}
}

func TestNodeGetSetProperties(t *testing.T) {
	n := NewNode("Label", "L")
	n.Set("text", "hello")
	n.Set("score", 3)
	n.Set("visible", "nope")
	if n.Get("text") != "hello" || n.Get("score") != 3 {
		t.Fatalf("unexpected properties: %v %v", n.Get("text"), n.Get("score"))
	}
	if !n.Visible {
		t.Fatalf("expected mistyped visible to be ignored")
	}
}

func TestAddChildRejectsCycles(t *testing.T) {
	tree, button := buildUI()
	tree.Do(func(root *Node) {
		main := root.GetNode("Main")
		for _, tc := range []struct {
			name          string
			parent, child *Node
		}{
			{"self", main, main},
			{"parent", main, root},
			{"ancestor", button, main},
		} {
			func() {
				defer func() {
					err, _ := recover().(error)
					if !errors.Is(err, ErrCycle) {
						t.Fatalf("%s: expected cycle panic, got %v", tc.name, err)
					}
				}()
				tc.parent.AddChild(tc.child)
			}()
		}
		if main.Parent() != root || root.Parent() != nil {
			t.Fatalf("expected graph unchanged after rejected adds")
		}
	})
	if got := button.Path(); got != "/root/Main/Panel/Start" {
		t.Fatalf("expected path intact, got %q", got)
	}
}
