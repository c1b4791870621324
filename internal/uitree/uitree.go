// Package uitree builds flat inventories of the live UI and resolves element
// identifiers back to nodes.
package uitree

import (
	"strings"

	"pkt.systems/gamebridge/scene"
	"pkt.systems/gamebridge/schema"
)

// Options filters Collect output.
type Options struct {
	VisibleOnly bool
	TypeFilter  string
}

var textClasses = []string{"Label", "Button", "LinkButton", "LineEdit", "TextEdit", "RichTextLabel"}

var placeholderClasses = []string{"LineEdit", "TextEdit"}

// Collect walks root depth-first and returns a record for every Control that
// passes the filters. The type filter only decides membership; descendants of
// a filtered-out node are still visited. Callers must hold the tree.
func Collect(root *scene.Node, opts Options) []schema.UIElement {
	elements := []schema.UIElement{}
	if root == nil {
		return elements
	}
	filter := strings.TrimSpace(opts.TypeFilter)
	root.Walk(func(n *scene.Node) bool {
		if !n.IsClass(scene.ClassControl) {
			return true
		}
		visible := n.IsVisibleInTree()
		if opts.VisibleOnly && !visible {
			return true
		}
		if filter != "" && !n.IsClass(filter) {
			return true
		}
		elements = append(elements, Record(n))
		return true
	})
	return elements
}

// Record snapshots a single node.
func Record(n *scene.Node) schema.UIElement {
	rect := n.GlobalRect()
	el := schema.UIElement{
		Name: n.Name,
		Type: n.Class,
		Path: n.Path(),
		Rect: schema.Rect{
			X:      rect.Position.X,
			Y:      rect.Position.Y,
			Width:  rect.Size.X,
			Height: rect.Size.Y,
		},
		Visible: n.IsVisibleInTree(),
		Tooltip: n.Tooltip,
	}
	if isAny(n, textClasses) {
		text := n.Text
		el.Text = &text
	}
	if isAny(n, placeholderClasses) {
		placeholder := n.Placeholder
		el.Placeholder = &placeholder
	}
	if n.IsClass(scene.ClassBaseButton) {
		disabled := n.Disabled
		el.Disabled = &disabled
	}
	return el
}

func isAny(n *scene.Node, classes []string) bool {
	for _, class := range classes {
		if n.IsClass(class) {
			return true
		}
	}
	return false
}

// Resolve finds an element by identifier. It tries, in order, an absolute
// path, a path relative to root and a breadth-first search for an exact name.
// Callers must hold the tree.
func Resolve(root *scene.Node, id string) *scene.Node {
	id = strings.TrimSpace(id)
	if root == nil || id == "" {
		return nil
	}
	if strings.HasPrefix(id, "/") {
		if n := root.GetNode(id); n != nil {
			return n
		}
	} else if n := root.GetNode(id); n != nil {
		return n
	}
	queue := []*scene.Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.Name == id {
			return n
		}
		queue = append(queue, n.Children()...)
	}
	return nil
}
