package scene

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrCycle is the panic value AddChild raises when the child is the node
// itself or one of its ancestors.
var ErrCycle = errors.New("node cycle")

// Node is one element of the live object graph. Nodes are not safe for
// concurrent use; callers go through Tree.Do while holding nodes.
type Node struct {
	Name        string
	Class       string
	Visible     bool
	Position    Vector2
	Size        Vector2
	Text        string
	Placeholder string
	Tooltip     string
	Disabled    bool
	Props       map[string]any

	parent   *Node
	children []*Node
}

// NewNode constructs a visible node of the given class.
func NewNode(class, name string) *Node {
	if class == "" {
		class = ClassNode
	}
	return &Node{
		Name:    name,
		Class:   class,
		Visible: true,
		Props:   map[string]any{},
	}
}

// Parent returns the parent node or nil.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int {
	return len(n.children)
}

// AddChild attaches child, detaching it from any previous parent. A sibling
// name collision is resolved by appending a counter. Adding the node itself
// or one of its ancestors panics with ErrCycle.
func (n *Node) AddChild(child *Node) *Node {
	if child == nil {
		return nil
	}
	if child.IsAncestorOf(n) {
		panic(fmt.Errorf("%w: cannot add %q under %q", ErrCycle, child.Name, n.Name))
	}
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.Name = n.uniqueChildName(child.Name)
	child.parent = n
	n.children = append(n.children, child)
	return child
}

// IsAncestorOf reports whether n is node or one of its parents.
func (n *Node) IsAncestorOf(node *Node) bool {
	for current := node; current != nil; current = current.parent {
		if current == n {
			return true
		}
	}
	return false
}

// RemoveChild detaches child if it is a direct child.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// Free detaches the node from the graph.
func (n *Node) Free() {
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
}

func (n *Node) uniqueChildName(name string) string {
	if name == "" {
		name = n.Class
	}
	if n.child(name) == nil {
		return name
	}
	for i := 2; ; i++ {
		candidate := name + strconv.Itoa(i)
		if n.child(candidate) == nil {
			return candidate
		}
	}
}

func (n *Node) child(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Top returns the topmost ancestor.
func (n *Node) Top() *Node {
	current := n
	for current.parent != nil {
		current = current.parent
	}
	return current
}

// Path returns the absolute structural path, e.g. /root/Main/Button.
func (n *Node) Path() string {
	var parts []string
	for current := n; current != nil; current = current.parent {
		parts = append(parts, current.Name)
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// PathFrom returns the path of n relative to base, or "" when n is not below base.
func (n *Node) PathFrom(base *Node) string {
	var parts []string
	for current := n; current != nil; current = current.parent {
		if current == base {
			for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
				parts[i], parts[j] = parts[j], parts[i]
			}
			if len(parts) == 0 {
				return "."
			}
			return strings.Join(parts, "/")
		}
		parts = append(parts, current.Name)
	}
	return ""
}

// GetNode resolves a relative path ("A/B", "..", ".") or an absolute path
// starting with "/" from the topmost ancestor. It returns nil when nothing matches.
func (n *Node) GetNode(path string) *Node {
	if path == "" {
		return nil
	}
	current := n
	if strings.HasPrefix(path, "/") {
		top := n.Top()
		parts := strings.Split(strings.Trim(path, "/"), "/")
		if len(parts) == 0 || parts[0] != top.Name {
			return nil
		}
		current = top
		path = strings.Join(parts[1:], "/")
		if path == "" {
			return current
		}
	}
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			current = current.parent
		default:
			current = current.child(part)
		}
		if current == nil {
			return nil
		}
	}
	return current
}

// FindChild returns the first descendant named name in depth-first order.
func (n *Node) FindChild(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
		if found := c.FindChild(name); found != nil {
			return found
		}
	}
	return nil
}

// IsClass reports whether the node's class is or inherits from class.
func (n *Node) IsClass(class string) bool {
	return IsClass(n.Class, class)
}

// IsVisibleInTree reports effective visibility: the node and every CanvasItem
// ancestor must be visible.
func (n *Node) IsVisibleInTree() bool {
	for current := n; current != nil; current = current.parent {
		if current.IsClass(ClassCanvasItem) && !current.Visible {
			return false
		}
	}
	return true
}

// GlobalPosition accumulates positions over CanvasItem ancestors.
func (n *Node) GlobalPosition() Vector2 {
	var pos Vector2
	for current := n; current != nil; current = current.parent {
		if current.IsClass(ClassCanvasItem) {
			pos = pos.Add(current.Position)
		}
	}
	return pos
}

// GlobalRect returns the global-space bounding rectangle.
func (n *Node) GlobalRect() Rect2 {
	return Rect2{Position: n.GlobalPosition(), Size: n.Size}
}

// Get reads a property. Built-in fields are addressed by their lower-case names.
func (n *Node) Get(name string) any {
	switch name {
	case "name":
		return n.Name
	case "class":
		return n.Class
	case "visible":
		return n.Visible
	case "position":
		return n.Position
	case "size":
		return n.Size
	case "text":
		return n.Text
	case "placeholder_text":
		return n.Placeholder
	case "tooltip_text":
		return n.Tooltip
	case "disabled":
		return n.Disabled
	}
	return n.Props[name]
}

// Set writes a property. Values of the wrong type for a built-in field are ignored.
func (n *Node) Set(name string, value any) {
	switch name {
	case "name":
		if v, ok := value.(string); ok {
			n.Name = v
		}
	case "visible":
		if v, ok := value.(bool); ok {
			n.Visible = v
		}
	case "position":
		if v, ok := value.(Vector2); ok {
			n.Position = v
		}
	case "size":
		if v, ok := value.(Vector2); ok {
			n.Size = v
		}
	case "text":
		if v, ok := value.(string); ok {
			n.Text = v
		}
	case "placeholder_text":
		if v, ok := value.(string); ok {
			n.Placeholder = v
		}
	case "tooltip_text":
		if v, ok := value.(string); ok {
			n.Tooltip = v
		}
	case "disabled":
		if v, ok := value.(bool); ok {
			n.Disabled = v
		}
	default:
		if n.Props == nil {
			n.Props = map[string]any{}
		}
		n.Props[name] = value
	}
}

// Walk visits n and its descendants depth-first. Returning false from fn skips the subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}
