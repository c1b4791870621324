package scene

import "sync"

const (
	// ClassNode is the root of the class hierarchy.
	ClassNode = "Node"
	// ClassCanvasItem marks nodes that take part in drawing and visibility.
	ClassCanvasItem = "CanvasItem"
	// ClassControl marks interactive UI nodes.
	ClassControl = "Control"
	// ClassBaseButton marks button-like controls.
	ClassBaseButton = "BaseButton"
	// ClassWindow is the class of the tree root.
	ClassWindow = "Window"
)

var (
	classMu      sync.RWMutex
	classParents = map[string]string{
		ClassNode:           "",
		"Viewport":          ClassNode,
		ClassWindow:         "Viewport",
		"CanvasLayer":       ClassNode,
		"Timer":             ClassNode,
		ClassCanvasItem:     ClassNode,
		"Node2D":            ClassCanvasItem,
		"Sprite2D":          "Node2D",
		"Camera2D":          "Node2D",
		ClassControl:        ClassCanvasItem,
		"Panel":             ClassControl,
		"ColorRect":         ClassControl,
		"TextureRect":       ClassControl,
		"Label":             ClassControl,
		"RichTextLabel":     ClassControl,
		"LineEdit":          ClassControl,
		"TextEdit":          ClassControl,
		"ProgressBar":       ClassControl,
		ClassBaseButton:     ClassControl,
		"Button":            ClassBaseButton,
		"CheckBox":          "Button",
		"CheckButton":       "Button",
		"OptionButton":      "Button",
		"MenuButton":        "Button",
		"LinkButton":        ClassBaseButton,
		"TextureButton":     ClassBaseButton,
		"Container":         ClassControl,
		"BoxContainer":      "Container",
		"VBoxContainer":     "BoxContainer",
		"HBoxContainer":     "BoxContainer",
		"MarginContainer":   "Container",
		"CenterContainer":   "Container",
		"PanelContainer":    "Container",
		"GridContainer":     "Container",
		"ScrollContainer":   "Container",
		"TabContainer":      "Container",
		"AnimationPlayer":   ClassNode,
		"AudioStreamPlayer": ClassNode,
	}
)

// RegisterClass adds a class below parent. Unknown parents fall back to Node.
func RegisterClass(name, parent string) {
	classMu.Lock()
	defer classMu.Unlock()
	if _, ok := classParents[parent]; !ok {
		parent = ClassNode
	}
	classParents[name] = parent
}

// KnownClass reports whether name is registered.
func KnownClass(name string) bool {
	classMu.RLock()
	defer classMu.RUnlock()
	_, ok := classParents[name]
	return ok
}

// IsClass reports whether class equals ancestor or inherits from it.
// Unregistered classes inherit directly from Node.
func IsClass(class, ancestor string) bool {
	classMu.RLock()
	defer classMu.RUnlock()
	for current := class; ; {
		if current == ancestor {
			return true
		}
		parent, ok := classParents[current]
		if !ok {
			parent = ClassNode
		}
		if parent == "" {
			return false
		}
		current = parent
	}
}
