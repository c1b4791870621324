package scene

import "strings"

// InputEvent is a synthetic or physical input delivered to the tree.
type InputEvent interface {
	inputEvent()
}

// KeyEvent is a keyboard press or release.
type KeyEvent struct {
	Keycode Key
	Pressed bool
	Shift   bool
	Ctrl    bool
	Alt     bool
}

// MouseButton identifies a pointer button.
type MouseButton int

const (
	// MouseButtonNone is an unresolved button.
	MouseButtonNone MouseButton = 0
	// MouseButtonLeft is the primary button.
	MouseButtonLeft MouseButton = 1
	// MouseButtonRight is the secondary button.
	MouseButtonRight MouseButton = 2
	// MouseButtonMiddle is the wheel button.
	MouseButtonMiddle MouseButton = 3
)

// ParseMouseButton resolves left, right or middle.
func ParseMouseButton(name string) MouseButton {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "left":
		return MouseButtonLeft
	case "right":
		return MouseButtonRight
	case "middle":
		return MouseButtonMiddle
	default:
		return MouseButtonNone
	}
}

func (b MouseButton) String() string {
	switch b {
	case MouseButtonLeft:
		return "left"
	case MouseButtonRight:
		return "right"
	case MouseButtonMiddle:
		return "middle"
	default:
		return "none"
	}
}

// MouseButtonEvent is a pointer button press or release.
type MouseButtonEvent struct {
	Button      MouseButton
	Position    Vector2
	Pressed     bool
	DoubleClick bool
}

// MouseMotionEvent is a pointer move.
type MouseMotionEvent struct {
	Position Vector2
	Relative Vector2
}

// ActionEvent is a named logical input.
type ActionEvent struct {
	Action   string
	Strength float64
	Pressed  bool
}

func (KeyEvent) inputEvent()         {}
func (MouseButtonEvent) inputEvent() {}
func (MouseMotionEvent) inputEvent() {}
func (ActionEvent) inputEvent()      {}
