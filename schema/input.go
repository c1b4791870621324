package schema

// InputActionType tags an Input Action variant.
type InputActionType string

const (
	// InputKey presses or releases a keyboard key.
	InputKey InputActionType = "key"
	// InputMouseButton presses, releases or clicks a mouse button.
	InputMouseButton InputActionType = "mouse_button"
	// InputMouseMotion moves the pointer.
	InputMouseMotion InputActionType = "mouse_motion"
	// InputClickElement clicks the center of a UI element.
	InputClickElement InputActionType = "click_element"
	// InputAction dispatches a named logical input.
	InputAction InputActionType = "action"
	// InputWait pauses the batch.
	InputWait InputActionType = "wait"
)

// InputActionTypes lists every Input Action variant.
var InputActionTypes = []InputActionType{
	InputKey,
	InputMouseButton,
	InputMouseMotion,
	InputClickElement,
	InputAction,
	InputWait,
}

// Action is the union of every Input Action field. Which fields apply depends on Type.
type Action struct {
	Type InputActionType `json:"type"`

	// key
	Key   string `json:"key,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Alt   bool   `json:"alt,omitempty"`

	// key, mouse_button, action
	Pressed *bool `json:"pressed,omitempty"`

	// mouse_button, mouse_motion
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	RelativeX float64 `json:"relative_x,omitempty"`
	RelativeY float64 `json:"relative_y,omitempty"`

	// mouse_button, click_element
	Button      string `json:"button,omitempty"`
	DoubleClick bool   `json:"double_click,omitempty"`

	// click_element
	Element string `json:"element,omitempty"`

	// action
	Action   string   `json:"action,omitempty"`
	Strength *float64 `json:"strength,omitempty"`

	// wait
	Ms *float64 `json:"ms,omitempty"`
}
