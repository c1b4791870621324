package schema

// Rect is a global-space bounding rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the rectangle midpoint.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// UIElement is a snapshot of one visual node. It goes stale as soon as the live tree changes.
type UIElement struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Path        string  `json:"path"`
	Rect        Rect    `json:"rect"`
	Visible     bool    `json:"visible"`
	Text        *string `json:"text,omitempty"`
	Placeholder *string `json:"placeholder,omitempty"`
	Disabled    *bool   `json:"disabled,omitempty"`
	Tooltip     string  `json:"tooltip,omitempty"`
}
