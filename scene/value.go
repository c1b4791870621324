package scene

import "fmt"

// Vector2 is a 2D coordinate.
type Vector2 struct {
	X float64
	Y float64
}

// Add returns v+o.
func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vector2) String() string {
	return fmt.Sprintf("(%g, %g)", v.X, v.Y)
}

// Vector3 is a 3D coordinate.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Color is an RGBA color with components in [0,1].
type Color struct {
	R float64
	G float64
	B float64
	A float64
}

func (c Color) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", c.R, c.G, c.B, c.A)
}

// Rect2 is an axis-aligned rectangle.
type Rect2 struct {
	Position Vector2
	Size     Vector2
}

// Center returns the rectangle midpoint.
func (r Rect2) Center() Vector2 {
	return Vector2{X: r.Position.X + r.Size.X/2, Y: r.Position.Y + r.Size.Y/2}
}

// HasPoint reports whether p lies inside the rectangle.
func (r Rect2) HasPoint(p Vector2) bool {
	return p.X >= r.Position.X && p.Y >= r.Position.Y &&
		p.X < r.Position.X+r.Size.X && p.Y < r.Position.Y+r.Size.Y
}

// Resource is a reference to a loaded asset.
type Resource struct {
	Class string
	Path  string
}

func (r *Resource) String() string {
	if r == nil {
		return "<null>"
	}
	return fmt.Sprintf("<%s:%s>", r.Class, r.Path)
}
