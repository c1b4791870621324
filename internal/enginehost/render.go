package enginehost

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"pkt.systems/gamebridge/scene"
)

var (
	backgroundColor = color.RGBA{R: 0x1e, G: 0x1f, B: 0x24, A: 0xff}
	panelColor      = color.RGBA{R: 0x2b, G: 0x2f, B: 0x36, A: 0xff}
	buttonColor     = color.RGBA{R: 0x55, G: 0x5a, B: 0x66, A: 0xff}
	disabledColor   = color.RGBA{R: 0x3a, G: 0x3c, B: 0x42, A: 0xff}
	fieldColor      = color.RGBA{R: 0xe8, G: 0xe8, B: 0xe8, A: 0xff}
	progressColor   = color.RGBA{R: 0x47, G: 0x8c, B: 0xbf, A: 0xff}
)

// Renderer draws a node graph as flat rectangles. Text is not rasterized.
type Renderer struct {
	Width  int
	Height int
}

// Render draws root and its visible descendants in tree order.
func (r Renderer) Render(root *scene.Node) *image.RGBA {
	bounds := image.Rect(0, 0, max(r.Width, 1), max(r.Height, 1))
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, image.NewUniform(backgroundColor), image.Point{}, draw.Src)
	if root == nil {
		return img
	}
	root.Walk(func(n *scene.Node) bool {
		if n.IsClass(scene.ClassCanvasItem) && !n.Visible {
			return false
		}
		fill, ok := fillFor(n)
		if !ok {
			return true
		}
		rect := pixelRect(n.GlobalRect()).Intersect(bounds)
		if rect.Empty() {
			return true
		}
		draw.Draw(img, rect, image.NewUniform(fill), image.Point{}, draw.Over)
		return true
	})
	return img
}

func pixelRect(r scene.Rect2) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.Position.X)),
		int(math.Floor(r.Position.Y)),
		int(math.Ceil(r.Position.X+r.Size.X)),
		int(math.Ceil(r.Position.Y+r.Size.Y)),
	)
}

// fillFor picks the fill of a node: an explicit color property wins, then a
// per-class default. Nodes without a fill are skipped.
func fillFor(n *scene.Node) (color.Color, bool) {
	if !n.IsClass(scene.ClassCanvasItem) || n.Size.X <= 0 || n.Size.Y <= 0 {
		return nil, false
	}
	if c, ok := n.Get("color").(scene.Color); ok {
		return toRGBA(c), true
	}
	switch {
	case n.IsClass(scene.ClassBaseButton):
		if n.Disabled {
			return disabledColor, true
		}
		return buttonColor, true
	case n.IsClass("LineEdit"), n.IsClass("TextEdit"):
		return fieldColor, true
	case n.IsClass("ProgressBar"):
		return progressColor, true
	case n.IsClass("Panel"), n.IsClass("PanelContainer"):
		return panelColor, true
	case n.IsClass("ColorRect"):
		return color.White, true
	}
	return nil, false
}

func toRGBA(c scene.Color) color.NRGBA {
	channel := func(v float64) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return color.NRGBA{R: channel(c.R), G: channel(c.G), B: channel(c.B), A: channel(c.A)}
}
