package enginehost

import (
	"fmt"
	"strings"

	"pkt.systems/gamebridge/scene"
)

const pressedCountProp = "pressed_count"

// gui turns pointer and key events into button presses and text entry. Its
// state is only touched from input handlers, which run under the tree lock.
type gui struct {
	host  *Host
	armed *scene.Node
	focus *scene.Node
}

func (g *gui) handle(root *scene.Node, event scene.InputEvent) {
	switch ev := event.(type) {
	case scene.MouseButtonEvent:
		if ev.Button != scene.MouseButtonLeft {
			return
		}
		target := hitTest(root, ev.Position)
		if ev.Pressed {
			g.armed = nil
			if target != nil && target.IsClass(scene.ClassBaseButton) && !target.Disabled {
				g.armed = target
			}
			g.focus = nil
			if target != nil && (target.IsClass("LineEdit") || target.IsClass("TextEdit")) && !target.Disabled {
				g.focus = target
			}
			return
		}
		if g.armed != nil && g.armed == target {
			g.press(target)
		}
		g.armed = nil
	case scene.KeyEvent:
		if ev.Pressed && g.focus != nil && g.focus.Top() == root {
			g.typeKey(ev)
		}
	}
}

func (g *gui) press(button *scene.Node) {
	count, _ := button.Get(pressedCountProp).(int)
	button.Set(pressedCountProp, count+1)
	if button.IsClass("CheckBox") || button.IsClass("CheckButton") {
		on, _ := button.Get("button_pressed").(bool)
		button.Set("button_pressed", !on)
	}
	g.host.printf("gui: pressed %s\n", button.Path())
	if g.host.log != nil {
		g.host.log.Debug("gui button pressed", "path", button.Path(), "count", count+1)
	}
}

func (g *gui) typeKey(ev scene.KeyEvent) {
	switch {
	case ev.Keycode == scene.KeyBackspace:
		if runes := []rune(g.focus.Text); len(runes) > 0 {
			g.focus.Text = string(runes[:len(runes)-1])
		}
	case ev.Keycode == scene.KeyEnter || ev.Keycode == scene.KeyKPEnter:
		g.host.printf("gui: submitted %s %q\n", g.focus.Path(), g.focus.Text)
	case ev.Keycode >= scene.KeySpace && ev.Keycode <= '~' && !ev.Ctrl && !ev.Alt:
		ch := string(rune(ev.Keycode))
		if !ev.Shift {
			ch = strings.ToLower(ch)
		}
		g.focus.Text += ch
	}
}

// hitTest returns the topmost visible control under p.
func hitTest(root *scene.Node, p scene.Vector2) *scene.Node {
	var hit *scene.Node
	root.Walk(func(n *scene.Node) bool {
		if n.IsClass(scene.ClassCanvasItem) && !n.Visible {
			return false
		}
		if n.IsClass(scene.ClassControl) && n.GlobalRect().HasPoint(p) {
			hit = n
		}
		return true
	})
	return hit
}

func (h *Host) printf(format string, args ...any) {
	if h.stdout == nil {
		return
	}
	_, _ = fmt.Fprintf(h.stdout, format, args...)
}
