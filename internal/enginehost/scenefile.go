package enginehost

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"pkt.systems/gamebridge/scene"
)

// nodeSpec is one node of a scene file. Scene files are JSON with comments
// and trailing commas allowed.
type nodeSpec struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Extends     string         `json:"extends,omitempty"`
	Visible     *bool          `json:"visible,omitempty"`
	Position    []float64      `json:"position,omitempty"`
	Size        []float64      `json:"size,omitempty"`
	Text        string         `json:"text,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Tooltip     string         `json:"tooltip,omitempty"`
	Disabled    bool           `json:"disabled,omitempty"`
	Color       string         `json:"color,omitempty"`
	Props       map[string]any `json:"props,omitempty"`
	Children    []nodeSpec     `json:"children,omitempty"`
}

// ParseScene builds a detached node graph from JSONC scene data.
func ParseScene(data []byte) (*scene.Node, error) {
	var spec nodeSpec
	if err := json.Unmarshal(jsonc.ToJSON(data), &spec); err != nil {
		return nil, fmt.Errorf("parsing scene: %w", err)
	}
	return spec.build("")
}

// LoadScene reads and parses the scene file at path.
func LoadScene(path string) (*scene.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene %s: %w", path, err)
	}
	node, err := ParseScene(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return node, nil
}

func (s nodeSpec) build(parent string) (*scene.Node, error) {
	class := strings.TrimSpace(s.Type)
	if class == "" {
		class = scene.ClassNode
	}
	if !scene.KnownClass(class) {
		scene.RegisterClass(class, s.Extends)
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = class
	}
	where := parent + "/" + name
	if strings.ContainsAny(name, "/:") {
		return nil, fmt.Errorf("node %q: name must not contain '/' or ':'", where)
	}

	node := scene.NewNode(class, name)
	if s.Visible != nil {
		node.Visible = *s.Visible
	}
	var err error
	if node.Position, err = vector(s.Position, where, "position"); err != nil {
		return nil, err
	}
	if node.Size, err = vector(s.Size, where, "size"); err != nil {
		return nil, err
	}
	node.Text = s.Text
	node.Placeholder = s.Placeholder
	node.Tooltip = s.Tooltip
	node.Disabled = s.Disabled
	if s.Color != "" {
		c, err := parseColor(s.Color)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", where, err)
		}
		node.Set("color", c)
	}
	for key, value := range s.Props {
		node.Set(key, value)
	}
	for _, child := range s.Children {
		built, err := child.build(where)
		if err != nil {
			return nil, err
		}
		node.AddChild(built)
	}
	return node, nil
}

func vector(values []float64, where, field string) (scene.Vector2, error) {
	switch len(values) {
	case 0:
		return scene.Vector2{}, nil
	case 2:
		return scene.Vector2{X: values[0], Y: values[1]}, nil
	default:
		return scene.Vector2{}, fmt.Errorf("node %q: %s needs 2 components, got %d", where, field, len(values))
	}
}

// parseColor accepts #rgb, #rrggbb and #rrggbbaa.
func parseColor(text string) (scene.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(text), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return scene.Color{}, fmt.Errorf("invalid color %q", text)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return scene.Color{}, fmt.Errorf("invalid color %q", text)
	}
	channel := func(shift uint) float64 { return float64((v>>shift)&0xff) / 255 }
	return scene.Color{R: channel(24), G: channel(16), B: channel(8), A: channel(0)}, nil
}

// describe returns a JSON-friendly outline of node and its descendants.
func describe(node *scene.Node) map[string]any {
	out := map[string]any{
		"name": node.Name,
		"type": node.Class,
	}
	if !node.Visible {
		out["visible"] = false
	}
	if node.Text != "" {
		out["text"] = node.Text
	}
	children := node.Children()
	if len(children) > 0 {
		list := make([]map[string]any, 0, len(children))
		for _, child := range children {
			list = append(list, describe(child))
		}
		out["children"] = list
	}
	return out
}
