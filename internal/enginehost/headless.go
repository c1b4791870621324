package enginehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"path/filepath"

	"pkt.systems/gamebridge/internal/fsutil"
	"pkt.systems/gamebridge/internal/projectcfg"
)

// Operation names a headless operation.
type Operation string

const (
	// OpSceneTree outlines a scene's node graph.
	OpSceneTree Operation = "scene_tree"
	// OpProjectInfo reports project settings.
	OpProjectInfo Operation = "project_info"
	// OpRenderScene renders a scene to a PNG inside the project.
	OpRenderScene Operation = "render_scene"
)

// Operations lists the supported headless operations.
func Operations() []Operation {
	return []Operation{OpSceneTree, OpProjectInfo, OpRenderScene}
}

type headlessParams struct {
	Scene  string `json:"scene"`
	Output string `json:"output"`
}

// RunHeadless performs one operation against the project at root and writes
// a banner line followed by the JSON result to out.
func RunHeadless(ctx context.Context, root string, opts projectcfg.Options, operation string, params json.RawMessage, out io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	project, err := OpenProject(root, opts)
	if err != nil {
		return err
	}
	var p headlessParams
	if trimmed := bytes.TrimSpace(params); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return fmt.Errorf("params: %w", err)
		}
	}
	if _, err := fmt.Fprintf(out, "gamebridge host: headless %s\n", operation); err != nil {
		return err
	}

	var result any
	switch Operation(operation) {
	case OpSceneTree:
		path, err := project.ScenePath(p.Scene)
		if err != nil {
			return err
		}
		node, err := LoadScene(path)
		if err != nil {
			return err
		}
		result = describe(node)
	case OpProjectInfo:
		result = map[string]any{
			"name":       project.Name,
			"main_scene": project.MainScene,
			"viewport":   map[string]int{"width": project.Width, "height": project.Height},
			"autoloads":  project.Autoloads(),
		}
	case OpRenderScene:
		result, err = renderScene(project, p)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown operation %q (supported: %v)", operation, Operations())
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}

func renderScene(project *Project, p headlessParams) (any, error) {
	if p.Output == "" {
		return nil, fmt.Errorf("render_scene needs an output path")
	}
	if err := projectcfg.ValidateScene(p.Output); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	path, err := project.ScenePath(p.Scene)
	if err != nil {
		return nil, err
	}
	node, err := LoadScene(path)
	if err != nil {
		return nil, err
	}
	img := Renderer{Width: project.Width, Height: project.Height}.Render(node)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	target := project.resolve(p.Output)
	if err := fsutil.WriteFileAtomic(target, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return map[string]any{"path": filepath.ToSlash(target), "width": project.Width, "height": project.Height}, nil
}
