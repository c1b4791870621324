package enginehost

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pkt.systems/gamebridge/internal/projectcfg"
)

const (
	applicationSection = "application"
	displaySection     = "display"
	defaultWidth       = 640
	defaultHeight      = 480
)

// Project is an opened project root.
type Project struct {
	Root      string
	Name      string
	MainScene string
	Width     int
	Height    int

	content string
	opts    projectcfg.Options
}

// OpenProject validates root and reads its project file.
func OpenProject(root string, opts projectcfg.Options) (*Project, error) {
	abs, err := projectcfg.ValidateRoot(root, opts)
	if err != nil {
		return nil, err
	}
	if opts.ProjectFile == "" {
		opts.ProjectFile = projectcfg.DefaultOptions().ProjectFile
	}
	data, err := os.ReadFile(filepath.Join(abs, opts.ProjectFile))
	if err != nil {
		return nil, err
	}
	p := &Project{Root: abs, content: string(data), opts: opts, Width: defaultWidth, Height: defaultHeight}
	p.Name, _ = projectcfg.Lookup(p.content, applicationSection, "config/name")
	p.MainScene, _ = projectcfg.Lookup(p.content, applicationSection, "run/main_scene")
	if w, ok := p.intSetting("window/size/viewport_width"); ok {
		p.Width = w
	}
	if h, ok := p.intSetting("window/size/viewport_height"); ok {
		p.Height = h
	}
	return p, nil
}

func (p *Project) intSetting(key string) (int, bool) {
	raw, ok := projectcfg.Lookup(p.content, displaySection, key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// ScenePath resolves scene, or the main scene when empty, to a file inside
// the project.
func (p *Project) ScenePath(scene string) (string, error) {
	if strings.TrimSpace(scene) == "" {
		scene = p.MainScene
	}
	if strings.TrimSpace(scene) == "" {
		return "", fmt.Errorf("no scene given and %s has no main scene", p.opts.ProjectFile)
	}
	if err := projectcfg.ValidateScene(scene); err != nil {
		return "", err
	}
	return p.resolve(scene), nil
}

func (p *Project) resolve(res string) string {
	rel := strings.TrimPrefix(strings.TrimSpace(res), projectcfg.ResourcePrefix)
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// Listener returns the listener artifact when the project registers one at
// startup.
func (p *Project) Listener() (projectcfg.Artifact, bool, error) {
	registration := p.opts.Registration
	if registration == "" {
		registration = projectcfg.DefaultOptions().Registration
	}
	value, ok := projectcfg.Lookup(p.content, projectcfg.AutoloadSection, registration)
	if !ok {
		return projectcfg.Artifact{}, false, nil
	}
	path := strings.TrimPrefix(value, "*")
	if err := projectcfg.ValidateScene(path); err != nil {
		return projectcfg.Artifact{}, true, fmt.Errorf("registration %s: %w", registration, err)
	}
	artifact, err := projectcfg.LoadArtifact(p.resolve(path))
	if err != nil {
		return projectcfg.Artifact{}, true, err
	}
	return artifact, true, nil
}

// Autoloads lists the startup registrations in file order.
func (p *Project) Autoloads() []string {
	return projectcfg.Keys(p.content, projectcfg.AutoloadSection)
}
