// Package enginehost is a small reference engine. It loads a project and a
// scene file into a live scene tree, steps frames, renders them in software
// and starts the bridge listener when the project registers it.
package enginehost

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pkt.systems/gamebridge/internal/metrics"
	"pkt.systems/gamebridge/internal/projectcfg"
	"pkt.systems/gamebridge/listener"
	"pkt.systems/gamebridge/scene"
	"pkt.systems/pslog"
)

const defaultFPS = 30

// Config controls a host run.
type Config struct {
	Root    string
	Scene   string
	Project projectcfg.Options
	FPS     int
	// ListenAddr overrides the address from the listener artifact.
	ListenAddr string
	// Stdout receives the banner, the listener ready marker and GUI events.
	// Defaults to os.Stdout.
	Stdout  io.Writer
	Metrics *metrics.Metrics
}

// Host runs one scene. It implements listener.Host.
type Host struct {
	cfg      Config
	project  *Project
	tree     *scene.Tree
	renderer Renderer
	stdout   io.Writer
	log      pslog.Logger
}

var _ listener.Host = (*Host)(nil)

// New opens the project and loads the scene. logger may be nil.
func New(cfg Config, logger pslog.Logger) (*Host, error) {
	if cfg.FPS <= 0 {
		cfg.FPS = defaultFPS
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if logger != nil {
		logger = logger.With("component", "enginehost")
	}
	project, err := OpenProject(cfg.Root, cfg.Project)
	if err != nil {
		return nil, err
	}
	path, err := project.ScenePath(cfg.Scene)
	if err != nil {
		return nil, err
	}
	root, err := LoadScene(path)
	if err != nil {
		return nil, err
	}
	h := &Host{
		cfg:      cfg,
		project:  project,
		tree:     scene.NewTree(),
		renderer: Renderer{Width: project.Width, Height: project.Height},
		stdout:   cfg.Stdout,
		log:      logger,
	}
	h.tree.SetCurrentScene(root)
	g := &gui{host: h}
	h.tree.HandleInput(g.handle)
	if logger != nil {
		logger.Info("scene loaded", "project", project.Root, "scene", path, "width", project.Width, "height", project.Height)
	}
	return h, nil
}

// Tree returns the live scene tree.
func (h *Host) Tree() *scene.Tree {
	return h.tree
}

// Project returns the opened project.
func (h *Host) Project() *Project {
	return h.project
}

// Capture renders the current frame.
func (h *Host) Capture() (image.Image, error) {
	var img image.Image
	h.tree.Do(func(root *scene.Node) {
		img = h.renderer.Render(root)
	})
	return img, nil
}

// Run steps frames until ctx is done. The listener runs alongside when the
// project registers it; a listener failure leaves the host running without
// remote control.
func (h *Host) Run(ctx context.Context) error {
	name := h.project.Name
	if name == "" {
		name = filepath.Base(h.project.Root)
	}
	h.printf("gamebridge host: running %q at %dx%d\n", name, h.project.Width, h.project.Height)

	var wg sync.WaitGroup
	if srv := h.listener(); srv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx); err != nil && h.log != nil {
				h.log.Warn("running without remote control", "err", err)
			}
		}()
	}
	defer wg.Wait()

	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.FPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if h.log != nil {
				h.log.Info("host stopped", "frames", h.tree.Frame())
			}
			return nil
		case <-ticker.C:
			h.tree.Step()
		}
	}
}

func (h *Host) listener() *listener.Server {
	artifact, registered, err := h.project.Listener()
	if !registered {
		if h.log != nil {
			h.log.Info("no listener registration")
		}
		return nil
	}
	if err != nil {
		if h.log != nil {
			h.log.Warn("listener artifact unreadable", "err", err)
		}
		return nil
	}
	addr := artifact.Addr
	if h.cfg.ListenAddr != "" {
		addr = h.cfg.ListenAddr
	}
	outputDir := artifact.OutputDir
	if outputDir == "" {
		outputDir = projectcfg.DefaultOptions().OutputDir
	}
	return listener.New(h, listener.Config{
		Addr:          addr,
		OutputDir:     filepath.Join(h.project.Root, outputDir),
		ScriptTimeout: artifact.ScriptTimeoutDuration(),
		Ready:         h.stdout,
	}, h.log, h.cfg.Metrics)
}
