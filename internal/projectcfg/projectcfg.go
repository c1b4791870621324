// Package projectcfg registers and unregisters the listener in a project's
// startup configuration. The project file is an INI-like text file; the
// listener is an [autoload] entry pointing at a YAML artifact in the project
// root.
package projectcfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"pkt.systems/gamebridge/internal/fsutil"
	"pkt.systems/gamebridge/schema"
)

const (
	// AutoloadSection is the section holding startup registrations.
	AutoloadSection = "autoload"
	// ResourcePrefix maps a project-relative path to a resource path.
	ResourcePrefix = "res://"
	// ArtifactVersion is the current artifact format.
	ArtifactVersion = 1
)

// Options names the files involved in registration.
type Options struct {
	ProjectFile  string
	Registration string
	ArtifactFile string
	OutputDir    string
	IgnoreMarker string
}

// DefaultOptions returns the stock file names.
func DefaultOptions() Options {
	return Options{
		ProjectFile:  "project.godot",
		Registration: "GameBridgeListener",
		ArtifactFile: "gamebridge_listener.yaml",
		OutputDir:    ".gamebridge",
		IgnoreMarker: ".gdignore",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ProjectFile == "" {
		o.ProjectFile = def.ProjectFile
	}
	if o.Registration == "" {
		o.Registration = def.Registration
	}
	if o.ArtifactFile == "" {
		o.ArtifactFile = def.ArtifactFile
	}
	if o.OutputDir == "" {
		o.OutputDir = def.OutputDir
	}
	if o.IgnoreMarker == "" {
		o.IgnoreMarker = def.IgnoreMarker
	}
	return o
}

// Artifact is the listener source the engine host loads when it finds the
// registration entry.
type Artifact struct {
	Version       int    `yaml:"version"`
	Addr          string `yaml:"addr"`
	OutputDir     string `yaml:"output_dir"`
	ScriptTimeout string `yaml:"script_timeout"`
}

// ScriptTimeoutDuration parses ScriptTimeout, returning 0 when unset or invalid.
func (a Artifact) ScriptTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(a.ScriptTimeout))
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ValidateRoot resolves root to an absolute, existing directory that contains
// the project file.
func ValidateRoot(root string, opts Options) (string, error) {
	opts = opts.withDefaults()
	root = strings.TrimSpace(root)
	if root == "" {
		return "", fmt.Errorf("%w: project path is required", schema.ErrInvalidProject)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", schema.ErrInvalidProject, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", schema.ErrInvalidProject, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", schema.ErrInvalidProject, abs)
	}
	if _, err := os.Stat(filepath.Join(abs, opts.ProjectFile)); err != nil {
		return "", fmt.Errorf("%w: %s has no %s", schema.ErrInvalidProject, abs, opts.ProjectFile)
	}
	return abs, nil
}

// ValidateScene checks that scene is a project-relative path that stays
// inside root. An empty scene is valid and means the main scene.
func ValidateScene(scene string) error {
	scene = strings.TrimPrefix(strings.TrimSpace(scene), ResourcePrefix)
	if scene == "" {
		return nil
	}
	if filepath.IsAbs(scene) || strings.HasPrefix(scene, "/") {
		return fmt.Errorf("%w: %q must be project-relative", schema.ErrInvalidScene, scene)
	}
	clean := filepath.Clean(filepath.FromSlash(scene))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q escapes the project", schema.ErrInvalidScene, scene)
	}
	return nil
}

// Entry returns the registration line value for the artifact.
func Entry(opts Options) string {
	opts = opts.withDefaults()
	return fmt.Sprintf("%q", "*"+ResourcePrefix+filepath.ToSlash(opts.ArtifactFile))
}

// Inject registers the listener in root. It writes the artifact, creates the
// output directory with its ignore marker and adds the registration entry.
// Injecting an already injected root rewrites the artifact and leaves the
// project file unchanged. changed reports whether the project file was edited.
func Inject(root string, opts Options, artifact Artifact) (changed bool, err error) {
	opts = opts.withDefaults()
	if artifact.Version == 0 {
		artifact.Version = ArtifactVersion
	}
	if artifact.OutputDir == "" {
		artifact.OutputDir = opts.OutputDir
	}
	projectPath := filepath.Join(root, opts.ProjectFile)
	data, err := os.ReadFile(projectPath)
	if err != nil {
		return false, fmt.Errorf("%w: %v", schema.ErrInvalidProject, err)
	}

	if err := writeArtifact(filepath.Join(root, opts.ArtifactFile), artifact); err != nil {
		return false, err
	}
	if err := ensureOutputDir(root, opts); err != nil {
		return false, err
	}

	updated, added := addEntry(string(data), opts.Registration, Entry(opts))
	if !added {
		return false, nil
	}
	if err := fsutil.WriteFileAtomic(projectPath, []byte(updated), fsutil.FileMode(projectPath, 0o644)); err != nil {
		return false, err
	}
	return true, nil
}

// Remove unregisters the listener from root. It is safe on a root that was
// never injected. The output directory is kept. Every step is attempted and
// failures are aggregated.
func Remove(root string, opts Options) (changed bool, err error) {
	opts = opts.withDefaults()
	var result *multierror.Error

	projectPath := filepath.Join(root, opts.ProjectFile)
	data, readErr := os.ReadFile(projectPath)
	switch {
	case readErr == nil:
		if updated, removed := removeEntry(string(data), opts.Registration); removed {
			if werr := fsutil.WriteFileAtomic(projectPath, []byte(updated), fsutil.FileMode(projectPath, 0o644)); werr != nil {
				result = multierror.Append(result, fmt.Errorf("rewrite %s: %w", projectPath, werr))
			} else {
				changed = true
			}
		}
	case !errors.Is(readErr, os.ErrNotExist):
		result = multierror.Append(result, fmt.Errorf("read %s: %w", projectPath, readErr))
	}

	artifactPath := filepath.Join(root, opts.ArtifactFile)
	for _, path := range []string{artifactPath, artifactPath + ".uid"} {
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", path, rerr))
		}
	}
	return changed, result.ErrorOrNil()
}

// IsInjected reports whether root's project file carries the registration.
func IsInjected(root string, opts Options) (bool, error) {
	opts = opts.withDefaults()
	data, err := os.ReadFile(filepath.Join(root, opts.ProjectFile))
	if err != nil {
		return false, err
	}
	_, ok := Lookup(string(data), AutoloadSection, opts.Registration)
	return ok, nil
}

// LoadArtifact reads the artifact at path.
func LoadArtifact(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, err
	}
	var artifact Artifact
	if err := yaml.Unmarshal(data, &artifact); err != nil {
		return Artifact{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if artifact.Version > ArtifactVersion {
		return Artifact{}, fmt.Errorf("artifact version %d is newer than supported %d", artifact.Version, ArtifactVersion)
	}
	return artifact, nil
}

func writeArtifact(path string, artifact Artifact) error {
	data, err := yaml.Marshal(artifact)
	if err != nil {
		return err
	}
	header := []byte("# Generated by gamebridge while a session is active. Removed on stop.\n")
	return fsutil.WriteFileAtomic(path, append(header, data...), 0o644)
}

func ensureOutputDir(root string, opts Options) error {
	dir := filepath.Join(root, opts.OutputDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	marker := filepath.Join(dir, opts.IgnoreMarker)
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	return os.WriteFile(marker, nil, 0o644)
}
