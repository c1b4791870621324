package projectcfg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/gamebridge/schema"
)

const sampleProject = `; Engine configuration file.

config_version=5

[application]

config/name="Demo"
run/main_scene="res://main.tscn"

[display]

window/size/viewport_width=640
`

const projectWithAutoload = `config_version=5

[autoload]

Music="*res://music.gd"

[input]

jump={}
`

func newProject(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "project.godot"), []byte(content), 0o644); err != nil {
		t.Fatalf("write project: %v", err)
	}
	return root
}

func readProject(t *testing.T, root string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "project.godot"))
	if err != nil {
		t.Fatalf("read project: %v", err)
	}
	return string(data)
}

func TestInjectRemoveRoundTrip(t *testing.T) {
	for name, content := range map[string]string{
		"no autoload":       sampleProject,
		"existing autoload": projectWithAutoload,
		"blank tail":        sampleProject + "\n",
	} {
		t.Run(name, func(t *testing.T) {
			root := newProject(t, content)
			changed, err := Inject(root, Options{}, Artifact{Addr: "127.0.0.1:9900", ScriptTimeout: "5s"})
			if err != nil || !changed {
				t.Fatalf("inject: changed=%v err=%v", changed, err)
			}
			value, ok := Lookup(readProject(t, root), AutoloadSection, "GameBridgeListener")
			if !ok || value != "*res://gamebridge_listener.yaml" {
				t.Fatalf("expected registration, got %q %v", value, ok)
			}
			if _, err := os.Stat(filepath.Join(root, ".gamebridge", ".gdignore")); err != nil {
				t.Fatalf("expected ignore marker: %v", err)
			}
			artifact, err := LoadArtifact(filepath.Join(root, "gamebridge_listener.yaml"))
			if err != nil {
				t.Fatalf("load artifact: %v", err)
			}
			if artifact.Version != ArtifactVersion || artifact.OutputDir != ".gamebridge" || artifact.ScriptTimeoutDuration() != 5*time.Second {
				t.Fatalf("unexpected artifact %+v", artifact)
			}

			changed, err = Remove(root, Options{})
			if err != nil || !changed {
				t.Fatalf("remove: changed=%v err=%v", changed, err)
			}
			if got := readProject(t, root); got != content {
				t.Fatalf("expected original bytes restored:\nwant %q\ngot  %q", content, got)
			}
			if _, err := os.Stat(filepath.Join(root, "gamebridge_listener.yaml")); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("expected artifact removed, got %v", err)
			}
			if _, err := os.Stat(filepath.Join(root, ".gamebridge")); err != nil {
				t.Fatalf("expected output dir kept: %v", err)
			}
		})
	}
}

func TestInjectIsIdempotent(t *testing.T) {
	root := newProject(t, sampleProject)
	if _, err := Inject(root, Options{}, Artifact{}); err != nil {
		t.Fatalf("inject: %v", err)
	}
	once := readProject(t, root)
	changed, err := Inject(root, Options{}, Artifact{})
	if err != nil || changed {
		t.Fatalf("expected no-op second inject, changed=%v err=%v", changed, err)
	}
	if got := readProject(t, root); got != once {
		t.Fatalf("expected identical project after second inject")
	}
	if strings.Count(once, "GameBridgeListener=") != 1 {
		t.Fatalf("expected exactly one registration:\n%s", once)
	}
	injected, err := IsInjected(root, Options{})
	if err != nil || !injected {
		t.Fatalf("expected injected, got %v %v", injected, err)
	}
}

func TestInjectKeepsExistingEntriesInOrder(t *testing.T) {
	root := newProject(t, projectWithAutoload)
	if _, err := Inject(root, Options{}, Artifact{}); err != nil {
		t.Fatalf("inject: %v", err)
	}
	got := readProject(t, root)
	want := "Music=\"*res://music.gd\"\nGameBridgeListener=\"*res://gamebridge_listener.yaml\"\n\n[input]"
	if !strings.Contains(got, want) {
		t.Fatalf("expected entry after existing autoloads:\n%s", got)
	}
}

func TestRemoveWithoutInjectIsNoop(t *testing.T) {
	root := newProject(t, sampleProject)
	changed, err := Remove(root, Options{})
	if err != nil || changed {
		t.Fatalf("expected no-op, changed=%v err=%v", changed, err)
	}
	if got := readProject(t, root); got != sampleProject {
		t.Fatalf("expected untouched project")
	}
	if _, err := Remove(t.TempDir(), Options{}); err != nil {
		t.Fatalf("expected missing project file to be tolerated, got %v", err)
	}
}

func TestRemoveDeletesUIDCompanion(t *testing.T) {
	root := newProject(t, sampleProject)
	if _, err := Inject(root, Options{}, Artifact{}); err != nil {
		t.Fatalf("inject: %v", err)
	}
	uid := filepath.Join(root, "gamebridge_listener.yaml.uid")
	if err := os.WriteFile(uid, []byte("uid://abc\n"), 0o644); err != nil {
		t.Fatalf("write uid: %v", err)
	}
	if _, err := Remove(root, Options{}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(uid); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected uid companion removed, got %v", err)
	}
}

func TestValidateRoot(t *testing.T) {
	root := newProject(t, sampleProject)
	abs, err := ValidateRoot(root, Options{})
	if err != nil || abs != root {
		t.Fatalf("expected valid root, got %q %v", abs, err)
	}
	for _, bad := range []string{"", t.TempDir(), filepath.Join(root, "project.godot"), filepath.Join(root, "missing")} {
		if _, err := ValidateRoot(bad, Options{}); !errors.Is(err, schema.ErrInvalidProject) {
			t.Fatalf("ValidateRoot(%q): expected invalid project, got %v", bad, err)
		}
	}
}

func TestValidateScene(t *testing.T) {
	for _, ok := range []string{"", "main.tscn", "res://levels/one.tscn", "levels/../main.tscn"} {
		if err := ValidateScene(ok); err != nil {
			t.Fatalf("ValidateScene(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"/etc/passwd", "../outside.tscn", "res://../../x.tscn"} {
		if err := ValidateScene(bad); !errors.Is(err, schema.ErrInvalidScene) {
			t.Fatalf("ValidateScene(%q): expected invalid scene, got %v", bad, err)
		}
	}
}

func TestLookup(t *testing.T) {
	if v, ok := Lookup(sampleProject, "application", "run/main_scene"); !ok || v != "res://main.tscn" {
		t.Fatalf("unexpected lookup %q %v", v, ok)
	}
	if _, ok := Lookup(sampleProject, "application", "missing"); ok {
		t.Fatalf("expected miss")
	}
	if v, ok := Lookup(sampleProject, "display", "window/size/viewport_width"); !ok || v != "640" {
		t.Fatalf("unexpected unquoted lookup %q", v)
	}
}

func TestKeys(t *testing.T) {
	if got := Keys(projectWithAutoload, AutoloadSection); len(got) != 1 || got[0] != "Music" {
		t.Fatalf("unexpected keys %q", got)
	}
	if got := Keys(sampleProject, AutoloadSection); got != nil {
		t.Fatalf("expected no keys, got %q", got)
	}
}
