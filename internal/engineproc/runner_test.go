package engineproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"pkt.systems/gamebridge/core"
	"pkt.systems/gamebridge/schema"
)

// TestHelperProcess is re-executed as a fake engine. The mode comes from the
// environment; the engine arguments follow "--".
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GAMEBRIDGE_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	switch os.Getenv("GAMEBRIDGE_HELPER_MODE") {
	case "echo":
		fmt.Println("engine booting")
		fmt.Println(schema.ListenerReadyMarker + " on 127.0.0.1:9900")
		fmt.Fprintln(os.Stderr, "WARNING: something")
		fmt.Printf("args=%s\n", strings.Join(args, " "))
		os.Exit(3)
	case "sleep":
		fmt.Println("sleeping")
		time.Sleep(time.Minute)
	case "headless":
		fmt.Println("Godot Engine v4 noise")
		fmt.Printf("{\"operation\":%q,\"params\":%s}\n", args[len(args)-2], args[len(args)-1])
		fmt.Fprintln(os.Stderr, "stderr noise")
	}
	os.Exit(0)
}

func helperRunner(t *testing.T, mode string) *Runner {
	t.Helper()
	t.Setenv("GAMEBRIDGE_HELPER_PROCESS", "1")
	t.Setenv("GAMEBRIDGE_HELPER_MODE", mode)
	runner, err := NewRunner(Config{
		BinaryPath: os.Args[0],
		ExtraArgs:  []string{"-test.run=TestHelperProcess", "--"},
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return runner
}

func drain(t *testing.T, stream core.OutputStream) []core.OutputLine {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var lines []core.OutputLine
	for {
		line, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.Fatalf("stream: %v", err)
			}
			return lines
		}
		lines = append(lines, line)
	}
}

func TestStartCapturesOutputAndExitCode(t *testing.T) {
	runner := helperRunner(t, "echo")
	root := t.TempDir()
	handle, err := runner.Start(context.Background(), core.LaunchRequest{ProjectRoot: root, Scene: "main.tscn"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if handle.PID() <= 0 {
		t.Fatalf("expected pid")
	}
	lines := drain(t, handle.Outputs())
	var stdout, stderr []string
	for _, line := range lines {
		if line.Stream == core.StreamStderr {
			stderr = append(stderr, line.Text)
		} else {
			stdout = append(stdout, line.Text)
		}
	}
	if len(stdout) != 3 || !strings.HasPrefix(stdout[1], schema.ListenerReadyMarker) {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	if want := "args=--debug --path " + root + " main.tscn"; stdout[2] != want {
		t.Fatalf("expected %q, got %q", want, stdout[2])
	}
	if len(stderr) != 1 || stderr[0] != "WARNING: something" {
		t.Fatalf("unexpected stderr %q", stderr)
	}
	result, err := handle.Wait(context.Background())
	if err != nil || result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %+v %v", result, err)
	}
	again, err := handle.Wait(context.Background())
	if err != nil || again != result {
		t.Fatalf("expected repeatable wait, got %+v %v", again, err)
	}
}

func TestSignalTerminatesProcessGroup(t *testing.T) {
	runner := helperRunner(t, "sleep")
	handle, err := runner.Start(context.Background(), core.LaunchRequest{ProjectRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	line, err := handle.Outputs().Next(context.Background())
	if err != nil || line.Text != "sleeping" {
		t.Fatalf("expected first line, got %+v %v", line, err)
	}
	go func() {
		for {
			if _, err := handle.Outputs().Next(context.Background()); err != nil {
				return
			}
		}
	}()
	if err := handle.Signal(context.Background(), core.ProcessSignalTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.Signal == "" {
		t.Fatalf("expected signal exit, got %+v", result)
	}
	if err := handle.Signal(context.Background(), "USR9"); err == nil {
		t.Fatalf("expected unsupported signal error")
	}
}

func TestRunHeadless(t *testing.T) {
	runner := helperRunner(t, "headless")
	result, err := runner.RunHeadless(context.Background(), core.HeadlessRequest{
		ProjectRoot: t.TempDir(),
		Operation:   "scene_tree",
		Params:      json.RawMessage(`{"scene":"main.tscn"}`),
		Timeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("headless: %v", err)
	}
	if !strings.Contains(result.Stdout, `{"operation":"scene_tree","params":{"scene":"main.tscn"}}`) {
		t.Fatalf("unexpected stdout %q", result.Stdout)
	}
	if !strings.Contains(result.Stderr, "stderr noise") || result.ExitCode != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunHeadlessTimeout(t *testing.T) {
	runner := helperRunner(t, "sleep")
	started := time.Now()
	_, err := runner.RunHeadless(context.Background(), core.HeadlessRequest{ProjectRoot: t.TempDir(), Operation: "noop", Timeout: 200 * time.Millisecond})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatalf("timeout did not kill the process promptly")
	}
}

func TestResolveBinary(t *testing.T) {
	if _, err := ResolveBinary(""); !errors.Is(err, schema.ErrEngineNotFound) {
		t.Fatalf("expected not found for empty name, got %v", err)
	}
	if _, err := ResolveBinary("gamebridge-engine-that-does-not-exist"); !errors.Is(err, schema.ErrEngineNotFound) {
		t.Fatalf("expected not found on PATH, got %v", err)
	}
	plain := filepath.Join(t.TempDir(), "engine")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ResolveBinary(plain); !errors.Is(err, schema.ErrEngineNotFound) {
		t.Fatalf("expected non-executable rejected, got %v", err)
	}
	if err := os.Chmod(plain, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if got, err := ResolveBinary(plain); err != nil || got != plain {
		t.Fatalf("expected %s, got %q %v", plain, got, err)
	}
}

func TestBuildArgs(t *testing.T) {
	cfg := Config{ExtraArgs: []string{"host"}}
	got := buildRunArgs(cfg, core.LaunchRequest{ProjectRoot: "/p"})
	if want := []string{"host", "--debug", "--path", "/p"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected run args %q", got)
	}
	got = buildRunArgs(Config{}, core.LaunchRequest{ProjectRoot: "/p", Scene: "level.tscn"})
	if want := []string{"--debug", "--path", "/p", "level.tscn"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected debug flag before the path, got %q", got)
	}
	got = buildHeadlessArgs(cfg, core.HeadlessRequest{ProjectRoot: "/p", Operation: "scene_tree"})
	if want := []string{"host", "--headless", "--path", "/p", "scene_tree", "{}"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected headless args %q", got)
	}
}
