// Package engineproc spawns engine processes: foreground runs with captured
// output and one-shot headless invocations.
package engineproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"pkt.systems/gamebridge/core"
	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

// debugFlag starts the engine in debug mode for foreground runs.
const debugFlag = "--debug"

const (
	defaultHeadlessTimeout = 60 * time.Second
	waitDelay              = 2 * time.Second
)

// Config controls how the engine is invoked.
type Config struct {
	BinaryPath string
	ExtraArgs  []string
	Env        []string
	UsePTY     bool
}

// Runner implements core.Launcher.
type Runner struct {
	cfg    Config
	binary string
}

// NewRunner resolves the engine executable and constructs a runner.
func NewRunner(cfg Config) (*Runner, error) {
	binary, err := ResolveBinary(cfg.BinaryPath)
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, binary: binary}, nil
}

// Binary returns the resolved executable path.
func (r *Runner) Binary() string {
	return r.binary
}

// ResolveBinary locates the engine executable. A name without a path
// separator is looked up on PATH.
func ResolveBinary(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: no engine binary configured", schema.ErrEngineNotFound)
	}
	if strings.ContainsRune(name, filepath.Separator) {
		info, err := os.Stat(name)
		if err != nil {
			return "", fmt.Errorf("%w: %v", schema.ErrEngineNotFound, err)
		}
		if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			return "", fmt.Errorf("%w: %s is not executable", schema.ErrEngineNotFound, name)
		}
		return filepath.Abs(name)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", schema.ErrEngineNotFound, err)
	}
	return path, nil
}

func buildRunArgs(cfg Config, req core.LaunchRequest) []string {
	args := append([]string{}, cfg.ExtraArgs...)
	args = append(args, debugFlag, "--path", req.ProjectRoot)
	if req.Scene != "" {
		args = append(args, req.Scene)
	}
	return args
}

func buildHeadlessArgs(cfg Config, req core.HeadlessRequest) []string {
	args := append([]string{}, cfg.ExtraArgs...)
	args = append(args, "--headless", "--path", req.ProjectRoot, req.Operation)
	params := strings.TrimSpace(string(req.Params))
	if params == "" {
		params = "{}"
	}
	return append(args, params)
}

func (r *Runner) env() []string {
	if len(r.cfg.Env) == 0 {
		return os.Environ()
	}
	return append(os.Environ(), r.cfg.Env...)
}

// Start launches the project in the foreground. The process is not bound to
// ctx; it lives until signalled.
func (r *Runner) Start(ctx context.Context, req core.LaunchRequest) (core.ProcessHandle, error) {
	args := buildRunArgs(r.cfg, req)
	log := pslog.Ctx(ctx)
	if log != nil {
		log.Info("engine start", "binary", r.binary, "args", args, "pty", r.cfg.UsePTY, "env_extra", len(r.cfg.Env))
	}
	cmd := exec.Command(r.binary, args...)
	cmd.Dir = req.ProjectRoot
	cmd.Env = r.env()

	handle := &processHandle{cmd: cmd, log: log, started: time.Now()}
	if r.cfg.UsePTY {
		// pty.Start runs the child in a new session, which also makes it a
		// process group leader.
		ptmx, err := pty.Start(cmd)
		if err != nil {
			if log != nil {
				log.Error("engine start failed", "err", err)
			}
			return nil, err
		}
		handle.ptmx = ptmx
		handle.stream = newLineStream(log, source{kind: core.StreamStdout, reader: ptmx})
	} else {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			if log != nil {
				log.Error("engine start failed", "err", err)
			}
			return nil, err
		}
		handle.stream = newLineStream(log,
			source{kind: core.StreamStdout, reader: stdout},
			source{kind: core.StreamStderr, reader: stderr},
		)
	}
	handle.pgid, _ = unix.Getpgid(cmd.Process.Pid)
	if log != nil {
		log.Info("engine started", "pid", cmd.Process.Pid, "pgid", handle.pgid)
	}
	return handle, nil
}

// RunHeadless runs one headless operation to completion and returns its raw
// output. The whole process group is killed when the timeout expires.
func (r *Runner) RunHeadless(ctx context.Context, req core.HeadlessRequest) (core.HeadlessResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultHeadlessTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := buildHeadlessArgs(r.cfg, req)
	log := pslog.Ctx(ctx)
	if log != nil {
		log.Debug("engine headless start", "binary", r.binary, "operation", req.Operation, "timeout", timeout)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = req.ProjectRoot
	cmd.Env = r.env()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	started := time.Now()
	err := cmd.Run()
	result := core.HeadlessResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("headless %s timed out after %s", req.Operation, timeout)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, err
		}
		result.ExitCode = exitErr.ExitCode()
	}
	if log != nil {
		log.Debug("engine headless finished", "operation", req.Operation, "exit_code", result.ExitCode, "duration_ms", time.Since(started).Milliseconds())
	}
	return result, nil
}

type processHandle struct {
	cmd     *exec.Cmd
	ptmx    *os.File
	pgid    int
	stream  *lineStream
	log     pslog.Logger
	started time.Time

	waitOnce sync.Once
	result   core.RunResult
	waitErr  error
}

func (p *processHandle) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *processHandle) Outputs() core.OutputStream {
	return p.stream
}

func unixSignal(sig core.ProcessSignal) (syscall.Signal, error) {
	switch sig {
	case core.ProcessSignalHUP:
		return unix.SIGHUP, nil
	case core.ProcessSignalTERM:
		return unix.SIGTERM, nil
	case core.ProcessSignalKILL:
		return unix.SIGKILL, nil
	default:
		return 0, fmt.Errorf("unsupported signal: %s", sig)
	}
}

// Signal delivers sig to the whole process group, falling back to the
// process itself.
func (p *processHandle) Signal(ctx context.Context, sig core.ProcessSignal) error {
	_ = ctx
	pid := p.PID()
	if pid <= 0 {
		return errors.New("process not started")
	}
	signal, err := unixSignal(sig)
	if err != nil {
		return err
	}
	if p.pgid == pid {
		if err := unix.Kill(-p.pgid, signal); err == nil {
			return nil
		}
	}
	return p.cmd.Process.Signal(signal)
}

// Wait blocks until the process exits and its output is drained. It may be
// called more than once.
func (p *processHandle) Wait(ctx context.Context) (core.RunResult, error) {
	done := make(chan struct{})
	go func() {
		p.waitOnce.Do(p.wait)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return core.RunResult{}, ctx.Err()
	case <-done:
		return p.result, p.waitErr
	}
}

func (p *processHandle) wait() {
	if p.ptmx == nil {
		// Pipes must be drained before cmd.Wait closes them.
		<-p.stream.done
	}
	err := p.cmd.Wait()
	if p.ptmx != nil {
		_ = p.ptmx.Close()
		<-p.stream.done
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			p.waitErr = err
			if p.log != nil {
				p.log.Error("engine wait failed", "err", err)
			}
			return
		}
		p.result.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			p.result.Signal = status.Signal().String()
		}
	}
	if p.log != nil {
		fields := []any{"pid", p.PID(), "exit_code", p.result.ExitCode, "duration_ms", time.Since(p.started).Milliseconds()}
		if p.result.Signal != "" {
			fields = append(fields, "signal", p.result.Signal)
		}
		p.log.Info("engine exited", fields...)
	}
}

func (p *processHandle) Close() error {
	if p.ptmx != nil {
		return p.ptmx.Close()
	}
	return nil
}
