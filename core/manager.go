package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"pkt.systems/gamebridge/internal/jsonextract"
	"pkt.systems/gamebridge/internal/metrics"
	"pkt.systems/gamebridge/internal/persist"
	"pkt.systems/gamebridge/internal/projectcfg"
	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

const (
	// DefaultReadyTimeout bounds how long bridge operations wait for the
	// listener to announce itself.
	DefaultReadyTimeout = 15 * time.Second
	// DefaultStopGrace is the time between TERM and KILL on stop.
	DefaultStopGrace = 3 * time.Second
	// killWait bounds the wait for exit after KILL.
	killWait = 5 * time.Second
)

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	Project         projectcfg.Options
	Artifact        projectcfg.Artifact
	OutputMaxLines  int
	ReadyTimeout    time.Duration
	StopGrace       time.Duration
	HeadlessTimeout time.Duration
}

// Manager owns the single target-process slot: it injects the listener,
// spawns the target, captures its output and removes the registration on
// stop.
type Manager struct {
	cfg      ManagerConfig
	launcher Launcher
	sink     EventSink
	store    *persist.Store
	metrics  *metrics.Metrics
	log      pslog.Logger

	// op serializes Start, Stop and Shutdown.
	op sync.Mutex

	mu           sync.Mutex
	state        schema.SessionState
	current      *session
	injectedRoot string
}

type session struct {
	root     string
	scene    string
	handle   ProcessHandle
	pid      int
	injected bool
	started  time.Time
	stdout   *buffer
	stderr   *buffer

	readyOnce sync.Once
	ready     chan struct{}
	readyAddr string

	// result and waitErr are written before exited is closed.
	exited  chan struct{}
	result  RunResult
	waitErr error
}

func (s *session) isReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *session) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *session) markReady(addr string) bool {
	first := false
	s.readyOnce.Do(func() {
		s.readyAddr = addr
		close(s.ready)
		first = true
	})
	return first
}

// NewManager constructs a session manager.
func NewManager(cfg ManagerConfig, deps ManagerDeps) (*Manager, error) {
	if deps.Launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.OutputMaxLines <= 0 {
		cfg.OutputMaxLines = DefaultOutputMaxLines
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Manager{
		cfg:      cfg,
		launcher: deps.Launcher,
		sink:     deps.Sink,
		store:    deps.Store,
		metrics:  deps.Metrics,
		log:      logger.With("component", "session"),
		state:    schema.SessionIdle,
	}, nil
}

// Start launches the project at req.ProjectRoot. A tracked session is
// stopped first, and the previous root's registration is removed when the
// root changes. Injection failures are logged and the target starts without
// remote control.
func (m *Manager) Start(ctx context.Context, req schema.StartRequest) (schema.StartResponse, error) {
	root, err := projectcfg.ValidateRoot(req.ProjectRoot, m.cfg.Project)
	if err != nil {
		return schema.StartResponse{}, NewBridgeError(BridgeErrorConfig, "start", err)
	}
	scene := strings.TrimSpace(req.Scene)
	if err := projectcfg.ValidateScene(scene); err != nil {
		return schema.StartResponse{}, NewBridgeError(BridgeErrorConfig, "start", err)
	}
	if !m.op.TryLock() {
		return schema.StartResponse{}, NewBridgeError(BridgeErrorLifecycle, "start", schema.ErrSessionBusy)
	}
	defer m.op.Unlock()

	log := m.log.With("project", root)
	m.mu.Lock()
	prev := m.current
	prevRoot := m.injectedRoot
	m.mu.Unlock()
	if prev != nil {
		log.Info("session preempt", "previous", prev.root, "pid", prev.pid)
		m.terminate(ctx, prev, log)
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
	}
	if prevRoot != "" && prevRoot != root {
		_ = m.unregister(prevRoot, log)
	}

	m.setState(schema.SessionStarting, root, 0)
	injected := m.register(root, log)

	launchCtx := pslog.ContextWithLogger(ctx, log)
	handle, err := m.launcher.Start(launchCtx, LaunchRequest{ProjectRoot: root, Scene: scene})
	if err != nil {
		log.Error("session start failed", "err", err)
		if injected {
			_ = m.unregister(root, log)
		}
		m.setState(schema.SessionIdle, root, 0)
		return schema.StartResponse{}, NewBridgeError(BridgeErrorLifecycle, "start", err)
	}

	sess := &session{
		root:     root,
		scene:    scene,
		handle:   handle,
		pid:      handle.PID(),
		injected: injected,
		started:  time.Now(),
		stdout:   newBufferWithMaxLines(m.cfg.OutputMaxLines),
		stderr:   newBufferWithMaxLines(m.cfg.OutputMaxLines),
		ready:    make(chan struct{}),
		exited:   make(chan struct{}),
	}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	if injected && m.store != nil {
		if err := m.store.Add(root, sess.pid); err != nil {
			log.Warn("injection record failed", "err", err)
		}
	}
	m.metrics.SessionStarted()
	m.setState(schema.SessionRunning, root, sess.pid)
	log.Info("session started", "pid", sess.pid, "scene", scene, "injected", injected)
	go m.pump(sess, log.With("pid", sess.pid))

	return schema.StartResponse{ProjectRoot: root, Scene: scene, PID: sess.pid, Injected: injected}, nil
}

// Stop kills the tracked target, returns its captured output and removes the
// listener registration. Cleanup failures are logged, not returned.
func (m *Manager) Stop(ctx context.Context) (schema.StopResponse, error) {
	if !m.op.TryLock() {
		return schema.StopResponse{}, NewBridgeError(BridgeErrorLifecycle, "stop", schema.ErrSessionBusy)
	}
	defer m.op.Unlock()

	m.mu.Lock()
	sess := m.current
	root := m.injectedRoot
	if sess == nil && root == "" {
		m.mu.Unlock()
		return schema.StopResponse{}, NewBridgeError(BridgeErrorTarget, "stop", schema.ErrNoSession)
	}
	m.mu.Unlock()

	resp := schema.StopResponse{ProjectRoot: root}
	log := m.log.With("project", root)
	if sess != nil {
		resp.ProjectRoot = sess.root
		log = m.log.With("project", sess.root)
		m.setState(schema.SessionStopping, sess.root, sess.pid)
		resp.WasRunning = !sess.hasExited()
		m.terminate(ctx, sess, log)
		resp.ExitCode = sess.exitCode()
		resp.Stdout = sess.stdout.Snapshot(0).Lines
		resp.Stderr = sess.stderr.Snapshot(0).Lines
	}
	if root != "" {
		_ = m.unregister(root, log)
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.setState(schema.SessionIdle, resp.ProjectRoot, 0)
	log.Info("session stopped", "was_running", resp.WasRunning, "exit_code", resp.ExitCode)
	return resp, nil
}

func (s *session) exitCode() int {
	if !s.hasExited() {
		return -1
	}
	return s.result.ExitCode
}

// Status reports the session slot.
func (m *Manager) Status() schema.SessionStatus {
	m.mu.Lock()
	status := schema.SessionStatus{
		State:       m.state,
		ProjectRoot: m.injectedRoot,
		Injected:    m.injectedRoot != "",
	}
	if sess := m.current; sess != nil {
		status.ProjectRoot = sess.root
		status.Scene = sess.scene
		status.PID = sess.pid
		status.ListenerReady = sess.isReady()
		if sess.hasExited() {
			code := sess.result.ExitCode
			status.ExitCode = &code
		}
		status.StdoutLines = sess.stdout.Len()
		status.StderrLines = sess.stderr.Len()
	}
	m.mu.Unlock()
	if m.store != nil {
		if roots, err := m.store.Roots(); err == nil {
			for _, root := range roots {
				status.InjectedRoots = append(status.InjectedRoots, root.Path)
			}
		}
	}
	return status
}

// Output returns the last tail lines of each captured stream; tail <= 0
// returns everything retained. Output stays available after the target exits
// until Stop.
func (m *Manager) Output(tail int) (schema.OutputSnapshot, error) {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return schema.OutputSnapshot{}, NewBridgeError(BridgeErrorTarget, "output", schema.ErrNoSession)
	}
	stdout := sess.stdout.Snapshot(tail)
	stderr := sess.stderr.Snapshot(tail)
	return schema.OutputSnapshot{
		Stdout:       stdout.Lines,
		Stderr:       stderr.Lines,
		StdoutTotal:  stdout.Total,
		StderrTotal:  stderr.Total,
		StdoutEvicts: stdout.Evicted,
		StderrEvicts: stderr.Evicted,
	}, nil
}

// WaitReady returns the listener address once the running target has
// announced it. It fails fast when no target is running or the listener was
// not injected, and with ErrListenerNotReady after the ready timeout.
func (m *Manager) WaitReady(ctx context.Context) (string, error) {
	m.mu.Lock()
	sess := m.current
	state := m.state
	m.mu.Unlock()
	if sess == nil || state != schema.SessionRunning {
		return "", NewBridgeError(BridgeErrorTarget, "wait ready", schema.ErrNoSession)
	}
	if !sess.injected {
		return "", NewBridgeError(BridgeErrorTarget, "wait ready", fmt.Errorf("%w: listener was not injected", schema.ErrListenerNotReady))
	}
	if sess.isReady() {
		return sess.readyAddr, nil
	}
	timer := time.NewTimer(m.cfg.ReadyTimeout)
	defer timer.Stop()
	started := time.Now()
	select {
	case <-sess.ready:
		return sess.readyAddr, nil
	case <-sess.exited:
		return "", NewBridgeError(BridgeErrorTarget, "wait ready", fmt.Errorf("%w: target exited", schema.ErrNoSession))
	case <-timer.C:
		err := NewBridgeError(BridgeErrorTarget, "wait ready", schema.ErrListenerNotReady)
		err.Elapsed = time.Since(started)
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown stops the target and removes every registration this control
// plane is responsible for, including recorded residue.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	var result *multierror.Error
	m.mu.Lock()
	sess := m.current
	roots := []string{}
	if m.injectedRoot != "" {
		roots = append(roots, m.injectedRoot)
	}
	m.mu.Unlock()
	if sess != nil {
		m.setState(schema.SessionStopping, sess.root, sess.pid)
		m.terminate(ctx, sess, m.log.With("project", sess.root))
		if !sess.hasExited() {
			result = multierror.Append(result, fmt.Errorf("target pid %d did not exit", sess.pid))
		}
	}
	if m.store != nil {
		recorded, err := m.store.Roots()
		if err != nil {
			result = multierror.Append(result, err)
		}
		for _, root := range recorded {
			if root.Path != "" && (len(roots) == 0 || roots[0] != root.Path) {
				roots = append(roots, root.Path)
			}
		}
	}
	for _, root := range roots {
		if err := m.unregister(root, m.log.With("project", root)); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", root, err))
		}
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.setState(schema.SessionIdle, "", 0)
	if err := result.ErrorOrNil(); err != nil {
		m.log.Warn("session shutdown incomplete", "err", err)
		return err
	}
	m.log.Info("session shutdown", "roots_cleaned", len(roots))
	return nil
}

// RecoverResidue removes registrations recorded by an earlier control plane
// that did not shut down cleanly.
func (m *Manager) RecoverResidue(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	_ = ctx
	roots, err := m.store.Roots()
	if err != nil {
		return err
	}
	m.mu.Lock()
	active := m.injectedRoot
	m.mu.Unlock()
	var result *multierror.Error
	for _, root := range roots {
		if root.Path == active {
			continue
		}
		log := m.log.With("project", root.Path)
		log.Info("residue cleanup", "injected_at", root.InjectedAt, "pid", root.PID)
		if err := m.unregister(root.Path, log); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", root.Path, err))
		}
	}
	return result.ErrorOrNil()
}

// Headless runs one headless operation against root and returns the JSON
// result found in its output.
func (m *Manager) Headless(ctx context.Context, root, operation string, params json.RawMessage) (json.RawMessage, error) {
	root, err := projectcfg.ValidateRoot(root, m.cfg.Project)
	if err != nil {
		return nil, NewBridgeError(BridgeErrorConfig, "headless", err)
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return nil, NewBridgeError(BridgeErrorConfig, "headless", fmt.Errorf("%w: operation is required", schema.ErrInvalidRequest))
	}
	if len(params) > 0 && !json.Valid(params) {
		return nil, NewBridgeError(BridgeErrorConfig, "headless", fmt.Errorf("%w: params must be valid JSON", schema.ErrInvalidRequest))
	}
	log := m.log.With("project", root, "operation", operation)
	started := time.Now()
	res, err := m.launcher.RunHeadless(pslog.ContextWithLogger(ctx, log), HeadlessRequest{
		ProjectRoot: root,
		Operation:   operation,
		Params:      params,
		Timeout:     m.cfg.HeadlessTimeout,
	})
	if err != nil {
		berr := NewBridgeError(BridgeErrorLifecycle, "headless "+operation, err)
		berr.Elapsed = time.Since(started)
		return nil, berr
	}
	value, ok := jsonextract.Result(res.Stdout, res.Stderr)
	if !ok {
		detail := lastLine(res.Stderr)
		if detail == "" {
			detail = lastLine(res.Stdout)
		}
		return nil, NewBridgeError(BridgeErrorMalformed, "headless "+operation,
			fmt.Errorf("no JSON result (exit code %d): %s", res.ExitCode, detail))
	}
	log.Debug("headless result", "exit_code", res.ExitCode, "bytes", len(value), "duration_ms", time.Since(started).Milliseconds())
	return value, nil
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (m *Manager) register(root string, log pslog.Logger) bool {
	if m.store != nil {
		if err := m.store.Add(root, 0); err != nil {
			log.Warn("injection record failed", "err", err)
		}
	}
	changed, err := projectcfg.Inject(root, m.cfg.Project, m.cfg.Artifact)
	if err != nil {
		log.Warn("listener injection failed, starting without remote control", "err", err)
		_ = m.unregister(root, log)
		return false
	}
	m.mu.Lock()
	m.injectedRoot = root
	m.mu.Unlock()
	log.Info("listener injected", "changed", changed)
	return true
}

func (m *Manager) unregister(root string, log pslog.Logger) error {
	changed, err := projectcfg.Remove(root, m.cfg.Project)
	if err != nil {
		log.Warn("listener removal failed", "err", err)
	} else {
		log.Info("listener removed", "changed", changed)
		if m.store != nil {
			if serr := m.store.Remove(root); serr != nil {
				log.Warn("injection record update failed", "err", serr)
				err = serr
			}
		}
	}
	m.mu.Lock()
	if m.injectedRoot == root {
		m.injectedRoot = ""
	}
	m.mu.Unlock()
	return err
}

// terminate signals TERM, escalates to KILL after the grace period and
// waits for the pump to observe the exit.
func (m *Manager) terminate(ctx context.Context, sess *session, log pslog.Logger) {
	defer func() {
		if err := sess.handle.Close(); err != nil {
			log.Debug("session handle close failed", "err", err)
		}
	}()
	if sess.hasExited() {
		return
	}
	if err := sess.handle.Signal(ctx, ProcessSignalTERM); err != nil {
		log.Warn("session signal failed", "signal", ProcessSignalTERM, "err", err)
	}
	grace := time.NewTimer(m.cfg.StopGrace)
	defer grace.Stop()
	select {
	case <-sess.exited:
		return
	case <-ctx.Done():
	case <-grace.C:
	}
	log.Warn("session kill", "pid", sess.pid, "grace", m.cfg.StopGrace)
	if err := sess.handle.Signal(context.Background(), ProcessSignalKILL); err != nil {
		log.Warn("session signal failed", "signal", ProcessSignalKILL, "err", err)
	}
	wait := time.NewTimer(killWait)
	defer wait.Stop()
	select {
	case <-sess.exited:
	case <-wait.C:
		log.Error("session did not exit after kill", "pid", sess.pid)
	}
}

func (m *Manager) pump(sess *session, log pslog.Logger) {
	ctx := context.Background()
	stream := sess.handle.Outputs()
	for {
		line, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("session output read failed", "err", err)
			}
			break
		}
		m.record(sess, line, log)
	}
	sess.result, sess.waitErr = sess.handle.Wait(ctx)
	m.metrics.SessionEnded()

	fields := []any{"exit_code", sess.result.ExitCode, "duration_ms", time.Since(sess.started).Milliseconds()}
	if sess.result.Signal != "" {
		fields = append(fields, "signal", sess.result.Signal)
	}
	if sess.waitErr != nil {
		fields = append(fields, "err", sess.waitErr)
	}
	log.Info("session exited", fields...)
	if m.sink != nil {
		m.sink.OnExit(schema.ExitEvent{
			ProjectRoot: sess.root,
			PID:         sess.pid,
			ExitCode:    sess.result.ExitCode,
			Signal:      sess.result.Signal,
			At:          time.Now(),
		})
	}
	close(sess.exited)

	m.mu.Lock()
	observed := m.current == sess && m.state == schema.SessionRunning
	if observed {
		m.state = schema.SessionExited
	}
	m.mu.Unlock()
	if observed {
		m.emitState(schema.SessionExited, sess.root, sess.pid)
	}
}

func (m *Manager) record(sess *session, line OutputLine, log pslog.Logger) {
	buf := sess.stdout
	if line.Stream == StreamStderr {
		buf = sess.stderr
	}
	buf.Append(line.Text)
	m.metrics.OutputLine(string(line.Stream))
	now := time.Now()
	if m.sink != nil {
		m.sink.OnOutput(schema.OutputEvent{ProjectRoot: sess.root, Stream: string(line.Stream), Line: line.Text, At: now})
	}
	if line.Stream != StreamStdout {
		return
	}
	addr, ok := readyAddr(line.Text)
	if !ok || !sess.markReady(addr) {
		return
	}
	log.Info("listener ready", "addr", addr, "after_ms", now.Sub(sess.started).Milliseconds())
	if m.sink != nil {
		m.sink.OnReady(schema.ReadyEvent{ProjectRoot: sess.root, Addr: addr, At: now})
	}
}

// readyAddr extracts the address from a ready marker line.
func readyAddr(line string) (string, bool) {
	idx := strings.Index(line, schema.ListenerReadyMarker)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimSpace(line[idx+len(schema.ListenerReadyMarker):])
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "on"))
	return rest, true
}

func (m *Manager) setState(state schema.SessionState, root string, pid int) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.emitState(state, root, pid)
}

func (m *Manager) emitState(state schema.SessionState, root string, pid int) {
	if m.sink == nil {
		return
	}
	m.sink.OnState(schema.StateEvent{ProjectRoot: root, State: state, PID: pid, At: time.Now()})
}
