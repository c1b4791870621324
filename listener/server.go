// Package listener is the in-process command endpoint an engine host embeds.
// It owns one UDP socket, decodes command envelopes, runs them against the
// live scene tree and answers each with exactly one reply datagram.
package listener

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"pkt.systems/gamebridge/internal/input"
	"pkt.systems/gamebridge/internal/metrics"
	"pkt.systems/gamebridge/internal/script"
	"pkt.systems/gamebridge/scene"
	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

const (
	defaultFrameTimeout = 5 * time.Second
	readBufferSize      = 64 * 1024
)

// Host is the engine the listener runs inside.
type Host interface {
	Tree() *scene.Tree
	// Capture renders the current frame. It is called from a frame callback.
	Capture() (image.Image, error)
}

// Config controls the listener.
type Config struct {
	// Addr is the UDP bind address. Defaults to 127.0.0.1:9900.
	Addr string
	// OutputDir receives screenshots and script audit copies.
	OutputDir string
	// ScriptTimeout bounds a run_script call.
	ScriptTimeout time.Duration
	// FrameTimeout bounds the wait for the next rendered frame.
	FrameTimeout time.Duration
	// Ready receives the ready marker once the socket is bound. Defaults to os.Stdout.
	Ready io.Writer
}

// DefaultAddr is the well-known listener address.
func DefaultAddr() string {
	return net.JoinHostPort(schema.DefaultHost, strconv.Itoa(schema.DefaultPort))
}

// Server answers bridge commands.
type Server struct {
	cfg      Config
	host     Host
	log      pslog.Logger
	metrics  *metrics.Metrics
	injector *input.Injector
	scripts  *script.Runner
	now      func() time.Time

	mu       sync.Mutex
	conn     net.PacketConn
	inflight sync.WaitGroup
}

// New constructs a listener for host. logger and m may be nil.
func New(host Host, cfg Config, logger pslog.Logger, m *metrics.Metrics) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = ".gamebridge"
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = defaultFrameTimeout
	}
	if cfg.Ready == nil {
		cfg.Ready = os.Stdout
	}
	if logger != nil {
		logger = logger.With("component", "listener")
	}
	return &Server{
		cfg:      cfg,
		host:     host,
		log:      logger,
		metrics:  m,
		injector: input.New(host.Tree(), logger),
		scripts:  &script.Runner{Timeout: cfg.ScriptTimeout, Log: logger},
		now:      time.Now,
	}
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// ListenAndServe binds the configured address and serves until ctx is
// canceled. A bind failure is returned to the caller, which is expected to
// keep the engine running without remote control.
func (s *Server) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.cfg.Addr)
	if err != nil {
		if s.log != nil {
			s.log.Warn("listener bind failed", "addr", s.cfg.Addr, "err", err)
		}
		return fmt.Errorf("listener bind %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, conn)
}

// Serve answers datagrams arriving on conn until ctx is canceled. conn is
// closed on return.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	defer func() {
		_ = conn.Close()
		s.inflight.Wait()
	}()

	if _, err := fmt.Fprintf(s.cfg.Ready, "%s on %s\n", schema.ListenerReadyMarker, conn.LocalAddr()); err != nil && s.log != nil {
		s.log.Warn("listener ready marker write failed", "err", err)
	}
	if s.log != nil {
		s.log.Info("listener ready", "addr", conn.LocalAddr().String(), "output_dir", s.cfg.OutputDir)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if s.log != nil {
				s.log.Warn("listener read failed", "err", err)
			}
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		s.handle(ctx, conn, addr, data)
	}
}

func (s *Server) handle(ctx context.Context, conn net.PacketConn, addr net.Addr, data []byte) {
	started := s.now()
	cmd, payload, rejected := decode(data)
	if rejected != nil {
		s.send(conn, addr, cmd, *rejected, started)
		return
	}
	if cmd == schema.CommandInput {
		// Batches may wait between actions; the loop keeps answering other
		// commands meanwhile.
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.send(conn, addr, cmd, s.produce(ctx, cmd, payload), started)
		}()
		return
	}
	s.send(conn, addr, cmd, s.produce(ctx, cmd, payload), started)
}

func (s *Server) produce(ctx context.Context, cmd schema.Command, payload []byte) (reply any) {
	defer func() {
		if r := recover(); r != nil {
			if s.log != nil {
				s.log.Error("listener command panic", "command", cmd, "panic", r)
			}
			reply = internalError(cmd, r)
		}
	}()
	switch cmd {
	case schema.CommandPing:
		return schema.PongReply{Status: "pong"}
	case schema.CommandScreenshot:
		return s.screenshot(ctx)
	case schema.CommandInput:
		return s.input(ctx, payload)
	case schema.CommandUIElements:
		return s.uiElements(payload)
	case schema.CommandRunScript:
		return s.runScript(ctx, payload)
	}
	return schema.ErrorReply{Error: fmt.Sprintf("%v: %q", schema.ErrUnknownCommand, cmd), Command: cmd}
}

func internalError(cmd schema.Command, r any) schema.ErrorReply {
	return schema.ErrorReply{Error: fmt.Sprintf("internal error: %v", r), Command: cmd}
}

func (s *Server) send(conn net.PacketConn, addr net.Addr, cmd schema.Command, reply any, started time.Time) {
	data := encode(cmd, reply)
	if _, err := conn.WriteTo(data, addr); err != nil && s.log != nil {
		s.log.Warn("listener reply failed", "command", cmd, "remote", addr.String(), "err", err)
	}
	label := string(cmd)
	if label == "" {
		label = "invalid"
	}
	elapsed := s.now().Sub(started)
	outcome := outcomeOf(reply)
	s.metrics.ObserveListener(label, outcome, elapsed)
	if s.log != nil {
		s.log.Debug("listener reply", "command", label, "outcome", outcome, "bytes", len(data), "duration_ms", elapsed.Milliseconds())
	}
}

func outcomeOf(reply any) string {
	switch r := reply.(type) {
	case schema.ErrorReply:
		return metrics.OutcomeError
	case schema.InputReply:
		if r.Error != "" {
			return metrics.OutcomeError
		}
	}
	return metrics.OutcomeOK
}

func (s *Server) outputPath(parts ...string) string {
	return filepath.Join(append([]string{s.cfg.OutputDir}, parts...)...)
}
