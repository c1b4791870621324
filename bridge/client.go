// Package bridge is the control-plane client of the embedded listener. Every
// call sends one datagram from a fresh socket and waits for one reply.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"pkt.systems/gamebridge/core"
	"pkt.systems/gamebridge/internal/metrics"
	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

// DefaultTimeout bounds a call when the client has no timeout configured.
const DefaultTimeout = 10 * time.Second

const readBufferSize = 64 * 1024

// Config controls the client.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Client sends commands to one listener. Calls are serialized because the
// protocol carries no correlation id.
type Client struct {
	addr    string
	timeout time.Duration
	log     pslog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

// New constructs a client. logger and m may be nil.
func New(cfg Config, logger pslog.Logger, m *metrics.Metrics) *Client {
	host := cfg.Host
	if host == "" {
		host = schema.DefaultHost
	}
	port := cfg.Port
	if port <= 0 {
		port = schema.DefaultPort
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger != nil {
		logger = logger.With("component", "bridge")
	}
	return &Client{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
		log:     logger,
		metrics: m,
	}
}

// Addr returns the listener address.
func (c *Client) Addr() string {
	return c.addr
}

// Send encodes {command, ...params}, waits for the reply and returns it
// undecoded. params must encode to a JSON object or be nil. timeout overrides
// the client default when positive. Target-side errors are not interpreted
// here; they arrive inside the reply.
func (c *Client) Send(ctx context.Context, cmd schema.Command, params any, timeout time.Duration) (json.RawMessage, error) {
	payload, err := Envelope(cmd, params)
	if err != nil {
		return nil, &core.BridgeError{Kind: core.BridgeErrorConfig, Op: "encode", Command: cmd, Err: err}
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	started := time.Now()
	reply, err := c.exchange(ctx, cmd, payload, timeout)
	elapsed := time.Since(started)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeTransport
		var bridgeErr *core.BridgeError
		if errors.As(err, &bridgeErr) {
			bridgeErr.Elapsed = elapsed
			if bridgeErr.Kind == core.BridgeErrorTimeout {
				outcome = metrics.OutcomeTimeout
			}
		}
	}
	c.metrics.ObserveBridge(string(cmd), outcome, elapsed)
	if c.log != nil {
		if err != nil {
			c.log.Warn("bridge send failed", "command", cmd, "addr", c.addr, "duration_ms", elapsed.Milliseconds(), "err", err)
		} else {
			c.log.Debug("bridge send ok", "command", cmd, "bytes", len(reply), "duration_ms", elapsed.Milliseconds())
		}
	}
	return reply, err
}

func (c *Client) exchange(ctx context.Context, cmd schema.Command, payload []byte, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", c.addr)
	if err != nil {
		return nil, &core.BridgeError{Kind: core.BridgeErrorTransport, Op: "dial", Command: cmd, Err: err}
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(payload); err != nil {
		return nil, &core.BridgeError{Kind: core.BridgeErrorTransport, Op: "send", Command: cmd, Err: err}
	}
	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, &core.BridgeError{Kind: core.BridgeErrorTransport, Op: "receive", Command: cmd, Err: ctxErr}
			}
			return nil, &core.BridgeError{Kind: core.BridgeErrorTimeout, Op: "receive", Command: cmd, Err: fmt.Errorf("no reply within %s", timeout)}
		}
		return nil, &core.BridgeError{Kind: core.BridgeErrorTransport, Op: "receive", Command: cmd, Err: err}
	}
	reply := append(json.RawMessage(nil), buf[:n]...)
	if !isObject(reply) {
		return nil, &core.BridgeError{Kind: core.BridgeErrorMalformed, Op: "decode", Command: cmd, Err: fmt.Errorf("reply is not a JSON object: %q", preview(reply))}
	}
	return reply, nil
}

// Envelope encodes a command envelope. params must encode to a JSON object;
// a "command" key in params is overwritten.
func Envelope(cmd schema.Command, params any) ([]byte, error) {
	if _, ok := schema.ParseCommand(string(cmd)); !ok {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownCommand, cmd)
	}
	fields := map[string]json.RawMessage{}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		if string(data) != "null" {
			if err := json.Unmarshal(data, &fields); err != nil {
				return nil, fmt.Errorf("%w: params must be an object", schema.ErrInvalidRequest)
			}
		}
	}
	name, _ := json.Marshal(string(cmd))
	fields["command"] = name
	return json.Marshal(fields)
}

func isObject(data []byte) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(data, &obj) == nil && obj != nil
}

func preview(data []byte) string {
	const max = 120
	if len(data) <= max {
		return string(data)
	}
	return string(data[:max]) + "..."
}
