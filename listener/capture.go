package listener

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image/png"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"

	"pkt.systems/gamebridge/internal/fsutil"
	"pkt.systems/gamebridge/schema"
)

const stampLayout = "20060102T150405.000000000"

// screenshot queues a capture for the next rendered frame and waits for it.
func (s *Server) screenshot(ctx context.Context) any {
	done := make(chan any, 1)
	s.host.Tree().OnNextFrame(func(frame uint64) {
		defer func() {
			if r := recover(); r != nil {
				if s.log != nil {
					s.log.Error("screenshot capture panic", "frame", frame, "panic", r)
				}
				done <- internalError(schema.CommandScreenshot, r)
			}
		}()
		path, err := s.captureFrame()
		if err != nil {
			done <- schema.ErrorReply{Error: fmt.Sprintf("screenshot failed: %v", err), Command: schema.CommandScreenshot}
			return
		}
		if s.log != nil {
			s.log.Debug("screenshot saved", "frame", frame, "path", path)
		}
		done <- schema.ScreenshotReply{Path: path}
	})

	timer := time.NewTimer(s.cfg.FrameTimeout)
	defer timer.Stop()
	select {
	case reply := <-done:
		return reply
	case <-timer.C:
		return schema.ErrorReply{Error: fmt.Sprintf("screenshot failed: no frame rendered within %s", s.cfg.FrameTimeout), Command: schema.CommandScreenshot}
	case <-ctx.Done():
		return schema.ErrorReply{Error: fmt.Sprintf("screenshot failed: %v", ctx.Err()), Command: schema.CommandScreenshot}
	}
}

func (s *Server) captureFrame() (string, error) {
	img, err := s.host.Capture()
	if err != nil {
		return "", err
	}
	if img == nil {
		return "", fmt.Errorf("no frame available")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	path := s.outputPath("screenshots", "screenshot_"+s.now().UTC().Format(stampLayout)+".png")
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return filepath.Abs(path)
}

// writeAudit keeps a copy of every script source, named by time and content
// digest.
func (s *Server) writeAudit(source string) (string, error) {
	sum := blake2b.Sum256([]byte(source))
	digest := hex.EncodeToString(sum[:8])
	path := s.outputPath("scripts", s.now().UTC().Format(stampLayout)+"_"+digest+".js")
	if err := fsutil.WriteFileAtomic(path, []byte(source), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
