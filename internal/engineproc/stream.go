package engineproc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"syscall"

	"pkt.systems/gamebridge/core"
	"pkt.systems/pslog"
)

const maxLineSize = 1024 * 1024

// lineStream merges line-oriented readers into one ordered-per-stream channel.
type lineStream struct {
	lines chan core.OutputLine
	errMu sync.Mutex
	err   error
	wg    sync.WaitGroup
	done  chan struct{}
	log   pslog.Logger
}

type source struct {
	kind   core.StreamKind
	reader io.Reader
}

func newLineStream(log pslog.Logger, sources ...source) *lineStream {
	stream := &lineStream{
		lines: make(chan core.OutputLine, 256),
		done:  make(chan struct{}),
		log:   log,
	}
	stream.wg.Add(len(sources))
	for _, src := range sources {
		go stream.pump(src)
	}
	go func() {
		stream.wg.Wait()
		close(stream.lines)
		close(stream.done)
	}()
	return stream
}

func (s *lineStream) pump(src source) {
	defer s.wg.Done()
	scanner := bufio.NewScanner(src.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	count := 0
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r")
		count++
		s.lines <- core.OutputLine{Stream: src.kind, Text: text}
	}
	if err := scanner.Err(); err != nil && !isClosedErr(err) {
		if s.log != nil {
			s.log.Warn("engine output read failed", "stream", src.kind, "err", err)
		}
		s.setErr(err)
	}
	if s.log != nil {
		s.log.Debug("engine output closed", "stream", src.kind, "lines", count)
	}
}

// isClosedErr reports read errors that only mean the other side went away. A
// PTY master returns EIO once the child exits.
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, io.ErrClosedPipe)
}

func (s *lineStream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *lineStream) Next(ctx context.Context) (core.OutputLine, error) {
	select {
	case <-ctx.Done():
		return core.OutputLine{}, ctx.Err()
	case line, ok := <-s.lines:
		if ok {
			return line, nil
		}
		s.errMu.Lock()
		err := s.err
		s.errMu.Unlock()
		if err != nil {
			return core.OutputLine{}, err
		}
		return core.OutputLine{}, io.EOF
	}
}

func (s *lineStream) Close() error {
	return nil
}
