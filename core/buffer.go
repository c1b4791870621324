package core

import "sync"

// DefaultOutputMaxLines caps each captured output stream.
const DefaultOutputMaxLines = 2000

// bufferView is a snapshot of a buffer's visible state.
type bufferView struct {
	Lines   []string
	Total   int
	Evicted int
}

// buffer keeps the most recent lines of one output stream. Once maxLines is
// exceeded the oldest lines are evicted.
type buffer struct {
	mu       sync.Mutex
	lines    []string
	maxLines int
	total    int
	evicted  int
}

func newBuffer() *buffer {
	return &buffer{maxLines: DefaultOutputMaxLines}
}

func newBufferWithMaxLines(maxLines int) *buffer {
	buf := newBuffer()
	if maxLines > 0 {
		buf.maxLines = maxLines
	}
	return buf
}

// Append adds lines, evicting from the front when over capacity.
func (b *buffer) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, lines...)
	b.total += len(lines)
	maxLines := b.maxLines
	if maxLines <= 0 {
		maxLines = DefaultOutputMaxLines
	}
	if len(b.lines) > maxLines {
		trim := len(b.lines) - maxLines
		b.evicted += trim
		// Copy so the dropped prefix can be collected.
		b.lines = append(make([]string, 0, maxLines), b.lines[trim:]...)
	}
}

// Snapshot returns the last limit lines, or all retained lines when limit
// is not positive.
func (b *buffer) Snapshot(limit int) bufferView {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := 0
	if limit > 0 && limit < len(b.lines) {
		start = len(b.lines) - limit
	}
	lines := make([]string, len(b.lines)-start)
	copy(lines, b.lines[start:])
	return bufferView{Lines: lines, Total: b.total, Evicted: b.evicted}
}

// Len returns the number of retained lines.
func (b *buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
