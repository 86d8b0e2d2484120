// Package output buffers a process's merged output and replays it to any
// number of subscribers, including ones that attach late.
//
// The buffer grows without bound for the lifetime of its task; there is no
// eviction.
package output

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// Buffer is an ordered, append-only line log with one producer and many readers.
type Buffer struct {
	mu      sync.Mutex
	lines   []string
	closed  bool
	changed chan struct{}
}

func NewBuffer() *Buffer {
	return &Buffer{changed: make(chan struct{})}
}

// Append adds a line and wakes waiting subscribers. Appends after Close are dropped.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.lines = append(b.lines, line)
	b.broadcast()
}

// Close marks end of stream: no more lines will ever arrive.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.broadcast()
}

// must hold b.mu
func (b *Buffer) broadcast() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Lines returns a copy of everything buffered so far.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// since returns lines at or after cursor, whether the stream is closed, and
// a channel closed on the next change.
func (b *Buffer) since(cursor int) ([]string, bool, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	if cursor < len(b.lines) {
		out = make([]string, len(b.lines)-cursor)
		copy(out, b.lines[cursor:])
	}
	return out, b.closed, b.changed
}

// Pump reads r line by line into the buffer until EOF, then closes the
// buffer. Invalid UTF-8 is replaced, never fatal. It returns the number of
// lines read and any read error other than EOF.
func (b *Buffer) Pump(r io.Reader) (int, error) {
	defer b.Close()
	br := bufio.NewReader(r)
	n := 0
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			b.Append(DecodeLine(raw))
			n++
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
	}
}

// DecodeLine strips the line terminator and replaces invalid bytes.
func DecodeLine(raw []byte) string {
	s := strings.TrimRight(string(raw), "\n")
	s = strings.TrimSuffix(s, "\r")
	return strings.ToValidUTF8(s, "\uFFFD")
}

// Subscriber reads a Buffer from the beginning. It is not safe for concurrent use;
// each reader takes its own.
type Subscriber struct {
	buf     *Buffer
	done    <-chan struct{}
	poll    time.Duration
	cursor  int
	pending []string
	grace   bool
}

// Subscribe starts a reader at the first line. done is closed when the
// producing process has exited; poll bounds how long Next waits between
// re-checks of done.
func (b *Buffer) Subscribe(done <-chan struct{}, poll time.Duration) *Subscriber {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Subscriber{buf: b, done: done, poll: poll}
}

// Next returns the next line in order. It returns false once the process has
// exited and everything buffered has been delivered, or when ctx ends.
//
// After exit, a subscriber waits for end of stream, but at most one poll
// interval without new output: a detached grandchild holding the pipe open
// must not hang readers.
func (s *Subscriber) Next(ctx context.Context) (string, bool) {
	for {
		if len(s.pending) > 0 {
			line := s.pending[0]
			s.pending = s.pending[1:]
			return line, true
		}
		lines, closed, changed := s.buf.since(s.cursor)
		if len(lines) > 0 {
			s.cursor += len(lines)
			s.pending = lines
			continue
		}
		finished := isClosed(s.done)
		if finished && (closed || s.grace) {
			return "", false
		}

		doneCh := s.done
		if finished {
			doneCh = nil
		}
		timer := time.NewTimer(s.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", false
		case <-changed:
			timer.Stop()
		case <-doneCh:
			timer.Stop()
		case <-timer.C:
			if finished {
				s.grace = true
			}
		}
	}
}

// Delivered is the number of lines handed out so far.
func (s *Subscriber) Delivered() int {
	return s.cursor - len(s.pending)
}

func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
