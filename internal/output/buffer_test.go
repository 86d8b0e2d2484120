package output

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func drain(t *testing.T, s *Subscriber) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []string
	for {
		line, ok := s.Next(ctx)
		if !ok {
			break
		}
		got = append(got, line)
	}
	if ctx.Err() != nil {
		t.Fatalf("subscriber did not terminate: got %v", got)
	}
	return got
}

func TestOrderPreserved(t *testing.T) {
	b := NewBuffer()
	done := make(chan struct{})
	sub := b.Subscribe(done, 20*time.Millisecond)

	go func() {
		for _, l := range []string{"a", "b", "c"} {
			b.Append(l)
			time.Sleep(5 * time.Millisecond)
		}
		b.Close()
		close(done)
	}()

	got := drain(t, sub)
	if strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("got %v", got)
	}
}

func TestLateSubscriberSeesHistory(t *testing.T) {
	b := NewBuffer()
	done := make(chan struct{})
	b.Append("a")
	b.Append("b")

	sub := b.Subscribe(done, 20*time.Millisecond)
	first, _ := sub.Next(context.Background())
	second, _ := sub.Next(context.Background())
	if first != "a" || second != "b" {
		t.Fatalf("history %q %q", first, second)
	}

	b.Append("c")
	b.Close()
	close(done)
	rest := drain(t, sub)
	if strings.Join(rest, ",") != "c" {
		t.Fatalf("rest %v", rest)
	}
}

func TestManySubscribersSeeSameSequence(t *testing.T) {
	b := NewBuffer()
	done := make(chan struct{})
	subs := []*Subscriber{b.Subscribe(done, 10*time.Millisecond), b.Subscribe(done, 10*time.Millisecond)}
	for i := 0; i < 100; i++ {
		b.Append(strings.Repeat("x", i%7))
	}
	b.Close()
	close(done)
	want := b.Lines()
	for i, s := range subs {
		got := drain(t, s)
		if len(got) != len(want) {
			t.Fatalf("subscriber %d got %d lines, want %d", i, len(got), len(want))
		}
	}
}

func TestSubscriberEndsAfterExitWithoutEOF(t *testing.T) {
	b := NewBuffer()
	done := make(chan struct{})
	b.Append("only")
	close(done)
	// Never closed: a detached child could still hold the pipe.
	got := drain(t, b.Subscribe(done, 20*time.Millisecond))
	if len(got) != 1 || got[0] != "only" {
		t.Fatalf("got %v", got)
	}
}

func TestSubscriberHonoursContext(t *testing.T) {
	b := NewBuffer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.Subscribe(make(chan struct{}), time.Second).Next(ctx); ok {
		t.Fatalf("expected no line after cancel")
	}
}

func TestPumpDecodesLeniently(t *testing.T) {
	b := NewBuffer()
	n, err := b.Pump(strings.NewReader("ok\r\nbad \xff byte\nno newline"))
	if err != nil {
		t.Fatalf("pump: %v", err)
	}
	if n != 3 {
		t.Fatalf("lines %d", n)
	}
	lines := b.Lines()
	if lines[0] != "ok" || lines[1] != "bad \uFFFD byte" || lines[2] != "no newline" {
		t.Fatalf("lines %q", lines)
	}
	if !b.Closed() {
		t.Fatalf("pump must close the buffer at EOF")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestPumpClosesOnReadError(t *testing.T) {
	b := NewBuffer()
	if _, err := b.Pump(failingReader{}); err == nil {
		t.Fatalf("expected read error")
	}
	if !b.Closed() {
		t.Fatalf("buffer must be closed after read error")
	}
}

func TestAppendAfterCloseDropped(t *testing.T) {
	b := NewBuffer()
	b.Close()
	b.Append("late")
	if b.Len() != 0 {
		t.Fatalf("expected append after close to be dropped")
	}
}
