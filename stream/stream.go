// Package stream provides StreamChannel implementations for callers that
// consume partial flow output.
package stream

import (
	"fmt"
	"io"
	"sync"

	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/types"
	"github.com/warriorguo/flowexec/utils"
)

var (
	_ types.StreamChannel = &BufferChannel{}
	_ types.StreamChannel = &SSEChannel{}
)

var ErrClosed = errors.New("stream closed")

// BufferChannel keeps every chunk in memory. Used by tests and by callers
// that read the whole output after the run.
type BufferChannel struct {
	mu     sync.Mutex
	chunks []any
	ended  int
	closed bool
}

func NewBufferChannel() *BufferChannel {
	return &BufferChannel{}
}

func (b *BufferChannel) Write(chunk any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.chunks = append(b.chunks, chunk)
	return nil
}

func (b *BufferChannel) End() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.ended++
	b.chunks = append(b.chunks, types.StreamEndSentinel)
	return nil
}

func (b *BufferChannel) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *BufferChannel) Chunks() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]any(nil), b.chunks...)
}

// EndCount is how many times the end marker was written.
func (b *BufferChannel) EndCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

func (b *BufferChannel) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type flusher interface {
	Flush()
}

// SSEChannel writes server-sent event frames ("data: <json>\n\n") to w,
// flushing after every frame when w supports it.
type SSEChannel struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func NewSSEChannel(w io.Writer) *SSEChannel {
	return &SSEChannel{w: w}
}

func (s *SSEChannel) Write(chunk any) error {
	var payload string
	switch v := chunk.(type) {
	case string:
		payload = v
	case []byte:
		payload = string(v)
	default:
		b, err := utils.Serialize(chunk)
		if err != nil {
			return errors.Annotatef(err, "encode stream chunk")
		}
		payload = string(b)
	}
	return s.frame(payload)
}

func (s *SSEChannel) End() error {
	return s.frame(types.StreamEndSentinel)
}

func (s *SSEChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.w.(io.Closer); ok {
		return errors.Trace(c.Close())
	}
	return nil
}

func (s *SSEChannel) frame(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return errors.Trace(err)
	}
	if f, ok := s.w.(flusher); ok {
		f.Flush()
	}
	return nil
}
