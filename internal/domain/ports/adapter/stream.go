package adapter

import (
	"bytes"
	"context"
	"strings"
	"sync"
)

// Stream carries incremental provider output. The producer calls Send for
// each chunk and Finish exactly once; the consumer ranges over Chunks and
// reads Err after the channel is closed.
type Stream[T any] struct {
	ch   chan T
	err  error
	mu   sync.Mutex
	once sync.Once
}

type (
	TextStream  = Stream[string]
	AudioStream = Stream[[]byte]
)

func NewStream[T any](buffer int) *Stream[T] {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream[T]{ch: make(chan T, buffer)}
}

func NewTextStream() *TextStream   { return NewStream[string](32) }
func NewAudioStream() *AudioStream { return NewStream[[]byte](32) }

func (s *Stream[T]) Chunks() <-chan T { return s.ch }

// Send blocks until the consumer takes v or ctx is done.
func (s *Stream[T]) Send(ctx context.Context, v T) bool {
	select {
	case s.ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish records err and closes the channel. Later calls are no-ops.
func (s *Stream[T]) Finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}

func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StreamOf returns a finished stream holding items, for tests and
// providers that only answer in one piece.
func StreamOf[T any](err error, items ...T) *Stream[T] {
	s := NewStream[T](len(items))
	for _, it := range items {
		s.ch <- it
	}
	s.Finish(err)
	return s
}

// Tee copies every chunk of src to two streams: one for the incremental
// consumer, one for the collector. Both must be drained. When ctx ends
// first, both finish with ctx.Err() and src is drained in the background.
func Tee[T any](ctx context.Context, src *Stream[T]) (*Stream[T], *Stream[T]) {
	a, b := NewStream[T](cap(src.ch)), NewStream[T](cap(src.ch))
	go func() {
		for v := range src.Chunks() {
			if !a.Send(ctx, v) || !b.Send(ctx, v) {
				a.Finish(ctx.Err())
				b.Finish(ctx.Err())
				go drain(src)
				return
			}
		}
		a.Finish(src.Err())
		b.Finish(src.Err())
	}()
	return a, b
}

func drain[T any](s *Stream[T]) {
	for range s.Chunks() {
	}
}

// JoinText collects a text stream into one string.
func JoinText(s *TextStream) (string, error) {
	var b strings.Builder
	for d := range s.Chunks() {
		b.WriteString(d)
	}
	return b.String(), s.Err()
}

// JoinAudio collects an audio stream into one buffer.
func JoinAudio(s *AudioStream) ([]byte, error) {
	var buf bytes.Buffer
	for c := range s.Chunks() {
		buf.Write(c)
	}
	return buf.Bytes(), s.Err()
}
