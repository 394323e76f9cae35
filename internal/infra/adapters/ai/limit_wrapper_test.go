package ai

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voice-companion/internal/domain/ports/adapter"
)

type slowCompleter struct {
	inFlight, peak atomic.Int32
}

func (s *slowCompleter) CompleteJSON(ctx context.Context, req adapter.StructuredRequest) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return "{}", nil
}

func TestLimiter_CapsConcurrency(t *testing.T) {
	inner := &slowCompleter{}
	c := NewLimiter("test", 2).Completer(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.CompleteJSON(context.Background(), adapter.StructuredRequest{})
		}()
	}
	wg.Wait()
	if p := inner.peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds limit", p)
	}
}

type streamChat struct{ deltas []string }

func (s streamChat) ChatStream(ctx context.Context, req adapter.ChatRequest) (*adapter.TextStream, error) {
	return adapter.StreamOf(nil, s.deltas...), nil
}

func TestLimiter_StreamHoldsSlotUntilDrained(t *testing.T) {
	l := NewLimiter("test", 1)
	chat := l.Chat(streamChat{deltas: []string{"a", "b"}})

	st, err := chat.ChatStream(context.Background(), adapter.ChatRequest{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := chat.ChatStream(ctx, adapter.ChatRequest{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second call should wait for the slot, got %v", err)
	}

	if txt, err := adapter.JoinText(st); err != nil || txt != "ab" {
		t.Fatalf("unexpected stream result %q %v", txt, err)
	}
	st2, err := chat.ChatStream(context.Background(), adapter.ChatRequest{})
	if err != nil {
		t.Fatalf("slot should be free after draining: %v", err)
	}
	_, _ = adapter.JoinText(st2)
}

func TestLimiter_NilPassesThrough(t *testing.T) {
	inner := &streamChat{}
	l := NewLimiter("test", 0)
	if got := l.Chat(inner); got != adapter.ChatStreamer(inner) {
		t.Fatalf("nil limiter should return the inner port")
	}
}
