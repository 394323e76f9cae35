package ai

import (
	"context"

	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/metrics"
)

// Limiter caps concurrent outbound AI calls. One Limiter is shared by every
// wrapped port so the cap is global per process.
type Limiter struct {
	name string
	sem  chan struct{}
}

// NewLimiter returns nil when maxConcurrent <= 0; a nil Limiter wraps
// nothing.
func NewLimiter(name string, maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		return nil
	}
	return &Limiter{name: name, sem: make(chan struct{}, maxConcurrent)}
}

func (l *Limiter) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}
	metrics.IncLimiterWait(l.name)
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) release() { <-l.sem }

// holdStream keeps the slot until the consumer has taken every chunk of src.
func holdStream[T any](ctx context.Context, l *Limiter, src *adapter.Stream[T]) *adapter.Stream[T] {
	out := adapter.NewStream[T](0)
	go func() {
		defer l.release()
		for v := range src.Chunks() {
			if !out.Send(ctx, v) {
				out.Finish(ctx.Err())
				for range src.Chunks() {
				}
				return
			}
		}
		out.Finish(src.Err())
	}()
	return out
}

// ---- Chat ----

type limitedChat struct {
	inner adapter.ChatStreamer
	l     *Limiter
}

func (l *Limiter) Chat(inner adapter.ChatStreamer) adapter.ChatStreamer {
	if l == nil || inner == nil {
		return inner
	}
	return &limitedChat{inner: inner, l: l}
}

func (c *limitedChat) ChatStream(ctx context.Context, req adapter.ChatRequest) (*adapter.TextStream, error) {
	if err := c.l.acquire(ctx); err != nil {
		return nil, err
	}
	st, err := c.inner.ChatStream(ctx, req)
	if err != nil {
		c.l.release()
		return nil, err
	}
	return holdStream(ctx, c.l, st), nil
}

// ---- Structured ----

type limitedCompleter struct {
	inner adapter.StructuredCompleter
	l     *Limiter
}

func (l *Limiter) Completer(inner adapter.StructuredCompleter) adapter.StructuredCompleter {
	if l == nil || inner == nil {
		return inner
	}
	return &limitedCompleter{inner: inner, l: l}
}

func (c *limitedCompleter) CompleteJSON(ctx context.Context, req adapter.StructuredRequest) (string, error) {
	if err := c.l.acquire(ctx); err != nil {
		return "", err
	}
	defer c.l.release()
	return c.inner.CompleteJSON(ctx, req)
}

// ---- Speech ----

type limitedSTT struct {
	inner adapter.Transcriber
	l     *Limiter
}

func (l *Limiter) Transcriber(inner adapter.Transcriber) adapter.Transcriber {
	if l == nil || inner == nil {
		return inner
	}
	return &limitedSTT{inner: inner, l: l}
}

func (c *limitedSTT) Transcribe(ctx context.Context, audio model.PCM, language string) (string, error) {
	if err := c.l.acquire(ctx); err != nil {
		return "", err
	}
	defer c.l.release()
	return c.inner.Transcribe(ctx, audio, language)
}

type limitedTTS struct {
	inner adapter.SpeechSynthesizer
	l     *Limiter
}

func (l *Limiter) Synthesizer(inner adapter.SpeechSynthesizer) adapter.SpeechSynthesizer {
	if l == nil || inner == nil {
		return inner
	}
	return &limitedTTS{inner: inner, l: l}
}

func (c *limitedTTS) SynthesizeStream(ctx context.Context, text, voice string) (*adapter.AudioStream, error) {
	if err := c.l.acquire(ctx); err != nil {
		return nil, err
	}
	st, err := c.inner.SynthesizeStream(ctx, text, voice)
	if err != nil {
		c.l.release()
		return nil, err
	}
	return holdStream(ctx, c.l, st), nil
}

// ---- Search ----

type limitedSearch struct {
	inner adapter.ContentSearcher
	l     *Limiter
}

func (l *Limiter) Searcher(inner adapter.ContentSearcher) adapter.ContentSearcher {
	if l == nil || inner == nil {
		return inner
	}
	return &limitedSearch{inner: inner, l: l}
}

func (c *limitedSearch) Search(ctx context.Context, query string) (adapter.SearchResult, error) {
	if err := c.l.acquire(ctx); err != nil {
		return adapter.SearchResult{}, err
	}
	defer c.l.release()
	return c.inner.Search(ctx, query)
}
