package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

var errProvider = errors.New("provider unavailable")

// ---- Audio ----

type stubNormalizer struct {
	err error
}

func (s *stubNormalizer) Normalize(ctx context.Context, raw []byte, format string) (model.PCM, error) {
	if s.err != nil {
		return model.PCM{}, s.err
	}
	return model.PCM{Data: raw}, nil
}

type stubSTT struct {
	text string
	err  error
}

func (s *stubSTT) Transcribe(ctx context.Context, audio model.PCM, language string) (string, error) {
	return s.text, s.err
}

// ---- Classification ----

type stubClassifier struct {
	prof model.EmotionProfile
	err  error
	// calls counts Classify invocations.
	mu    sync.Mutex
	calls int
}

func (s *stubClassifier) Classify(ctx context.Context, text string) (model.EmotionProfile, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return model.DefaultEmotionProfile(), s.err
	}
	return s.prof, nil
}

func dominantProfile(l model.EmotionLabel) model.EmotionProfile {
	return model.NewEmotionProfile(map[model.EmotionLabel]int{l: 80}, l)
}

type stubCompleter struct {
	out   string
	err   error
	calls int
	last  adapter.StructuredRequest
}

func (s *stubCompleter) CompleteJSON(ctx context.Context, req adapter.StructuredRequest) (string, error) {
	s.calls++
	s.last = req
	return s.out, s.err
}

// ---- Search ----

type stubSearcher struct {
	res   adapter.SearchResult
	err   error
	query string
}

func (s *stubSearcher) Search(ctx context.Context, query string) (adapter.SearchResult, error) {
	s.query = query
	return s.res, s.err
}

// ---- Chat ----

type stubChat struct {
	deltas []string
	// err is returned from ChatStream; streamErr finishes the stream.
	err       error
	streamErr error
	panicMsg  string
	last      adapter.ChatRequest
}

func (s *stubChat) ChatStream(ctx context.Context, req adapter.ChatRequest) (*adapter.TextStream, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return adapter.StreamOf(s.streamErr, s.deltas...), nil
}

// ---- Speech ----

type stubTTS struct {
	chunks [][]byte
	err    error
	// block makes the stream send its chunks and then wait for ctx.
	block bool
	text  string
	// panicMsg panics inside the call after closing called, if set.
	panicMsg string
	called   chan struct{}
}

func (s *stubTTS) SynthesizeStream(ctx context.Context, text, voice string) (*adapter.AudioStream, error) {
	s.text = text
	if s.panicMsg != "" {
		if s.called != nil {
			close(s.called)
		}
		panic(s.panicMsg)
	}
	if s.err != nil {
		return nil, s.err
	}
	if !s.block {
		return adapter.StreamOf[[]byte](nil, s.chunks...), nil
	}
	st := adapter.NewAudioStream()
	go func() {
		for _, c := range s.chunks {
			if !st.Send(ctx, c) {
				st.Finish(ctx.Err())
				return
			}
		}
		<-ctx.Done()
		st.Finish(ctx.Err())
	}()
	return st, nil
}

// ---- Telemetry / tokens ----

type recordingPublisher struct {
	mu   sync.Mutex
	recs []model.TurnLog
}

func (p *recordingPublisher) Publish(rec model.TurnLog) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recs)
}

// runeCounter counts one token per rune, enough to exercise budgeting.
type runeCounter struct{}

func (runeCounter) Estimate(text string) int { return len([]rune(text)) }
