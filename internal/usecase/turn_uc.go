package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/domain/ports/repository"
	"voice-companion/internal/infra/logging"
	"voice-companion/internal/infra/metrics"
)

// Compile-time check
var _ TurnUseCase = (*turnUC)(nil)

// ChatFallbackText is spoken when the chat model cannot answer.
const ChatFallbackText = "죄송해요, 지금은 답변을 드리기 어려워요. 잠시 후 다시 말씀해 주세요."

// TurnRequest is one spoken utterance to answer.
type TurnRequest struct {
	Audio      []byte
	Format     string
	Character  string
	SessionKey string
}

// TurnUseCase runs the turn pipeline: transcribe, classify, branch,
// answer, synthesize, commit.
type TurnUseCase interface {
	// HandleTurn runs a turn to completion and returns the collected result.
	HandleTurn(ctx context.Context, req TurnRequest) (*model.TurnResult, error)
	// StreamTurn runs a turn and delivers events as they happen. The
	// channel is closed after an EventResult or EventError. The caller must
	// drain it or cancel ctx.
	StreamTurn(ctx context.Context, req TurnRequest) <-chan model.TurnEvent
}

// TurnDeps are the collaborators of the turn pipeline. Recommender,
// Publisher and Tokens may be nil.
type TurnDeps struct {
	Normalizer  adapter.AudioNormalizer
	STT         adapter.Transcriber
	Classifier  EmotionClassifier
	Recommender Recommender
	Chat        adapter.ChatStreamer
	TTS         adapter.SpeechSynthesizer
	History     repository.HistoryStore
	Characters  *model.Catalog
	Partition   model.Partition
	Publisher   adapter.TurnLogPublisher
	Tokens      adapter.TokenEstimator
}

// TurnOptions are the per-deployment knobs.
type TurnOptions struct {
	ChatModel     string
	Language      string
	HistoryMaxLen int
	// TokenBudget caps system prompt plus context; 0 disables trimming.
	TokenBudget int
	MaxTokens   int
	Dev         bool
}

type turnUC struct {
	d    TurnDeps
	opts TurnOptions
	now  func() time.Time
	log  *zerolog.Logger
}

func NewTurnUseCase(d TurnDeps, opts TurnOptions, logger *zerolog.Logger) *turnUC {
	if opts.HistoryMaxLen <= 0 {
		opts.HistoryMaxLen = 6
	}
	if d.Characters == nil {
		d.Characters = model.NewCatalog()
	}
	l := logger.With().Str("component", "turn").Logger()
	return &turnUC{d: d, opts: opts, now: time.Now, log: &l}
}

// WithClock replaces the time source, for tests.
func (t *turnUC) WithClock(now func() time.Time) *turnUC {
	t.now = now
	return t
}

func (t *turnUC) HandleTurn(ctx context.Context, req TurnRequest) (*model.TurnResult, error) {
	var (
		res *model.TurnResult
		err error
	)
	for ev := range t.StreamTurn(ctx, req) {
		switch ev.Kind {
		case model.EventResult:
			res = ev.Result
		case model.EventError:
			err = ev.Err
		}
	}
	if err == nil && res == nil {
		err = fmt.Errorf("%w: %w", domain.ErrTurnFailed, ctx.Err())
	}
	return res, err
}

func (t *turnUC) StreamTurn(ctx context.Context, req TurnRequest) <-chan model.TurnEvent {
	out := make(chan model.TurnEvent, 16)
	go func() {
		defer close(out)
		emit := func(ev model.TurnEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		res, err := t.run(ctx, req, emit)
		if err != nil {
			// The error must reach a live consumer even when the buffer is
			// full; it is only dropped once the caller is gone.
			ev := model.TurnEvent{Kind: model.EventError, State: model.StateErrored, Err: err}
			select {
			case out <- ev:
			default:
				emit(ev)
			}
			return
		}
		emit(model.TurnEvent{Kind: model.EventResult, State: model.StateCompleted, Result: res})
	}()
	return out
}

// turnRun is the mutable state of one turn.
type turnRun struct {
	res   *model.TurnResult
	char  model.Character
	emit  func(model.TurnEvent) bool
	state model.TurnState
	log   *zerolog.Logger
}

func (r *turnRun) enter(s model.TurnState) {
	r.state = s
	r.emit(model.TurnEvent{Kind: model.EventState, State: s})
}

func (t *turnUC) run(ctx context.Context, req TurnRequest, emit func(model.TurnEvent) bool) (res *model.TurnResult, err error) {
	char := t.d.Characters.Get(req.Character)
	key := req.SessionKey
	if key == "" {
		key = repository.GlobalSessionKey
	}

	turnID := ulid.Make().String()
	ctx = logging.WithTurnID(ctx, turnID)
	ctx = logging.WithSessID(ctx, key)
	ctx = logging.WithCharacter(ctx, char.ID)
	log := logging.With(ctx, t.log)
	defer logging.TraceDuration(log, "TurnUC.run")()

	r := &turnRun{
		res: &model.TurnResult{
			TurnID:     turnID,
			SessionKey: key,
			Character:  char.ID,
			StartedAt:  t.now(),
		},
		char:  char,
		emit:  emit,
		state: model.StateIdle,
		log:   log,
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("state", string(r.state)).Msg("turn panicked")
			res, err = nil, fmt.Errorf("%w: panic in %s: %v", domain.ErrTurnFailed, r.state, p)
		}
		if err != nil {
			metrics.IncTurn(string(r.res.Track), string(model.StateErrored))
		}
	}()

	// Transcribing
	r.enter(model.StateTranscribing)
	r.res.User = t.transcribe(ctx, req, r)
	if err := t.abortIfDone(ctx, r); err != nil {
		return nil, err
	}
	r.emit(model.TurnEvent{Kind: model.EventTranscript, Text: r.res.User.Text})

	// Classifying
	r.enter(model.StateClassifying)
	r.res.Emotion = t.classify(ctx, r)
	if err := t.abortIfDone(ctx, r); err != nil {
		return nil, err
	}
	prof := r.res.Emotion
	r.emit(model.TurnEvent{Kind: model.EventEmotion, Emotion: &prof})

	// Branching
	r.enter(model.StateBranching)
	r.res.Track = t.d.Partition.Track(r.res.Emotion.Dominant)
	log.Debug().Str("dominant", string(r.res.Emotion.Dominant)).Str("track", string(r.res.Track)).Msg("branch selected")

	switch r.res.Track {
	case model.TrackRecommend:
		r.enter(model.StateRecommending)
		t.recommend(ctx, r)
	default:
		r.enter(model.StateConversing)
		t.converse(ctx, key, r)
	}
	if err := t.abortIfDone(ctx, r); err != nil {
		return nil, err
	}

	// Synthesizing
	r.enter(model.StateSynthesizing)
	t.synthesize(ctx, r)
	if err := t.abortIfDone(ctx, r); err != nil {
		return nil, err
	}

	// Completed: the only point where history changes.
	now := t.now()
	t.d.History.Append(key,
		model.NewTurn(model.RoleUser, r.res.User.Text, r.res.StartedAt),
		model.NewTurn(model.RoleAssistant, r.res.AIText, now),
	)
	r.res.FinishedAt = now
	r.enter(model.StateCompleted)

	metrics.IncTurn(string(r.res.Track), string(model.StateCompleted))
	metrics.ObserveTurnLatency(string(r.res.Track), now.Sub(r.res.StartedAt))
	if t.d.Publisher != nil {
		t.d.Publisher.Publish(model.NewTurnLog(r.res))
	}
	log.Info().
		Str("track", string(r.res.Track)).
		Str("dominant", string(r.res.Emotion.Dominant)).
		Int("audio_bytes", len(r.res.Audio)).
		Strs("degraded", degradedNames(r.res.Degraded)).
		Dur("latency", now.Sub(r.res.StartedAt)).
		Msg("turn completed")
	return r.res, nil
}

// abortIfDone moves the turn to Errored when the caller has gone away.
func (t *turnUC) abortIfDone(ctx context.Context, r *turnRun) error {
	if ctx.Err() == nil {
		return nil
	}
	r.log.Info().Str("state", string(r.state)).Msg("turn cancelled")
	failed := r.state
	r.state = model.StateErrored
	return fmt.Errorf("%w: cancelled during %s: %w", domain.ErrTurnFailed, failed, ctx.Err())
}

func (t *turnUC) transcribe(ctx context.Context, req TurnRequest, r *turnRun) model.Utterance {
	start := time.Now()
	defer func() { metrics.ObserveStage("transcribe", time.Since(start)) }()

	fail := func(err error) model.Utterance {
		if ctx.Err() == nil {
			r.log.Warn().Err(err).Msg("no usable speech, substituting default transcript")
			r.res.Degrade(model.DegradedTranscription)
			metrics.IncDegraded(string(model.DegradedTranscription))
		}
		return model.Utterance{Text: model.NoSpeechText, Source: model.SourceSynthetic}
	}

	pcm, err := t.d.Normalizer.Normalize(ctx, req.Audio, req.Format)
	if err != nil {
		return fail(err)
	}
	if pcm.Empty() {
		return fail(fmt.Errorf("%w: empty audio", domain.ErrDecode))
	}
	text, err := t.d.STT.Transcribe(ctx, pcm, t.opts.Language)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrTranscription, err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fail(fmt.Errorf("%w: empty transcript", domain.ErrTranscription))
	}
	r.log.Debug().Str("text", logging.Redact(text, t.opts.Dev)).Int("audio_ms", pcm.DurationMs()).Msg("transcribed")
	return model.Utterance{Text: text, Source: model.SourceAudio}
}

func (t *turnUC) classify(ctx context.Context, r *turnRun) model.EmotionProfile {
	if r.res.User.Source == model.SourceSynthetic {
		return model.DefaultEmotionProfile()
	}
	start := time.Now()
	prof, err := t.d.Classifier.Classify(ctx, r.res.User.Text)
	metrics.ObserveStage("classify", time.Since(start))
	if err != nil && ctx.Err() == nil {
		r.log.Warn().Err(err).Msg("classification fell back to default profile")
		r.res.Degrade(model.DegradedClassification)
		metrics.IncDegraded(string(model.DegradedClassification))
	}
	return prof
}

func (t *turnUC) recommend(ctx context.Context, r *turnRun) {
	start := time.Now()
	defer func() { metrics.ObserveStage("recommend", time.Since(start)) }()

	dom := r.res.Emotion.Dominant
	var rec Recommendation
	if t.d.Recommender != nil {
		rec = t.d.Recommender.Recommend(ctx, dom)
	}
	if rec.SearchErr != nil && ctx.Err() == nil {
		r.res.Degrade(model.DegradedSearch)
		metrics.IncDegraded(string(model.DegradedSearch))
	}

	tone := r.char.Tone(dom)
	r.res.Links = rec.Links
	r.res.AIText = displayText(tone, rec.Links)
	r.res.SpeechText = speechText(tone)
	r.emit(model.TurnEvent{Kind: model.EventTextDelta, Text: r.res.AIText})
}

func (t *turnUC) converse(ctx context.Context, key string, r *turnRun) {
	start := time.Now()
	defer func() { metrics.ObserveStage("converse", time.Since(start)) }()

	system := r.char.SystemPrompt(r.res.Emotion)
	history := t.d.History.Snapshot(key, t.opts.HistoryMaxLen)
	msgs := make([]adapter.Message, 0, len(history)+1)
	for _, h := range history {
		msgs = append(msgs, adapter.Message{Role: string(h.Role), Content: h.Content})
	}
	msgs = append(msgs, adapter.Message{Role: string(model.RoleUser), Content: r.res.User.Text})
	msgs = t.fitBudget(system, msgs)

	text, err := t.streamChat(ctx, adapter.ChatRequest{
		Model:     t.opts.ChatModel,
		System:    system,
		Messages:  msgs,
		MaxTokens: t.opts.MaxTokens,
	}, r)
	if ctx.Err() != nil {
		return
	}
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err == nil {
			err = errors.New("empty completion")
		}
		r.log.Warn().Err(err).Int("partial_len", len(text)).Msg("chat completion failed")
		r.res.Degrade(model.DegradedChat)
		metrics.IncDegraded(string(model.DegradedChat))
		if text == "" {
			text = ChatFallbackText
			r.emit(model.TurnEvent{Kind: model.EventTextDelta, Text: text})
		}
	}
	r.res.AIText = text
	r.res.SpeechText = speechText(text)
}

// streamChat forwards deltas to the caller while a second consumer joins
// the final text.
func (t *turnUC) streamChat(ctx context.Context, req adapter.ChatRequest, r *turnRun) (string, error) {
	stream, err := t.d.Chat.ChatStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrChatCompletion, err)
	}
	text, err := fanOut(ctx, stream, func(d string) {
		if d != "" {
			r.emit(model.TurnEvent{Kind: model.EventTextDelta, Text: d})
		}
	}, adapter.JoinText)
	if err != nil {
		return text, fmt.Errorf("%w: %w", domain.ErrChatCompletion, err)
	}
	return text, nil
}

// fanOut splits src into a live consumer, run on the calling goroutine,
// and a collector whose joined value is returned once both are done.
func fanOut[T, R any](ctx context.Context, src *adapter.Stream[T], live func(T), join func(*adapter.Stream[T]) (R, error)) (R, error) {
	a, b := adapter.Tee(ctx, src)

	type joined struct {
		v   R
		err error
	}
	done := make(chan joined, 1)
	go func() {
		v, err := join(b)
		done <- joined{v, err}
	}()

	for c := range a.Chunks() {
		live(c)
	}
	j := <-done
	return j.v, j.err
}

// fitBudget drops the oldest context messages until the prompt fits. The
// current user message is always kept.
func (t *turnUC) fitBudget(system string, msgs []adapter.Message) []adapter.Message {
	if t.opts.TokenBudget <= 0 || t.d.Tokens == nil {
		return msgs
	}
	total := t.d.Tokens.Estimate(system)
	for _, m := range msgs {
		total += t.d.Tokens.Estimate(m.Content)
	}
	dropped := 0
	for total > t.opts.TokenBudget && len(msgs) > 1 {
		total -= t.d.Tokens.Estimate(msgs[0].Content)
		msgs = msgs[1:]
		dropped++
	}
	// Never start the context on an orphan assistant reply.
	for len(msgs) > 1 && msgs[0].Role == string(model.RoleAssistant) {
		msgs = msgs[1:]
		dropped++
	}
	if dropped > 0 {
		t.log.Debug().Int("dropped", dropped).Int("budget", t.opts.TokenBudget).Msg("context trimmed to token budget")
	}
	return msgs
}

func (t *turnUC) synthesize(ctx context.Context, r *turnRun) {
	if strings.TrimSpace(r.res.SpeechText) == "" {
		return
	}
	start := time.Now()
	defer func() { metrics.ObserveStage("synthesize", time.Since(start)) }()

	audio, err := t.streamSpeech(ctx, r)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("synthesis failed, returning text only")
		r.res.Degrade(model.DegradedSynthesis)
		metrics.IncDegraded(string(model.DegradedSynthesis))
		return
	}
	r.res.Audio = audio
	r.res.AudioFormat = "pcm_s16le_24000_mono"
}

func (t *turnUC) streamSpeech(ctx context.Context, r *turnRun) ([]byte, error) {
	stream, err := t.d.TTS.SynthesizeStream(ctx, r.res.SpeechText, r.char.Voice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSynthesis, err)
	}
	audio, err := fanOut(ctx, stream, func(c []byte) {
		if len(c) > 0 {
			r.emit(model.TurnEvent{Kind: model.EventAudioChunk, Audio: c})
		}
	}, adapter.JoinAudio)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSynthesis, err)
	}
	return audio, nil
}

func degradedNames(ds []model.Degradation) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}
