package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/memory"
)

type turnFixture struct {
	norm    *stubNormalizer
	stt     *stubSTT
	cls     *stubClassifier
	search  *stubSearcher
	chat    *stubChat
	tts     *stubTTS
	history *memory.HistoryStore
	pub     *recordingPublisher
	static  StaticLinks
}

func newTurnFixture() *turnFixture {
	return &turnFixture{
		norm:    &stubNormalizer{},
		stt:     &stubSTT{text: "오늘 정말 좋은 일이 있었어"},
		cls:     &stubClassifier{prof: dominantProfile(model.EmotionJoy)},
		search:  &stubSearcher{},
		chat:    &stubChat{deltas: []string{"정말 ", "좋은 ", "일이네요!"}},
		tts:     &stubTTS{chunks: [][]byte{{1, 2}, {3, 4}}},
		history: memory.NewHistoryStore(6),
		pub:     &recordingPublisher{},
		static:  DefaultStaticLinks(),
	}
}

func (f *turnFixture) build(t *testing.T, opts TurnOptions) *turnUC {
	t.Helper()
	part, err := model.NewPartition([]string{"anger", "sorrow", "hate", "fear"})
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	rec := NewRecommender(f.search, f.static, 3, testLogger())
	rec.pick = func(n int) int { return n - 1 }
	if opts.HistoryMaxLen == 0 {
		opts.HistoryMaxLen = 6
	}
	return NewTurnUseCase(TurnDeps{
		Normalizer:  f.norm,
		STT:         f.stt,
		Classifier:  f.cls,
		Recommender: rec,
		Chat:        f.chat,
		TTS:         f.tts,
		History:     f.history,
		Characters:  model.NewCatalog(),
		Partition:   part,
		Publisher:   f.pub,
	}, opts, testLogger())
}

func seedHistory(h *memory.HistoryStore, key string, pairs int) {
	at := time.Unix(0, 0)
	for i := 0; i < pairs; i++ {
		h.Append(key,
			model.NewTurn(model.RoleUser, fmt.Sprintf("u%d", i), at),
			model.NewTurn(model.RoleAssistant, fmt.Sprintf("a%d", i), at),
		)
	}
}

func hasDegradation(r *model.TurnResult, d model.Degradation) bool {
	for _, x := range r.Degraded {
		if x == d {
			return true
		}
	}
	return false
}

func TestHandleTurn_ConverseEvictsOldestTurns(t *testing.T) {
	f := newTurnFixture()
	seedHistory(f.history, "s1", 2)
	uc := f.build(t, TurnOptions{HistoryMaxLen: 6})

	res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{0, 1}, Format: "pcm", Character: "haru", SessionKey: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Track != model.TrackConverse {
		t.Errorf("joy should route to converse, got %s", res.Track)
	}
	if res.AIText != "정말 좋은 일이네요!" {
		t.Errorf("unexpected ai text %q", res.AIText)
	}
	if string(res.Audio) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("audio chunks not joined: %v", res.Audio)
	}

	snap := f.history.Snapshot("s1", 0)
	if len(snap) != 6 {
		t.Fatalf("expected 6 turns, got %d", len(snap))
	}
	if snap[0].Content != "u0" {
		t.Errorf("nothing should be evicted while filling up, head is %q", snap[0].Content)
	}
	if snap[4].Content != "오늘 정말 좋은 일이 있었어" || snap[5].Content != res.AIText {
		t.Errorf("new pair not committed in order: %+v", snap[4:])
	}

	t.Run("context carries persona, history and the new utterance", func(t *testing.T) {
		req := f.chat.last
		if !strings.Contains(req.System, "비즈니스") || !strings.Contains(req.System, "기쁨 80%") {
			t.Errorf("system prompt missing persona or emotion summary: %q", req.System)
		}
		if len(req.Messages) != 5 {
			t.Fatalf("expected 4 history messages plus the user turn, got %d", len(req.Messages))
		}
		last := req.Messages[len(req.Messages)-1]
		if last.Role != "user" || last.Content != "오늘 정말 좋은 일이 있었어" {
			t.Errorf("last message should be the utterance, got %+v", last)
		}
	})

	if f.pub.count() != 1 {
		t.Errorf("expected one telemetry record, got %d", f.pub.count())
	}
	if f.tts.text != res.AIText {
		t.Errorf("tts got %q", f.tts.text)
	}

	t.Run("a full history evicts the two oldest turns", func(t *testing.T) {
		if _, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{0}, SessionKey: "s1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		snap := f.history.Snapshot("s1", 0)
		if len(snap) != 6 {
			t.Fatalf("expected 6 turns, got %d", len(snap))
		}
		if snap[0].Content != "u1" || snap[1].Content != "a1" {
			t.Errorf("two oldest turns should have been evicted, head is %q/%q", snap[0].Content, snap[1].Content)
		}
	})
}

func TestHandleTurn_AngerFallsBackToStaticLink(t *testing.T) {
	f := newTurnFixture()
	f.cls.prof = dominantProfile(model.EmotionAnger)
	f.search.res = adapter.SearchResult{Text: "죄송하지만 적절한 결과를 찾지 못했습니다."}
	f.static = StaticLinks{model.EmotionAnger: {
		{Title: "a", URL: "https://example.com/a"},
		{Title: "b", URL: "https://example.com/b"},
		{Title: "c", URL: "https://example.com/c"},
	}}
	uc := f.build(t, TurnOptions{})

	res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}, Format: "pcm", Character: "kei"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Track != model.TrackRecommend {
		t.Fatalf("anger should route to recommend, got %s", res.Track)
	}
	if len(res.Links) != 1 || res.Links[0].URL != "https://example.com/c" {
		t.Fatalf("expected exactly one static link, got %+v", res.Links)
	}
	if !strings.Contains(res.AIText, "https://example.com/c") || strings.Contains(res.AIText, noContentText) {
		t.Errorf("display text should list the static link: %q", res.AIText)
	}
	if !strings.Contains(res.AIText, "노(화남)") {
		t.Errorf("tone should name the emotion category: %q", res.AIText)
	}
	if strings.Contains(f.tts.text, "http") {
		t.Errorf("speech text must not contain URLs: %q", f.tts.text)
	}
	if !strings.Contains(f.search.query, "분노") {
		t.Errorf("search query should be scoped to the emotion: %q", f.search.query)
	}
	if f.history.Len("global") != 2 {
		t.Errorf("session-less turn should land in the global history")
	}
}

func TestHandleTurn_RecommendUsesCitations(t *testing.T) {
	f := newTurnFixture()
	f.cls.prof = dominantProfile(model.EmotionSorrow)
	f.search.res = adapter.SearchResult{
		Text:      "[ignored](https://example.com/x)",
		Citations: []adapter.Citation{{Title: "위로 음악", URL: "https://youtu.be/1"}, {Title: "잔잔한 노래", URL: "https://youtu.be/2"}},
	}
	uc := f.build(t, TurnOptions{})

	res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}, Character: "kei"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Links) != 2 || res.Links[0].URL != "https://youtu.be/1" {
		t.Fatalf("citations should win over text links: %+v", res.Links)
	}
	if !strings.Contains(res.AIText, "함께 방법을 찾아봐요") {
		t.Errorf("sorrow should use the empathize tone: %q", res.AIText)
	}
}

func TestHandleTurn_SearchErrorIsAbsorbed(t *testing.T) {
	f := newTurnFixture()
	f.cls.prof = dominantProfile(model.EmotionHate)
	f.search.err = errProvider
	f.static = StaticLinks{}
	uc := f.build(t, TurnOptions{})

	res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}})
	if err != nil {
		t.Fatalf("search failure must not fail the turn: %v", err)
	}
	if len(res.Links) != 0 || !strings.HasSuffix(res.AIText, noContentText) {
		t.Errorf("expected empathy-only reply, got %q", res.AIText)
	}
	if !hasDegradation(res, model.DegradedSearch) {
		t.Errorf("search degradation not recorded: %v", res.Degraded)
	}
}

func TestHandleTurn_STTErrorSubstitutesTranscript(t *testing.T) {
	f := newTurnFixture()
	f.stt.err = errProvider
	uc := f.build(t, TurnOptions{})

	res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}, SessionKey: "s"})
	if err != nil {
		t.Fatalf("STT failure must not fail the turn: %v", err)
	}
	if res.User.Text != model.NoSpeechText || res.User.Source != model.SourceSynthetic {
		t.Errorf("unexpected utterance %+v", res.User)
	}
	if res.AIText == "" {
		t.Error("ai text should not be empty")
	}
	if !hasDegradation(res, model.DegradedTranscription) {
		t.Errorf("transcription degradation not recorded: %v", res.Degraded)
	}
	if f.cls.calls != 0 {
		t.Error("a synthetic transcript should not be classified")
	}
	if res.Emotion.Dominant != model.EmotionJoy {
		t.Errorf("expected default profile, got %s", res.Emotion.Dominant)
	}
}

func TestHandleTurn_DecodeErrorSubstitutesTranscript(t *testing.T) {
	f := newTurnFixture()
	f.norm.err = fmt.Errorf("%w: bad header", domain.ErrDecode)
	uc := f.build(t, TurnOptions{})

	res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}, Format: "webm"})
	if err != nil {
		t.Fatalf("decode failure must not fail the turn: %v", err)
	}
	if res.User.Text != model.NoSpeechText {
		t.Errorf("expected substituted transcript, got %q", res.User.Text)
	}
}

func TestHandleTurn_ClassificationErrorUsesDefault(t *testing.T) {
	f := newTurnFixture()
	f.cls.err = domain.ErrClassification
	uc := f.build(t, TurnOptions{})

	res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Track != model.TrackConverse || res.Emotion.Dominant != model.EmotionJoy || !res.Emotion.IsZero() {
		t.Errorf("expected default profile on converse track, got %+v / %s", res.Emotion, res.Track)
	}
	if !hasDegradation(res, model.DegradedClassification) {
		t.Errorf("classification degradation not recorded: %v", res.Degraded)
	}
}

func TestHandleTurn_TTSFailureReturnsTextOnly(t *testing.T) {
	f := newTurnFixture()
	f.tts.err = errProvider
	uc := f.build(t, TurnOptions{})

	res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}, SessionKey: "s"})
	if err != nil {
		t.Fatalf("TTS failure must not fail the turn: %v", err)
	}
	if res.AIText == "" || res.HasAudio() {
		t.Errorf("expected text without audio, got text=%q audio=%d", res.AIText, len(res.Audio))
	}
	if !hasDegradation(res, model.DegradedSynthesis) {
		t.Errorf("synthesis degradation not recorded: %v", res.Degraded)
	}
	if f.history.Len("s") != 2 {
		t.Error("a text-only turn should still be committed")
	}
}

func TestHandleTurn_ChatFailure(t *testing.T) {
	t.Run("no output falls back to apology", func(t *testing.T) {
		f := newTurnFixture()
		f.chat.err = errProvider
		uc := f.build(t, TurnOptions{})

		res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}, SessionKey: "s"})
		if err != nil {
			t.Fatalf("chat failure must not fail the turn: %v", err)
		}
		if res.AIText != ChatFallbackText {
			t.Errorf("expected fallback text, got %q", res.AIText)
		}
		if !hasDegradation(res, model.DegradedChat) {
			t.Errorf("chat degradation not recorded")
		}
		snap := f.history.Snapshot("s", 0)
		if len(snap) != 2 || snap[1].Content != ChatFallbackText {
			t.Errorf("history should hold exactly what was said back: %+v", snap)
		}
	})

	t.Run("partial output is kept", func(t *testing.T) {
		f := newTurnFixture()
		f.chat.deltas = []string{"반쯤 "}
		f.chat.streamErr = errProvider
		uc := f.build(t, TurnOptions{})

		res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.AIText != "반쯤" || !hasDegradation(res, model.DegradedChat) {
			t.Errorf("unexpected result %q %v", res.AIText, res.Degraded)
		}
	})
}

func TestHandleTurn_PanicBecomesTurnError(t *testing.T) {
	f := newTurnFixture()
	f.chat.panicMsg = "boom"
	uc := f.build(t, TurnOptions{})

	res, err := uc.HandleTurn(context.Background(), TurnRequest{Audio: []byte{1}, SessionKey: "s"})
	if !errors.Is(err, domain.ErrTurnFailed) || res != nil {
		t.Fatalf("expected ErrTurnFailed, got res=%v err=%v", res, err)
	}
	if f.history.Len("s") != 0 {
		t.Error("a failed turn must not touch history")
	}
	if f.pub.count() != 0 {
		t.Error("a failed turn must not emit telemetry")
	}
}

func TestStreamTurn_CancelDuringSynthesisCommitsNothing(t *testing.T) {
	f := newTurnFixture()
	f.tts.block = true
	seedHistory(f.history, "s", 1)
	uc := f.build(t, TurnOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		sawChunk bool
		lastErr  error
	)
	for ev := range uc.StreamTurn(ctx, TurnRequest{Audio: []byte{1}, SessionKey: "s"}) {
		switch ev.Kind {
		case model.EventAudioChunk:
			if !sawChunk {
				sawChunk = true
				cancel()
			}
		case model.EventError:
			lastErr = ev.Err
		case model.EventResult:
			t.Fatal("a cancelled turn must not produce a result")
		}
	}
	if !sawChunk {
		t.Fatal("expected at least one audio chunk before cancelling")
	}
	if lastErr != nil && !errors.Is(lastErr, domain.ErrTurnFailed) {
		t.Errorf("unexpected error kind: %v", lastErr)
	}
	if n := f.history.Len("s"); n != 2 {
		t.Errorf("history should be unchanged at 2 turns, got %d", n)
	}
}

// Six events precede the deltas and one (Synthesizing) follows them, so
// nine deltas leave the 16-slot buffer full when the turn fails.
func TestStreamTurn_ErrorDeliveredWhenBufferFull(t *testing.T) {
	f := newTurnFixture()
	f.chat.deltas = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	f.tts.panicMsg = "tts exploded"
	f.tts.called = make(chan struct{})
	uc := f.build(t, TurnOptions{})

	events := uc.StreamTurn(context.Background(), TurnRequest{Audio: []byte{1}, SessionKey: "s"})
	<-f.tts.called
	time.Sleep(20 * time.Millisecond)

	var (
		n       int
		lastErr error
	)
	for ev := range events {
		n++
		if ev.Kind == model.EventError {
			lastErr = ev.Err
		}
	}
	if !errors.Is(lastErr, domain.ErrTurnFailed) {
		t.Fatalf("the terminal error must be delivered after %d events, got %v", n, lastErr)
	}
	if f.history.Len("s") != 0 {
		t.Error("a failed turn must not touch history")
	}
}

func TestStreamTurn_EventOrder(t *testing.T) {
	f := newTurnFixture()
	uc := f.build(t, TurnOptions{})

	var (
		states []model.TurnState
		deltas []string
		chunks int
		kinds  []model.TurnEventKind
	)
	for ev := range uc.StreamTurn(context.Background(), TurnRequest{Audio: []byte{1}}) {
		kinds = append(kinds, ev.Kind)
		switch ev.Kind {
		case model.EventState:
			states = append(states, ev.State)
		case model.EventTextDelta:
			deltas = append(deltas, ev.Text)
		case model.EventAudioChunk:
			chunks++
		}
	}

	want := []model.TurnState{
		model.StateTranscribing, model.StateClassifying, model.StateBranching,
		model.StateConversing, model.StateSynthesizing, model.StateCompleted,
	}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Errorf("state order\n got %v\nwant %v", states, want)
	}
	if len(deltas) != 3 {
		t.Errorf("expected each delta forwarded, got %v", deltas)
	}
	if chunks != 2 {
		t.Errorf("expected 2 audio chunks, got %d", chunks)
	}
	if kinds[len(kinds)-1] != model.EventResult {
		t.Errorf("last event should be the result, got %s", kinds[len(kinds)-1])
	}
}

func TestFitBudget(t *testing.T) {
	f := newTurnFixture()
	uc := f.build(t, TurnOptions{TokenBudget: 10})
	uc.d.Tokens = runeCounter{}

	msgs := []adapter.Message{
		{Role: "user", Content: "aaaa"},
		{Role: "assistant", Content: "bbbb"},
		{Role: "user", Content: "cccc"},
		{Role: "assistant", Content: "dd"},
		{Role: "user", Content: "now"},
	}
	got := uc.fitBudget("sys", msgs)
	if len(got) != 1 || got[0].Content != "now" {
		t.Errorf("expected only the current message to fit, got %+v", got)
	}

	got = uc.fitBudget("", msgs[2:])
	if len(got) != 3 {
		t.Errorf("a fitting context should be unchanged, got %+v", got)
	}

	uc.opts.TokenBudget = 0
	if got := uc.fitBudget("sys", msgs); len(got) != len(msgs) {
		t.Error("budget 0 disables trimming")
	}
}
