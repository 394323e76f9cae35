package telemetry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/worker"
)

type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []model.TurnLog
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(ctx context.Context, rec model.TurnLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, rec)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type fullPool struct{ calls int }

func (p *fullPool) Submit(worker.Task) error {
	p.calls++
	return worker.ErrQueueFull
}

func sampleLog() model.TurnLog {
	return model.TurnLog{
		TurnID:     "t-1",
		SessionKey: "sess",
		Character:  "haru",
		UserText:   "오늘 너무 피곤해",
		AIText:     "푹 쉬어요",
		Track:      model.TrackConverse,
		Emotion:    model.NewEmotionProfile(map[model.EmotionLabel]int{model.EmotionSorrow: 70}, ""),
		Timestamp:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_FansOutToEverySink(t *testing.T) {
	logger := zerolog.Nop()
	pool := worker.NewPool("telemetry-test", 2, 8, &logger)
	pool.Start(context.Background())

	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "bad", err: errors.New("boom")}
	d := NewDispatcher(pool, []adapter.TelemetrySink{ok, bad}, time.Second, &logger)

	d.Publish(sampleLog())
	d.Publish(sampleLog())
	pool.Stop()

	if ok.count() != 2 || bad.count() != 2 {
		t.Fatalf("every sink should see both records, ok=%d bad=%d", ok.count(), bad.count())
	}
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	logger := zerolog.Nop()
	p := &fullPool{}
	s := &recordingSink{name: "ok"}
	d := NewDispatcher(p, []adapter.TelemetrySink{s}, 0, &logger)

	d.Publish(sampleLog())
	if p.calls != 1 || s.count() != 0 {
		t.Fatalf("record should be dropped, calls=%d writes=%d", p.calls, s.count())
	}
}

func TestLogSink_RedactsOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	if err := NewLogSink(&logger, false).Write(context.Background(), sampleLog()); err != nil {
		t.Fatal(err)
	}
	line := buf.String()
	if strings.Contains(line, "오늘 너무 피곤해") {
		t.Fatalf("user text leaked: %s", line)
	}
	if !strings.Contains(line, `"dominant":"sorrow"`) || !strings.Contains(line, `"turn_id":"t-1"`) {
		t.Fatalf("missing fields: %s", line)
	}

	buf.Reset()
	_ = NewLogSink(&logger, true).Write(context.Background(), sampleLog())
	if !strings.Contains(buf.String(), "오늘 너무 피곤해") {
		t.Fatalf("dev mode should keep text: %s", buf.String())
	}
}

func TestBlobSink_Upload(t *testing.T) {
	var got blobUpload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := sampleLog()
	if err := NewBlobSink(srv.URL, "tok", "proj", time.Second).Write(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer tok" || got.ProjectID != "proj" {
		t.Fatalf("bad request auth=%q project=%q", auth, got.ProjectID)
	}
	if got.Name != "turns/sess/20260302/t-1.json" {
		t.Fatalf("unexpected blob name %q", got.Name)
	}
	raw, err := base64.StdEncoding.DecodeString(got.Data)
	if err != nil {
		t.Fatal(err)
	}
	var back model.TurnLog
	if err := json.Unmarshal(raw, &back); err != nil || back.AIText != rec.AIText {
		t.Fatalf("payload did not carry the record: %v %q", err, back.AIText)
	}
}

func TestBlobName_EscapesSessionKey(t *testing.T) {
	tests := []struct {
		key, want string
	}{
		{"sess", "turns/sess/20260302/t-1.json"},
		{"../../etc", "turns/..%2F..%2Fetc/20260302/t-1.json"},
		{"a/b c", "turns/a%2Fb%20c/20260302/t-1.json"},
		{"..", "turns/%2E%2E_/20260302/t-1.json"},
		{"", "turns/_/20260302/t-1.json"},
	}
	for _, tt := range tests {
		rec := sampleLog()
		rec.SessionKey = tt.key
		got := BlobName(rec)
		if got != tt.want {
			t.Errorf("BlobName(%q) = %q, want %q", tt.key, got, tt.want)
		}
		if n := strings.Count(got, "/"); n != 3 {
			t.Errorf("BlobName(%q) has %d separators", tt.key, n)
		}
	}
}

func TestBlobSink_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewBlobSink(srv.URL, "tok", "proj", time.Second).Write(context.Background(), sampleLog())
	if !errors.Is(err, domain.ErrSink) || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected ErrSink with status, got %v", err)
	}
	if err := NewBlobSink(srv.URL, "", "", 0).Write(context.Background(), sampleLog()); !errors.Is(err, domain.ErrSink) {
		t.Fatalf("unconfigured sink should fail with ErrSink, got %v", err)
	}
}

type prefixSealer struct{}

func (prefixSealer) Seal(s string) (string, error) { return "sealed:" + s, nil }

func TestSealedSink(t *testing.T) {
	inner := &recordingSink{name: "redis"}
	s := Sealed(inner, prefixSealer{})
	if s.Name() != "redis" {
		t.Fatalf("name should pass through, got %q", s.Name())
	}
	rec := sampleLog()
	if err := s.Write(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	got := inner.got[0]
	if got.UserText != "sealed:"+rec.UserText || got.AIText != "sealed:"+rec.AIText || got.TurnID != rec.TurnID {
		t.Fatalf("unexpected sealed record %+v", got)
	}
	if Sealed(inner, nil) != adapter.TelemetrySink(inner) {
		t.Fatal("nil sealer should return the inner sink")
	}
}
