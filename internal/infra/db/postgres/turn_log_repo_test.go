//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"voice-companion/internal/domain/model"
)

func TestTurnLogRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewTurnLogRepo(testPool)

	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	rec := func(id, session string, at time.Time) model.TurnLog {
		return model.TurnLog{
			TurnID:     id,
			SessionKey: session,
			Character:  "kei",
			UserText:   "오늘 너무 힘들었어",
			AIText:     "많이 힘드셨겠어요.\n\n* 추천 콘텐츠 1: https://youtu.be/x",
			Track:      model.TrackRecommend,
			Emotion:    model.NewEmotionProfile(map[model.EmotionLabel]int{model.EmotionSorrow: 70}, model.EmotionSorrow),
			Links:      []model.Link{{URL: "https://youtu.be/x"}},
			Degraded:   []model.Degradation{model.DegradedSearch},
			AudioBytes: 4800,
			LatencyMs:  2300,
			Timestamp:  at,
		}
	}

	t.Run("should write and list newest first", func(t *testing.T) {
		cleanup(t)
		for i, id := range []string{"t1", "t2", "t3"} {
			if err := repo.Write(ctx, rec(id, "s1", base.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatalf("write %s: %v", id, err)
			}
		}
		_ = repo.Write(ctx, rec("other", "s2", base))

		got, err := repo.ListBySession(ctx, "s1", 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 2 || got[0].TurnID != "t3" || got[1].TurnID != "t2" {
			t.Fatalf("unexpected order %+v", got)
		}
		if got[0].Emotion.Dominant != model.EmotionSorrow || len(got[0].Links) != 1 || got[0].Degraded[0] != model.DegradedSearch {
			t.Errorf("round trip lost fields: %+v", got[0])
		}
	})

	t.Run("should ignore a replayed turn id", func(t *testing.T) {
		cleanup(t)
		r := rec("dup", "s1", base)
		if err := repo.Write(ctx, r); err != nil {
			t.Fatal(err)
		}
		if err := repo.Write(ctx, r); err != nil {
			t.Fatalf("duplicate should be ignored, got %v", err)
		}
	})

	t.Run("should delete a session", func(t *testing.T) {
		cleanup(t)
		_ = repo.Write(ctx, rec("a", "gone", base))
		_ = repo.Write(ctx, rec("b", "gone", base.Add(time.Second)))
		n, err := repo.DeleteSession(ctx, "gone")
		if err != nil || n != 2 {
			t.Fatalf("delete: n=%d err=%v", n, err)
		}
		if got, _ := repo.ListBySession(ctx, "gone", 10); len(got) != 0 {
			t.Fatalf("expected no rows, got %d", len(got))
		}
	})
}
