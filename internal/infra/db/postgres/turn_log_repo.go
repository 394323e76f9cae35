package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
)

var _ adapter.TelemetrySink = (*TurnLogRepo)(nil)

// pgUniqueViolation is the SQLSTATE for a duplicate key.
const pgUniqueViolation = "23505"

// TurnLogRepo stores turn records in the turn_logs table and reads them back
// per session.
type TurnLogRepo struct {
	pool *pgxpool.Pool
}

func NewTurnLogRepo(pool *pgxpool.Pool) *TurnLogRepo {
	return &TurnLogRepo{pool: pool}
}

func (r *TurnLogRepo) Name() string { return "postgres" }

// Write inserts rec. A replayed turn id is ignored.
func (r *TurnLogRepo) Write(ctx context.Context, rec model.TurnLog) error {
	const q = `
INSERT INTO turn_logs (turn_id, session_key, character, user_input, ai_response, track,
                       top_emotion, emotion, links, degraded, audio_bytes, latency_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	emotion, err := json.Marshal(rec.Emotion)
	if err != nil {
		return fmt.Errorf("%w: encode emotion: %v", domain.ErrSink, err)
	}
	links, _ := json.Marshal(nonNil(rec.Links))
	degraded, _ := json.Marshal(nonNil(rec.Degraded))

	_, err = r.pool.Exec(ctx, q,
		rec.TurnID, rec.SessionKey, rec.Character, rec.UserText, rec.AIText, string(rec.Track),
		string(rec.Emotion.Dominant), emotion, links, degraded, rec.AudioBytes, rec.LatencyMs, rec.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil
		}
		return fmt.Errorf("%w: postgres: %v", domain.ErrSink, err)
	}
	return nil
}

// ListBySession returns up to limit records for sessionKey, newest first.
func (r *TurnLogRepo) ListBySession(ctx context.Context, sessionKey string, limit int) ([]model.TurnLog, error) {
	const q = `
SELECT turn_id, session_key, character, user_input, ai_response, track,
       emotion, links, degraded, audio_bytes, latency_ms, created_at
FROM turn_logs
WHERE session_key = $1
ORDER BY created_at DESC, turn_id DESC
LIMIT $2`
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, q, sessionKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TurnLog
	for rows.Next() {
		var (
			rec                      model.TurnLog
			track                    string
			emotion, links, degraded []byte
		)
		if err := rows.Scan(&rec.TurnID, &rec.SessionKey, &rec.Character, &rec.UserText, &rec.AIText, &track,
			&emotion, &links, &degraded, &rec.AudioBytes, &rec.LatencyMs, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Track = model.Track(track)
		if err := json.Unmarshal(emotion, &rec.Emotion); err != nil {
			return nil, fmt.Errorf("decode emotion of %s: %w", rec.TurnID, err)
		}
		_ = json.Unmarshal(links, &rec.Links)
		_ = json.Unmarshal(degraded, &rec.Degraded)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes every record of sessionKey.
func (r *TurnLogRepo) DeleteSession(ctx context.Context, sessionKey string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM turn_logs WHERE session_key = $1`, sessionKey)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
