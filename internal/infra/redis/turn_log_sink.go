package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
)

var _ adapter.TelemetrySink = (*TurnLogSink)(nil)

// TurnLogSink keeps the newest turn records as JSON in a capped list.
type TurnLogSink struct {
	client RedisClient
	key    string
	maxLen int64
}

func NewTurnLogSink(client RedisClient, key string, maxLen int64) *TurnLogSink {
	return &TurnLogSink{client: client, key: key, maxLen: maxLen}
}

func (s *TurnLogSink) Name() string { return "redis" }

func (s *TurnLogSink) Write(ctx context.Context, rec model.TurnLog) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrSink, err)
	}
	if err := s.client.PushCapped(ctx, s.key, b, s.maxLen); err != nil {
		return fmt.Errorf("%w: redis: %v", domain.ErrSink, err)
	}
	return nil
}
