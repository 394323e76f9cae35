// Package tokens estimates prompt sizes for context budgeting.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"voice-companion/internal/domain/ports/adapter"
)

var (
	_ adapter.TokenEstimator = (*TiktokenEstimator)(nil)
	_ adapter.TokenEstimator = (*CharsEstimator)(nil)
)

// CharsEstimator approximates tokens from the rune count. Korean runs close
// to one token per rune on the cl100k/o200k vocabularies.
type CharsEstimator struct {
	CharsPerToken float64
}

func NewCharsEstimator(charsPerToken float64) *CharsEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 1.0
	}
	return &CharsEstimator{CharsPerToken: charsPerToken}
}

func (e *CharsEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return max(1, int(float64(n)/e.CharsPerToken))
}

// TiktokenEstimator counts with the model's BPE encoding. The encoding is
// loaded on first use; if it cannot be loaded (offline, unknown model) the
// chars estimate is used from then on.
type TiktokenEstimator struct {
	model    string
	fallback *CharsEstimator
	log      *zerolog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTiktokenEstimator(model string, logger *zerolog.Logger) *TiktokenEstimator {
	l := logger.With().Str("component", "tokens").Logger()
	return &TiktokenEstimator{model: model, fallback: NewCharsEstimator(0), log: &l}
}

func (e *TiktokenEstimator) load() {
	enc, err := tiktoken.EncodingForModel(e.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	}
	if err != nil {
		e.log.Warn().Err(err).Str("model", e.model).Msg("tiktoken unavailable, estimating from characters")
		return
	}
	e.enc = enc
}

func (e *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(e.load)
	if e.enc == nil {
		return e.fallback.Estimate(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}
