// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"strings"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/ports/adapter"
)

var (
	_ adapter.ChatStreamer        = (*MultiAIAdapter)(nil)
	_ adapter.StructuredCompleter = (*MultiAIAdapter)(nil)
)

// Provider is what each routed backend must offer.
type Provider interface {
	adapter.ChatStreamer
	adapter.StructuredCompleter
}

type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]Provider
	modelToProvider map[string]string // model -> provider ("openai" | "gemini")
}

// NewMultiAIAdapter does not inject any default model; it only knows a default provider.
// Each provider adapter is responsible for its own default model.
func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]Provider,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return providerGemini
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return providerOpenAI
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) Provider {
	prov := m.resolveProvider(model)
	if a := m.byProvider[prov]; a != nil {
		return a
	}
	// last resort: the default, then any available
	if a := m.byProvider[m.defaultProvider]; a != nil {
		return a
	}
	for _, a := range m.byProvider {
		if a != nil {
			return a
		}
	}
	return nil
}

func (m *MultiAIAdapter) ChatStream(ctx context.Context, req adapter.ChatRequest) (*adapter.TextStream, error) {
	a := m.pick(req.Model)
	if a == nil {
		return nil, fmt.Errorf("%w: no provider for model %q", domain.ErrChatCompletion, req.Model)
	}
	return a.ChatStream(ctx, req)
}

func (m *MultiAIAdapter) CompleteJSON(ctx context.Context, req adapter.StructuredRequest) (string, error) {
	a := m.pick(req.Model)
	if a == nil {
		return "", fmt.Errorf("no provider for model %q", req.Model)
	}
	return a.CompleteJSON(ctx, req)
}
