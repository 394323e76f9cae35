// File: .\internal\infra\adapters\ai\gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/metrics"
)

var (
	_ adapter.ChatStreamer        = (*GeminiAdapter)(nil)
	_ adapter.StructuredCompleter = (*GeminiAdapter)(nil)
)

const providerGemini = "gemini"

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiAdapter) ChatStream(ctx context.Context, req adapter.ChatRequest) (*adapter.TextStream, error) {
	model := modelOrDefault(req.Model, g.defaultModel)
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	contents := toGenAIHistory(req.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: gemini: no messages", domain.ErrChatCompletion)
	}

	start := time.Now()
	out := adapter.NewTextStream()
	go func() {
		first := true
		for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				if first {
					metrics.ObserveAICall(providerGemini, "chat", time.Since(start), err)
				}
				out.Finish(fmt.Errorf("%w: gemini: %v", domain.ErrChatCompletion, err))
				return
			}
			if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
				metrics.AddTokens(providerGemini, model, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if first {
				metrics.ObserveAICall(providerGemini, "chat", time.Since(start), nil)
				first = false
			}
			if !out.Send(ctx, text) {
				out.Finish(ctx.Err())
				return
			}
		}
		out.Finish(nil)
	}()
	return out, nil
}

// CompleteJSON requests application/json output constrained by the schema.
func (g *GeminiAdapter) CompleteJSON(ctx context.Context, req adapter.StructuredRequest) (string, error) {
	model := modelOrDefault(req.Model, g.defaultModel)
	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseJsonSchema = req.Schema
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	metrics.ObserveAICall(providerGemini, "complete_json", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp.UsageMetadata != nil {
		metrics.AddTokens(providerGemini, model, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	return resp.Text(), nil
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		if r := strings.ToLower(m.Role); r == "assistant" || r == "model" {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
