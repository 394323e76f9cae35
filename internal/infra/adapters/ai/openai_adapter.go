package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the ports
var (
	_ adapter.ChatStreamer        = (*OpenAIAdapter)(nil)
	_ adapter.StructuredCompleter = (*OpenAIAdapter)(nil)
	_ adapter.Transcriber         = (*OpenAIAdapter)(nil)
	_ adapter.SpeechSynthesizer   = (*OpenAIAdapter)(nil)
	_ adapter.ContentSearcher     = (*OpenAIAdapter)(nil)
)

const providerOpenAI = "openai"

// ttsChunkSize is the read size for the speech response body; 4800 bytes is
// 100 ms of PCM16 mono at 24 kHz.
const ttsChunkSize = 4800

type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	STTModel    string
	TTSModel    string
	SearchModel string
	Timeout     time.Duration
}

// OpenAIAdapter covers every OpenAI-backed port: chat, structured
// completion, transcription, speech and search.
type OpenAIAdapter struct {
	client      openai.Client
	sttModel    string
	ttsModel    string
	searchModel string
}

func NewOpenAIAdapter(o OpenAIOptions) (*OpenAIAdapter, error) {
	if o.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	if o.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.Timeout))
	}
	if o.STTModel == "" {
		o.STTModel = "whisper-1"
	}
	if o.TTSModel == "" {
		o.TTSModel = "tts-1-hd"
	}
	if o.SearchModel == "" {
		o.SearchModel = "gpt-4o-search-preview"
	}
	return &OpenAIAdapter{
		client:      openai.NewClient(opts...),
		sttModel:    o.STTModel,
		ttsModel:    o.TTSModel,
		searchModel: o.SearchModel,
	}, nil
}

func toOpenAIMessages(system string, msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (o *OpenAIAdapter) ChatStream(ctx context.Context, req adapter.ChatRequest) (*adapter.TextStream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toOpenAIMessages(req.System, req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	out := adapter.NewTextStream()
	go func() {
		defer stream.Close()
		first := true
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				metrics.AddTokens(providerOpenAI, req.Model, int(chunk.Usage.PromptTokens), int(chunk.Usage.CompletionTokens))
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if first {
				metrics.ObserveAICall(providerOpenAI, "chat", time.Since(start), nil)
				first = false
			}
			if !out.Send(ctx, chunk.Choices[0].Delta.Content) {
				out.Finish(ctx.Err())
				return
			}
		}
		if err := stream.Err(); err != nil {
			if first {
				metrics.ObserveAICall(providerOpenAI, "chat", time.Since(start), err)
			}
			out.Finish(fmt.Errorf("%w: openai: %v", domain.ErrChatCompletion, err))
			return
		}
		out.Finish(nil)
	}()
	return out, nil
}

func (o *OpenAIAdapter) CompleteJSON(ctx context.Context, req adapter.StructuredRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    toOpenAIMessages(req.System, []adapter.Message{{Role: "user", Content: req.Prompt}}),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.SchemaName,
					Schema: req.Schema,
				},
			},
		}
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	metrics.ObserveAICall(providerOpenAI, "complete_json", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	metrics.AddTokens(providerOpenAI, req.Model, int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIAdapter) Transcribe(ctx context.Context, audio model.PCM, language string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio.WAV()), "speech.wav", "audio/wav"),
		Model: openai.AudioModel(o.sttModel),
	}
	if language != "" {
		params.Language = openai.String(language)
	}
	start := time.Now()
	res, err := o.client.Audio.Transcriptions.New(ctx, params)
	metrics.ObserveAICall(providerOpenAI, "stt", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%w: openai: %v", domain.ErrTranscription, err)
	}
	return strings.TrimSpace(res.Text), nil
}

// SynthesizeStream requests raw pcm (24 kHz s16le mono) and forwards the
// body as it arrives.
func (o *OpenAIAdapter) SynthesizeStream(ctx context.Context, text, voice string) (*adapter.AudioStream, error) {
	if voice == "" {
		voice = "alloy"
	}
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.ttsModel),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	}
	start := time.Now()
	resp, err := o.client.Audio.Speech.New(ctx, params, option.WithJSONSet("voice", voice))
	metrics.ObserveAICall(providerOpenAI, "tts", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", domain.ErrSynthesis, err)
	}

	out := adapter.NewAudioStream()
	go func() {
		defer resp.Body.Close()
		for {
			buf := make([]byte, ttsChunkSize)
			n, err := io.ReadFull(resp.Body, buf)
			// keep whole samples; ReadFull only returns short at EOF
			if m := n - n%2; m > 0 {
				if !out.Send(ctx, buf[:m]) {
					out.Finish(ctx.Err())
					return
				}
			}
			switch {
			case err == nil:
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				out.Finish(nil)
			default:
				out.Finish(fmt.Errorf("%w: openai: %v", domain.ErrSynthesis, err))
			}
			return
		}
	}()
	return out, nil
}

// Search asks the search-preview model and returns its answer with any
// url_citation annotations.
func (o *OpenAIAdapter) Search(ctx context.Context, query string) (adapter.SearchResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.searchModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(query),
		},
		WebSearchOptions: openai.ChatCompletionNewParamsWebSearchOptions{
			SearchContextSize: "medium",
		},
	}
	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	metrics.ObserveAICall(providerOpenAI, "search", time.Since(start), err)
	if err != nil {
		return adapter.SearchResult{}, fmt.Errorf("openai search: %w", err)
	}
	if len(resp.Choices) == 0 {
		return adapter.SearchResult{}, nil
	}
	msg := resp.Choices[0].Message
	res := adapter.SearchResult{Text: msg.Content}
	for _, a := range msg.Annotations {
		if a.URLCitation.URL == "" {
			continue
		}
		res.Citations = append(res.Citations, adapter.Citation{Title: a.URLCitation.Title, URL: a.URLCitation.URL})
	}
	return res, nil
}
