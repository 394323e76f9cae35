// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"voice-companion/internal/config"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
	aiAdapters "voice-companion/internal/infra/adapters/ai"
	"voice-companion/internal/infra/adapters/audio"
	"voice-companion/internal/infra/adapters/search"
	"voice-companion/internal/infra/adapters/tokens"
	pg "voice-companion/internal/infra/db/postgres"
	"voice-companion/internal/infra/logging"
	"voice-companion/internal/infra/memory"
	"voice-companion/internal/infra/metrics"
	red "voice-companion/internal/infra/redis"
	"voice-companion/internal/infra/scheduler"
	"voice-companion/internal/infra/security"
	"voice-companion/internal/infra/telemetry"
	"voice-companion/internal/infra/web"
	"voice-companion/internal/infra/worker"
	"voice-companion/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted text)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- AI providers ----
	openai, err := aiAdapters.NewOpenAIAdapter(aiAdapters.OpenAIOptions{
		APIKey:      cfg.AI.OpenAIKey,
		BaseURL:     cfg.AI.OpenAIBaseURL,
		STTModel:    cfg.AI.STTModel,
		TTSModel:    cfg.AI.TTSModel,
		SearchModel: cfg.AI.SearchModel,
		Timeout:     cfg.Server.RequestTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("openai adapter")
	}
	providers := map[string]aiAdapters.Provider{"openai": openai}
	if cfg.AI.GeminiKey != "" {
		gem, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, "")
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		providers["gemini"] = gem
	}
	router := aiAdapters.NewMultiAIAdapter("openai", providers, nil)
	limiter := aiAdapters.NewLimiter("ai", cfg.AI.ConcurrentLimit)
	logger.Info().
		Str("chat_model", cfg.AI.ChatModel).
		Str("classifier_model", cfg.AI.ClassifierModel).
		Int("providers", len(providers)).
		Int("concurrent_limit", cfg.AI.ConcurrentLimit).
		Msg("AI adapters ready")

	// ---- Audio ----
	var tc audio.Transcoder
	switch cfg.Audio.Decoder {
	case "convert":
		tc = audio.NewConvertServiceTranscoder(cfg.Audio.ConvertBase, cfg.Audio.Timeout)
	default:
		tc = audio.NewFFmpegTranscoder(cfg.Audio.FFmpegPath)
	}
	normalizer := audio.NewNormalizer(tc, audio.Options{TargetDBFS: cfg.Audio.TargetDBFS, Timeout: cfg.Audio.Timeout}, logger)

	// ---- Search ----
	var searcher adapter.ContentSearcher
	switch cfg.Search.Provider {
	case "tavily":
		ts, err := search.NewTavilySearcher(cfg.Search.TavilyKey, cfg.Search.TavilyURL, cfg.Search.MaxResults, cfg.Server.RequestTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("tavily searcher")
		}
		searcher = ts
	case "openai":
		searcher = openai
	}

	// ---- Domain wiring ----
	partition, err := model.NewPartition(cfg.Emotion.Negative)
	if err != nil {
		logger.Fatal().Err(err).Msg("emotion.negative")
	}
	catalog := model.NewCatalog(characters(cfg.Characters)...)
	history := memory.NewHistoryStore(cfg.History.MaxLen)
	suggestions := memory.NewSuggestionStore(cfg.Proactive.QuietHours)

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Proactive.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			logger.Fatal().Err(err).Str("timezone", tz).Msg("proactive.timezone")
		}
	}

	// ---- Optional stores ----
	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
	}
	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = pg.Connect(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		go pg.ReportPoolStats(ctx, pool, 15*time.Second)
	}

	// ---- Telemetry ----
	telePool := worker.NewPool("telemetry", cfg.Telemetry.Workers, 0, logger)
	telePool.Start(ctx)
	var sealer telemetry.TextSealer
	if cfg.Telemetry.EncryptionKey != "" {
		s, err := security.NewSealer(cfg.Telemetry.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("telemetry encryption key")
		}
		sealer = s
	}
	var sinks []adapter.TelemetrySink
	for _, name := range cfg.Telemetry.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, telemetry.NewLogSink(logger, cfg.Runtime.Dev))
		case "redis":
			sinks = append(sinks, telemetry.Sealed(red.NewTurnLogSink(redisClient, cfg.Telemetry.RedisKey, cfg.Telemetry.RedisMaxLen), sealer))
		case "postgres":
			sinks = append(sinks, telemetry.Sealed(pg.NewTurnLogRepo(pool), sealer))
		case "blob":
			sinks = append(sinks, telemetry.Sealed(telemetry.NewBlobSink(cfg.Telemetry.BlobURL, cfg.Telemetry.BlobToken, cfg.Telemetry.BlobProject, 0), sealer))
		}
	}
	publisher := telemetry.NewDispatcher(telePool, sinks, 0, logger)

	// ---- Use cases ----
	classifier := usecase.NewEmotionClassifier(limiter.Completer(router), cfg.AI.ClassifierModel, logger)
	recommender := usecase.NewRecommender(limiter.Searcher(searcher), usecase.DefaultStaticLinks(), cfg.Search.MaxLinks, logger)
	turnUC := usecase.NewTurnUseCase(usecase.TurnDeps{
		Normalizer:  normalizer,
		STT:         limiter.Transcriber(openai),
		Classifier:  classifier,
		Recommender: recommender,
		Chat:        limiter.Chat(router),
		TTS:         limiter.Synthesizer(openai),
		History:     history,
		Characters:  catalog,
		Partition:   partition,
		Publisher:   publisher,
		Tokens:      tokens.NewTiktokenEstimator(cfg.AI.ChatModel, logger),
	}, usecase.TurnOptions{
		ChatModel:     cfg.AI.ChatModel,
		Language:      cfg.AI.Language,
		HistoryMaxLen: cfg.History.MaxLen,
		TokenBudget:   cfg.History.TokenBudget,
		MaxTokens:     cfg.AI.MaxOutputTokens,
		Dev:           cfg.Runtime.Dev,
	}, logger)

	p := cfg.Proactive
	suggestUC := usecase.NewSuggestionUseCase(suggestions, usecase.SuggestionPolicy{
		Cooldown:         p.Cooldown,
		RejectRatioBlock: p.RejectRatioBlock,
		MinFeedback:      p.MinFeedback,
		Threshold:        p.Threshold,
		WorkStart:        p.WorkStart,
		WorkEnd:          p.WorkEnd,
		StressKeywords:   p.StressKeywords,
		WorkKeywords:     p.WorkKeywords,
		Alpha:            p.Alpha,
		Beta:             p.Beta,
		MinWeight:        p.MinWeight,
		MaxWeight:        p.MaxWeight,
		TopK:             p.TopK,
		Location:         loc,
	}, partition, logger)

	// ---- Scheduler ----
	sched := scheduler.NewScheduler(cfg.Scheduler.SweepInterval, logger,
		scheduler.Target{Name: "history", Store: history, TTL: cfg.History.IdleTTL, Count: history.Sessions},
		scheduler.Target{Name: "suggestion", Store: suggestions, TTL: cfg.Proactive.StateTTL, Count: suggestions.Len},
	)
	sched.Start(ctx)

	// ---- HTTP ----
	deps := web.Deps{
		Turns:      turnUC,
		Suggest:    suggestUC,
		History:    history,
		Characters: catalog,
		Auth:       web.NewAuthManager(cfg.Session.Secret, !cfg.Runtime.Dev, cfg.Session.TTL),
	}
	if redisClient != nil && cfg.Server.RateLimit > 0 {
		deps.Limiter = red.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow)
	}
	server := web.NewServer(deps, cfg.Server, cfg.Session.Required, logger).HTTPServer(fmt.Sprintf(":%d", cfg.Server.Port))
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")
	shutdown(server, sched, telePool, cfg.Server.ShutdownTimeout, logger)
	cancel()
}

func shutdown(server *http.Server, sched *scheduler.Scheduler, pool *worker.Pool, timeout time.Duration, logger *zerolog.Logger) {
	sctx, scancel := context.WithTimeout(context.Background(), timeout)
	defer scancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	sched.Stop()
	// flush queued telemetry before the stores close
	pool.Stop()
}

func characters(in []config.CharacterConfig) []model.Character {
	out := make([]model.Character, 0, len(in))
	for _, c := range in {
		out = append(out, model.Character{
			ID:        c.ID,
			Name:      c.Name,
			Persona:   c.Persona,
			Voice:     c.Voice,
			Suggest:   c.Suggest,
			Empathize: c.Empathize,
		})
	}
	return out
}
