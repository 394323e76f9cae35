// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"`      // turns per window per session; 0 disables
	RateWindow      time.Duration `yaml:"rate_window"`     // fixed window length
	AllowedOrigins  []string      `yaml:"allowed_origins"` // websocket origin allow-list; empty allows all
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	ChatModel       string `yaml:"chat_model"`       // gpt-* routes to OpenAI, gemini-* to Gemini
	ClassifierModel string `yaml:"classifier_model"` // structured emotion completion
	SearchModel     string `yaml:"search_model"`     // search-capable chat model
	STTModel        string `yaml:"stt_model"`
	TTSModel        string `yaml:"tts_model"`
	Language        string `yaml:"language"` // STT hint, ISO-639-1
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
}

type AudioConfig struct {
	Decoder     string        `yaml:"decoder"` // ffmpeg|convert
	FFmpegPath  string        `yaml:"ffmpeg_path"`
	ConvertBase string        `yaml:"convert_base"`
	Timeout     time.Duration `yaml:"timeout"`
	TargetDBFS  float64       `yaml:"target_dbfs"` // 0 disables loudness levelling
}

type SearchConfig struct {
	Provider   string `yaml:"provider"` // openai|tavily|none
	TavilyKey  string `yaml:"tavily_key"`
	TavilyURL  string `yaml:"tavily_url"`
	MaxResults int    `yaml:"max_results"`
	MaxLinks   int    `yaml:"max_links"`
}

type HistoryConfig struct {
	MaxLen      int           `yaml:"max_len"`      // turns kept per session; even
	IdleTTL     time.Duration `yaml:"idle_ttl"`     // sessions untouched this long are evicted
	TokenBudget int           `yaml:"token_budget"` // 0 disables context trimming
}

type EmotionConfig struct {
	// Negative lists the labels routed to the recommendation track.
	Negative []string `yaml:"negative"`
}

type ProactiveConfig struct {
	Cooldown         time.Duration `yaml:"cooldown"`
	RejectRatioBlock float64       `yaml:"reject_ratio_block"`
	MinFeedback      int           `yaml:"min_feedback"`
	Threshold        float64       `yaml:"threshold"`
	QuietHours       []int         `yaml:"quiet_hours"`
	WorkStart        int           `yaml:"work_start"`
	WorkEnd          int           `yaml:"work_end"`
	StressKeywords   []string      `yaml:"stress_keywords"`
	WorkKeywords     []string      `yaml:"work_keywords"`
	Alpha            float64       `yaml:"alpha"`
	Beta             float64       `yaml:"beta"`
	MinWeight        float64       `yaml:"min_weight"`
	MaxWeight        float64       `yaml:"max_weight"`
	TopK             int           `yaml:"top_k"`
	StateTTL         time.Duration `yaml:"state_ttl"`
	Timezone         string        `yaml:"timezone"`
}

type TelemetryConfig struct {
	Sinks       []string `yaml:"sinks"` // log|redis|postgres|blob
	Workers     int      `yaml:"workers"`
	RedisKey    string   `yaml:"redis_key"`
	RedisMaxLen int64    `yaml:"redis_max_len"`
	BlobURL     string   `yaml:"blob_url"`
	BlobToken   string   `yaml:"blob_token"`
	BlobProject string   `yaml:"blob_project"`
	// EncryptionKey seals user and assistant text in the redis, postgres and
	// blob sinks. 16/24/32 raw bytes or their base64 form.
	EncryptionKey string `yaml:"encryption_key"`
}

type SessionConfig struct {
	Secret   string        `yaml:"secret"`
	TTL      time.Duration `yaml:"ttl"`
	Required bool          `yaml:"required"` // reject requests without a session token
}

type SchedulerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type CharacterConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Persona   string `yaml:"persona"`
	Voice     string `yaml:"voice"`
	Suggest   string `yaml:"suggest"`
	Empathize string `yaml:"empathize"`
}

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Log        LogConfig         `yaml:"log"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	AI         AIConfig          `yaml:"ai"`
	Audio      AudioConfig       `yaml:"audio"`
	Search     SearchConfig      `yaml:"search"`
	History    HistoryConfig     `yaml:"history"`
	Emotion    EmotionConfig     `yaml:"emotion"`
	Proactive  ProactiveConfig   `yaml:"proactive"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
	Session    SessionConfig     `yaml:"session"`
	Scheduler  SchedulerConfig   `yaml:"scheduler"`
	Characters []CharacterConfig `yaml:"characters"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path, overlays secrets from the
// environment and fills defaults. A missing file is an error.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes raw yaml and applies env overrides, defaults and validation.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	envStr(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	envStr(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	envStr(&cfg.Search.TavilyKey, "TAVILY_API_KEY")
	envStr(&cfg.Session.Secret, "SESSION_SECRET")
	envStr(&cfg.Database.URL, "DATABASE_URL")
	envStr(&cfg.Redis.URL, "REDIS_URL")
	envStr(&cfg.Audio.ConvertBase, "CONVERT_API_BASE")
	envStr(&cfg.Telemetry.BlobToken, "VERCEL_TOKEN")
	envStr(&cfg.Telemetry.BlobProject, "VERCEL_PROJECT_ID")
	envStr(&cfg.Telemetry.EncryptionKey, "TURN_LOG_ENCRYPTION_KEY")
}

func envStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 90 * time.Second
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 25 << 20
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RateWindow <= 0 {
		cfg.Server.RateWindow = time.Minute
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.ChatModel == "" {
		cfg.AI.ChatModel = "gpt-4o"
	}
	if cfg.AI.ClassifierModel == "" {
		cfg.AI.ClassifierModel = "gpt-4o"
	}
	if cfg.AI.SearchModel == "" {
		cfg.AI.SearchModel = "gpt-4o-search-preview"
	}
	if cfg.AI.STTModel == "" {
		cfg.AI.STTModel = "whisper-1"
	}
	if cfg.AI.TTSModel == "" {
		cfg.AI.TTSModel = "tts-1-hd"
	}
	if cfg.AI.Language == "" {
		cfg.AI.Language = "ko"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 512
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}

	if cfg.Audio.Decoder == "" {
		cfg.Audio.Decoder = "ffmpeg"
	}
	if cfg.Audio.FFmpegPath == "" {
		cfg.Audio.FFmpegPath = "ffmpeg"
	}
	if cfg.Audio.Timeout <= 0 {
		cfg.Audio.Timeout = 20 * time.Second
	}

	if cfg.Search.Provider == "" {
		cfg.Search.Provider = "openai"
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 5
	}
	if cfg.Search.MaxLinks <= 0 {
		cfg.Search.MaxLinks = 3
	}

	if cfg.History.MaxLen <= 0 {
		cfg.History.MaxLen = 6
	}
	if cfg.History.IdleTTL <= 0 {
		cfg.History.IdleTTL = 2 * time.Hour
	}

	if len(cfg.Emotion.Negative) == 0 {
		cfg.Emotion.Negative = []string{"anger", "sorrow", "hate", "fear"}
	}

	p := &cfg.Proactive
	if p.Cooldown <= 0 {
		p.Cooldown = 45 * time.Minute
	}
	if p.RejectRatioBlock <= 0 {
		p.RejectRatioBlock = 0.6
	}
	if p.MinFeedback <= 0 {
		p.MinFeedback = 5
	}
	if p.Threshold <= 0 {
		p.Threshold = 0.6
	}
	if p.QuietHours == nil {
		p.QuietHours = []int{0, 1, 2, 3, 4, 5, 6}
	}
	if p.WorkStart == 0 && p.WorkEnd == 0 {
		p.WorkStart, p.WorkEnd = 9, 19
	}
	if len(p.StressKeywords) == 0 {
		p.StressKeywords = []string{"sad", "ang", "stres", "tired", "anx", "sorrow", "hate", "fear"}
	}
	if len(p.WorkKeywords) == 0 {
		p.WorkKeywords = []string{"work", "task", "focus", "study"}
	}
	if p.Alpha <= 0 {
		p.Alpha = 0.25
	}
	if p.Beta <= 0 {
		p.Beta = 0.2
	}
	if p.MinWeight <= 0 {
		p.MinWeight = 0.2
	}
	if p.MaxWeight <= 0 {
		p.MaxWeight = 3.0
	}
	if p.TopK <= 0 {
		p.TopK = 2
	}
	if p.StateTTL <= 0 {
		p.StateTTL = 24 * time.Hour
	}

	if len(cfg.Telemetry.Sinks) == 0 {
		cfg.Telemetry.Sinks = []string{"log"}
	}
	if cfg.Telemetry.Workers <= 0 {
		cfg.Telemetry.Workers = 2
	}
	if cfg.Telemetry.RedisKey == "" {
		cfg.Telemetry.RedisKey = "turn_logs"
	}
	if cfg.Telemetry.RedisMaxLen <= 0 {
		cfg.Telemetry.RedisMaxLen = 10000
	}
	if cfg.Telemetry.BlobURL == "" {
		cfg.Telemetry.BlobURL = "https://api.vercel.com/v2/blob"
	}

	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = 5 * time.Minute
	}
}

func validate(cfg *Config) error {
	if cfg.AI.OpenAIKey == "" {
		return errors.New("ai.openai_key is required for transcription and speech")
	}
	if cfg.History.MaxLen%2 != 0 {
		return errors.New("history.max_len must be even")
	}
	if cfg.Session.Required && cfg.Session.Secret == "" {
		return errors.New("session.secret is required when session.required is set")
	}
	if cfg.Audio.Decoder == "convert" && cfg.Audio.ConvertBase == "" {
		return errors.New("audio.convert_base is required for the convert decoder")
	}
	for _, h := range cfg.Proactive.QuietHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("proactive.quiet_hours: hour %d out of range", h)
		}
	}
	if cfg.Proactive.MinWeight > cfg.Proactive.MaxWeight {
		return errors.New("proactive.min_weight must not exceed proactive.max_weight")
	}
	for _, s := range cfg.Telemetry.Sinks {
		switch s {
		case "log", "blob":
		case "redis":
			if cfg.Redis.URL == "" {
				return errors.New("redis.url is required for the redis telemetry sink")
			}
		case "postgres":
			if cfg.Database.URL == "" {
				return errors.New("database.url is required for the postgres telemetry sink")
			}
		default:
			return fmt.Errorf("telemetry.sinks: unknown sink %q", s)
		}
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
