package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Parse([]byte("log:\n  level: debug\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AI.OpenAIKey != "sk-test" {
		t.Fatalf("env key not applied")
	}
	if cfg.Server.Port != 8080 || cfg.History.MaxLen != 6 || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected defaults: port=%d max_len=%d level=%s", cfg.Server.Port, cfg.History.MaxLen, cfg.Log.Level)
	}
	if cfg.Proactive.Cooldown != 45*time.Minute || cfg.Proactive.TopK != 2 || len(cfg.Proactive.QuietHours) != 7 {
		t.Fatalf("unexpected proactive defaults %+v", cfg.Proactive)
	}
	if len(cfg.Telemetry.Sinks) != 1 || cfg.Telemetry.Sinks[0] != "log" {
		t.Fatalf("default sink should be log, got %v", cfg.Telemetry.Sinks)
	}
	if cfg.Search.Provider != "openai" || cfg.Audio.Decoder != "ffmpeg" {
		t.Fatalf("unexpected provider defaults")
	}
}

func TestParse_ExplicitEmptyQuietHours(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Parse([]byte("proactive:\n  quiet_hours: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Proactive.QuietHours) != 0 {
		t.Fatalf("an explicit empty list should disable quiet hours, got %v", cfg.Proactive.QuietHours)
	}
}

func TestParse_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing key", "log:\n  level: info\n", "openai_key"},
		{"odd history", "ai:\n  openai_key: k\nhistory:\n  max_len: 5\n", "even"},
		{"required session", "ai:\n  openai_key: k\nsession:\n  required: true\n", "session.secret"},
		{"convert without base", "ai:\n  openai_key: k\naudio:\n  decoder: convert\n", "convert_base"},
		{"quiet hour range", "ai:\n  openai_key: k\nproactive:\n  quiet_hours: [24]\n", "out of range"},
		{"weights", "ai:\n  openai_key: k\nproactive:\n  min_weight: 4\n", "min_weight"},
		{"redis sink", "ai:\n  openai_key: k\ntelemetry:\n  sinks: [redis]\n", "redis.url"},
		{"unknown sink", "ai:\n  openai_key: k\ntelemetry:\n  sinks: [kafka]\n", "unknown sink"},
		{"bad yaml", "ai: [\n", "parse config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "")
			_, err := Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := LoadConfig(filepath.Join("..", "..", "config.example.yaml"), true)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Runtime.Dev || cfg.Audio.TargetDBFS != -20 || cfg.Proactive.Timezone != "Asia/Seoul" {
		t.Fatalf("example not loaded as expected: %+v", cfg.Audio)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file should fail with not-exist, got %v", err)
	}
}

