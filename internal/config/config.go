// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	Staff         StaffConfig
	Buffer        BufferConfig
	Scheduler     SchedulerConfig
	Providers     ProviderConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	HTTPPort      string
	DBPath        string
	MaxAudioBytes int64
	SSEKeepalive  time.Duration
}

type StaffConfig struct {
	Passcode   string
	SessionTTL time.Duration
}

type BufferConfig struct {
	MaxMessages            int
	MaxMessageChars        int
	MaxTotalChars          int
	FoldExcerptChars       int
	MaxRunningSummaryChars int
}

type SchedulerConfig struct {
	TickInterval      time.Duration
	InactivityTimeout time.Duration
}

type ProviderConfig struct {
	STTProvider     string // "stub" or "google"
	STTLanguageCode string
	STTSampleRateHz int
	LLMProvider     string // "stub" or "gemini"
	LLMModel        string
	TTSProvider     string // "stub" or "engine"
	TTSEngineURL    string
	TTSSpeaker      int
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicApprovals string
	TopicSummaries string
	Principal      string
}

type ObservabilityConfig struct {
	Addr string
}

// Load reads configuration from the environment, applying defaults for
// anything unset or unparseable.
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			HTTPPort:      envOrDefault("HTTP_PORT", "8080"),
			DBPath:        envOrDefault("DB_PATH", "kiosk.db"),
			MaxAudioBytes: envOrDefaultInt64("MAX_AUDIO_BYTES", 5*1024*1024),
			SSEKeepalive:  envOrDefaultMs("SSE_KEEPALIVE_MS", 15*time.Second),
		},
		Staff: StaffConfig{
			Passcode:   os.Getenv("STAFF_PASSCODE"),
			SessionTTL: envOrDefaultMs("STAFF_SESSION_TTL_MS", 180*time.Second),
		},
		Buffer: BufferConfig{
			MaxMessages:            envOrDefaultInt("BUFFER_MAX_MESSAGES", 20),
			MaxMessageChars:        envOrDefaultInt("BUFFER_MAX_MESSAGE_CHARS", 600),
			MaxTotalChars:          envOrDefaultInt("BUFFER_MAX_TOTAL_CHARS", 6000),
			FoldExcerptChars:       envOrDefaultInt("BUFFER_FOLD_EXCERPT_CHARS", 60),
			MaxRunningSummaryChars: envOrDefaultInt("BUFFER_MAX_RUNNING_SUMMARY_CHARS", 1200),
		},
		Scheduler: SchedulerConfig{
			TickInterval:      envOrDefaultMs("TICK_INTERVAL_MS", 5*time.Second),
			InactivityTimeout: envOrDefaultMs("INACTIVITY_TIMEOUT_MS", 90*time.Second),
		},
		Providers: ProviderConfig{
			STTProvider:     envOrDefault("STT_PROVIDER", "stub"),
			STTLanguageCode: envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			STTSampleRateHz: envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			LLMProvider:     envOrDefault("LLM_PROVIDER", "stub"),
			LLMModel:        envOrDefault("LLM_MODEL", "gemini-2.0-flash"),
			TTSProvider:     envOrDefault("TTS_PROVIDER", "stub"),
			TTSEngineURL:    envOrDefault("TTS_ENGINE_URL", "http://127.0.0.1:50021"),
			TTSSpeaker:      envOrDefaultInt("TTS_SPEAKER", 1),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			TopicApprovals: envOrDefault("KAFKA_TOPIC_APPROVALS", "kiosk.approvals"),
			TopicSummaries: envOrDefault("KAFKA_TOPIC_SUMMARIES", "kiosk.summaries"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", "svc-kiosk-orchestrator"),
		},
		Observability: ObservabilityConfig{
			Addr: envOrDefault("OBS_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultMs(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
