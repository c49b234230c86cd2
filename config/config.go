// Package config provides configuration management for the meet workers.
// It supports loading configuration from a YAML file and environment
// variables, with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultTranscribeQueue = "transcribe-queue"
	DefaultSummarizeQueue  = "summarize-queue"
	DefaultRedisAddr       = "localhost:6379"
	DefaultLocale          = "fr"
	DefaultASRModel        = "whisper-1"
	DefaultMetricsAddr     = ":9102"
)

// StorageConfig holds object storage (S3/MinIO) settings.
type StorageConfig struct {
	// Endpoint is the storage server host:port, without scheme.
	Endpoint string `yaml:"endpoint"`

	// AccessKeyID and SecretAccessKey are the storage credentials.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// Bucket is the bucket holding recordings and derived artifacts.
	Bucket string `yaml:"bucket"`

	// UseTLS enables https access to the storage endpoint.
	UseTLS bool `yaml:"use_tls"`
}

// ASRConfig holds transcription engine settings.
type ASRConfig struct {
	// BaseURL is the openai-compatible transcription endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the transcription endpoint.
	APIKey string `yaml:"api_key"`

	// Model is the transcription model name.
	Model string `yaml:"model"`

	// AllowedLanguages restricts the optional language hint. An empty
	// hint is always accepted.
	AllowedLanguages []string `yaml:"allowed_languages"`

	// Timeout bounds a single transcription call.
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig holds completion endpoint settings.
type LLMConfig struct {
	// BaseURL is the openai-compatible chat completions endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the completion endpoint.
	APIKey string `yaml:"api_key"`

	// Model is the completion model name.
	Model string `yaml:"model"`

	// Timeout bounds a single completion call.
	Timeout time.Duration `yaml:"timeout"`
}

// WebhookConfig holds document delivery settings.
type WebhookConfig struct {
	// URL receives the final documents.
	URL string `yaml:"url"`

	// APIToken is sent as a bearer token.
	APIToken string `yaml:"api_token"`

	// MaxRetries is the number of extra delivery attempts after the
	// first, on retryable statuses only.
	MaxRetries int `yaml:"max_retries"`

	// BackoffFactor scales the exponential backoff between attempts.
	BackoffFactor float64 `yaml:"backoff_factor"`

	// RetryStatuses lists the HTTP statuses considered retryable.
	RetryStatuses []int `yaml:"retry_statuses"`
}

// QueueConfig holds task queue settings.
type QueueConfig struct {
	// RedisAddr is the redis server backing the queues.
	RedisAddr string `yaml:"redis_addr"`

	// TranscribeQueue and SummarizeQueue name the two work queues.
	TranscribeQueue string `yaml:"transcribe_queue"`
	SummarizeQueue  string `yaml:"summarize_queue"`

	// MaxRetries bounds redelivery of a failed job.
	MaxRetries int `yaml:"max_retries"`
}

// RecordingConfig holds validation settings for incoming recordings.
type RecordingConfig struct {
	// MaxDuration rejects recordings longer than this. Zero disables
	// the check.
	MaxDuration time.Duration `yaml:"max_duration"`

	// AllowedExtensions restricts downloadable recording files.
	AllowedExtensions []string `yaml:"allowed_extensions"`

	// VideoExtensions lists extensions requiring audio extraction.
	VideoExtensions []string `yaml:"video_extensions"`
}

// SummaryConfig holds summarization pipeline settings.
type SummaryConfig struct {
	// Enabled is the service-wide kill switch for summary generation.
	Enabled bool `yaml:"enabled"`

	// PartTolerance is the +/- band passed to the plan prompt around
	// the computed part count.
	PartTolerance int `yaml:"part_tolerance"`
}

// FlagConfig holds the static feature flag table.
type FlagConfig struct {
	// Enabled turns the flag on for everyone.
	Enabled bool `yaml:"enabled"`

	// AllowedSubs turns the flag on for the listed subjects only.
	AllowedSubs []string `yaml:"allowed_subs"`
}

// Config holds the full worker configuration.
type Config struct {
	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`

	// LogJSON switches logging to JSON output.
	LogJSON bool `yaml:"log_json"`

	// Locale selects the output language (fr, en, de, nl).
	Locale string `yaml:"locale"`

	// MetricsAddr is the prometheus scrape listen address.
	MetricsAddr string `yaml:"metrics_addr"`

	// HallucinationPatterns are literal substrings removed from
	// transcripts, replacing each with the locale placeholder.
	HallucinationPatterns []string `yaml:"hallucination_patterns"`

	Storage   StorageConfig         `yaml:"storage"`
	ASR       ASRConfig             `yaml:"asr"`
	LLM       LLMConfig             `yaml:"llm"`
	Webhook   WebhookConfig         `yaml:"webhook"`
	Queue     QueueConfig           `yaml:"queue"`
	Recording RecordingConfig       `yaml:"recording"`
	Summary   SummaryConfig         `yaml:"summary"`
	Flags     map[string]FlagConfig `yaml:"flags"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Locale:      DefaultLocale,
		MetricsAddr: DefaultMetricsAddr,
		HallucinationPatterns: []string{
			"Sous-titres réalisés para la communauté d'Amara.org",
			"Sous-titres réalisés par la communauté d'Amara.org",
			"Merci d'avoir regardé cette vidéo !",
			"Thank you for watching.",
		},
		ASR: ASRConfig{
			Model:            DefaultASRModel,
			AllowedLanguages: []string{"fr", "en", "de", "nl"},
			Timeout:          10 * time.Minute,
		},
		LLM: LLMConfig{
			Timeout: 5 * time.Minute,
		},
		Webhook: WebhookConfig{
			MaxRetries:    2,
			BackoffFactor: 0.1,
			RetryStatuses: []int{502, 503, 504},
		},
		Queue: QueueConfig{
			RedisAddr:       DefaultRedisAddr,
			TranscribeQueue: DefaultTranscribeQueue,
			SummarizeQueue:  DefaultSummarizeQueue,
			MaxRetries:      2,
		},
		Recording: RecordingConfig{
			AllowedExtensions: []string{".ogg", ".mp3", ".wav", ".m4a", ".mp4"},
			VideoExtensions:   []string{".mp4"},
		},
		Summary: SummaryConfig{
			Enabled:       true,
			PartTolerance: 2,
		},
	}
}

// LoadConfig loads configuration in this order (later sources override
// earlier): defaults, YAML file at path (if non-empty and present),
// MEET_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFromFile(cfg, path); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	setBool("MEET_DEBUG", &cfg.Debug)
	setBool("MEET_LOG_JSON", &cfg.LogJSON)
	setString("MEET_LOCALE", &cfg.Locale)
	setString("MEET_METRICS_ADDR", &cfg.MetricsAddr)

	setString("MEET_STORAGE_ENDPOINT", &cfg.Storage.Endpoint)
	setString("MEET_STORAGE_ACCESS_KEY_ID", &cfg.Storage.AccessKeyID)
	setString("MEET_STORAGE_SECRET_ACCESS_KEY", &cfg.Storage.SecretAccessKey)
	setString("MEET_STORAGE_BUCKET", &cfg.Storage.Bucket)
	setBool("MEET_STORAGE_USE_TLS", &cfg.Storage.UseTLS)

	setString("MEET_ASR_BASE_URL", &cfg.ASR.BaseURL)
	setString("MEET_ASR_API_KEY", &cfg.ASR.APIKey)
	setString("MEET_ASR_MODEL", &cfg.ASR.Model)
	if v := os.Getenv("MEET_ASR_ALLOWED_LANGUAGES"); v != "" {
		cfg.ASR.AllowedLanguages = splitList(v)
	}

	setString("MEET_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString("MEET_LLM_API_KEY", &cfg.LLM.APIKey)
	setString("MEET_LLM_MODEL", &cfg.LLM.Model)

	setString("MEET_WEBHOOK_URL", &cfg.Webhook.URL)
	setString("MEET_WEBHOOK_API_TOKEN", &cfg.Webhook.APIToken)
	if v := os.Getenv("MEET_WEBHOOK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Webhook.MaxRetries = n
		}
	}

	setString("MEET_REDIS_ADDR", &cfg.Queue.RedisAddr)
	setString("MEET_TRANSCRIBE_QUEUE", &cfg.Queue.TranscribeQueue)
	setString("MEET_SUMMARIZE_QUEUE", &cfg.Queue.SummarizeQueue)
	if v := os.Getenv("MEET_QUEUE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxRetries = n
		}
	}

	if v := os.Getenv("MEET_RECORDING_MAX_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recording.MaxDuration = d
		}
	}

	setBool("MEET_SUMMARY_ENABLED", &cfg.Summary.Enabled)
}

// splitList splits a comma-separated env value into trimmed items.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	switch c.Locale {
	case "fr", "en", "de", "nl":
	default:
		return fmt.Errorf("invalid locale: %q (must be fr, en, de, or nl)", c.Locale)
	}

	if c.Queue.TranscribeQueue == "" || c.Queue.SummarizeQueue == "" {
		return fmt.Errorf("queue names are required")
	}

	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue max_retries must not be negative")
	}

	if c.Webhook.MaxRetries < 0 {
		return fmt.Errorf("webhook max_retries must not be negative")
	}

	if c.Webhook.BackoffFactor < 0 {
		return fmt.Errorf("webhook backoff_factor must not be negative")
	}

	return nil
}
