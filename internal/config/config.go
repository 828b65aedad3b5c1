package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

type Config struct {
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	Grobid GrobidConfig `yaml:"grobid"`
	VLLM   VLLMConfig   `yaml:"vllm"`
	Prompt PromptConfig `yaml:"prompt"`

	PostgresDSN string `yaml:"postgres_dsn"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	Resilience ResilienceConfig `yaml:"resilience"`
}

type GrobidConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	Workers      int           `yaml:"workers"`
}

type VLLMConfig struct {
	URL       string        `yaml:"url"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

type PromptConfig struct {
	MaxChars      int `yaml:"max_chars"`
	MinTailWindow int `yaml:"min_tail_window"`
}

type ResilienceConfig struct {
	RetryMaxAttempts        int           `yaml:"retry_max_attempts"`
	RetryInitialBackoff     time.Duration `yaml:"retry_initial_backoff"`
	RetryMaxBackoff         time.Duration `yaml:"retry_max_backoff"`
	RetryMultiplier         float64       `yaml:"retry_multiplier"`
	BreakerEnabled          bool          `yaml:"breaker_enabled"`
	BreakerMinRequests      int           `yaml:"breaker_min_requests"`
	BreakerFailureRatio     float64       `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout      time.Duration `yaml:"breaker_open_timeout"`
	BreakerHalfOpenMaxCalls int           `yaml:"breaker_half_open_max_calls"`
}

func Defaults() Config {
	return Config{
		LogLevel: "info",

		Grobid: GrobidConfig{
			URL:     "http://localhost:8080/api/processHeaderDocument",
			Timeout: 300 * time.Second,
			Workers: 1,
		},
		VLLM: VLLMConfig{
			URL:       "http://localhost:8000",
			Model:     "affiliation-lora",
			Timeout:   300 * time.Second,
			MaxTokens: 512,
		},
		Prompt: PromptConfig{
			MaxChars:      2000,
			MinTailWindow: 200,
		},

		NATSSubject: "affiliations.predictions",

		Resilience: ResilienceConfig{
			RetryMaxAttempts:        4,
			RetryInitialBackoff:     time.Second,
			RetryMaxBackoff:         20 * time.Second,
			RetryMultiplier:         2.0,
			BreakerEnabled:          true,
			BreakerMinRequests:      5,
			BreakerFailureRatio:     0.5,
			BreakerOpenTimeout:      time.Minute,
			BreakerHalfOpenMaxCalls: 1,
		},
	}
}

// Load layers defaults, the optional YAML file at path and the environment,
// in that order. Command-line flags are applied on top by the caller.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	return fromEnv(cfg), nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "parse config file", err)
	}
	return nil
}

func fromEnv(cfg Config) Config {
	cfg.LogLevel = mustEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsAddr = mustEnv("METRICS_ADDR", cfg.MetricsAddr)

	cfg.Grobid.URL = mustEnv("GROBID_URL", cfg.Grobid.URL)
	cfg.Grobid.Timeout = mustEnvDuration("GROBID_TIMEOUT", cfg.Grobid.Timeout)
	cfg.Grobid.RateLimitRPS = mustEnvFloat("GROBID_RATE_LIMIT_RPS", cfg.Grobid.RateLimitRPS)
	cfg.Grobid.Workers = mustEnvInt("GROBID_WORKERS", cfg.Grobid.Workers)

	cfg.VLLM.URL = mustEnv("VLLM_URL", cfg.VLLM.URL)
	cfg.VLLM.Model = mustEnv("VLLM_MODEL", cfg.VLLM.Model)
	cfg.VLLM.APIKey = mustEnv("VLLM_API_KEY", cfg.VLLM.APIKey)
	cfg.VLLM.Timeout = mustEnvDuration("VLLM_TIMEOUT", cfg.VLLM.Timeout)
	cfg.VLLM.MaxTokens = mustEnvInt("VLLM_MAX_TOKENS", cfg.VLLM.MaxTokens)

	cfg.Prompt.MaxChars = mustEnvInt("PROMPT_MAX_CHARS", cfg.Prompt.MaxChars)
	cfg.Prompt.MinTailWindow = mustEnvInt("PROMPT_MIN_TAIL_WINDOW", cfg.Prompt.MinTailWindow)

	cfg.PostgresDSN = mustEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.NATSURL = mustEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = mustEnv("NATS_SUBJECT", cfg.NATSSubject)

	r := &cfg.Resilience
	r.RetryMaxAttempts = mustEnvInt("RETRY_MAX_ATTEMPTS", r.RetryMaxAttempts)
	r.RetryInitialBackoff = mustEnvDuration("RETRY_INITIAL_BACKOFF", r.RetryInitialBackoff)
	r.RetryMaxBackoff = mustEnvDuration("RETRY_MAX_BACKOFF", r.RetryMaxBackoff)
	r.RetryMultiplier = mustEnvFloat("RETRY_MULTIPLIER", r.RetryMultiplier)
	r.BreakerEnabled = mustEnvBool("BREAKER_ENABLED", r.BreakerEnabled)
	r.BreakerMinRequests = mustEnvInt("BREAKER_MIN_REQUESTS", r.BreakerMinRequests)
	r.BreakerFailureRatio = mustEnvFloat("BREAKER_FAILURE_RATIO", r.BreakerFailureRatio)
	r.BreakerOpenTimeout = mustEnvDuration("BREAKER_OPEN_TIMEOUT", r.BreakerOpenTimeout)
	r.BreakerHalfOpenMaxCalls = mustEnvInt("BREAKER_HALF_OPEN_MAX_CALLS", r.BreakerHalfOpenMaxCalls)

	return cfg
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Grobid.Workers < 1 {
		errs = append(errs, fmt.Errorf("grobid workers must be >= 1, got %d", c.Grobid.Workers))
	}
	if c.Grobid.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("grobid rate limit must be >= 0, got %v", c.Grobid.RateLimitRPS))
	}
	if c.Prompt.MaxChars < 1 {
		errs = append(errs, fmt.Errorf("prompt max chars must be >= 1, got %d", c.Prompt.MaxChars))
	}
	if c.VLLM.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("vllm max tokens must be >= 1, got %d", c.VLLM.MaxTokens))
	}
	for name, raw := range map[string]string{"grobid url": c.Grobid.URL, "vllm url": c.VLLM.URL} {
		if err := checkHTTPURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return domain.WrapError(domain.ErrInvalidInput, "validate config", errors.Join(errs...))
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
