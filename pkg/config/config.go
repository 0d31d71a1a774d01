package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	Analyze RateLimitBucketConfig `yaml:"analyze"`
}

type AnalyzerConfig struct {
	Provider          string `yaml:"provider"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"apiKey"`
	SystemPrompt      string `yaml:"systemPrompt"`
	TimeoutSeconds    int    `yaml:"timeoutSeconds"`
	MaxAttempts       int    `yaml:"maxAttempts"`
	BackoffPolicy     string `yaml:"backoffPolicy"`
	BackoffBaseMillis int    `yaml:"backoffBaseMillis"`
	BackoffMaxMillis  int    `yaml:"backoffMaxMillis"`
}

type CacheConfig struct {
	Provider   string `yaml:"provider"`
	TTLSeconds int    `yaml:"ttlSeconds"`
	MaxEntries int    `yaml:"maxEntries"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

type Config struct {
	Port          int             `yaml:"port"`
	RedisAddr     string          `yaml:"redisAddr"`
	RedisPassword string          `yaml:"redisPassword"`
	LogLevel      string          `yaml:"logLevel"`
	LogFormat     string          `yaml:"logFormat"`
	Env           string          `yaml:"env"`
	MaxBodyBytes  int64           `yaml:"maxBodyBytes"`
	ArchiveDir    string          `yaml:"archiveDir"`
	Analyzer      AnalyzerConfig  `yaml:"analyzer"`
	Cache         CacheConfig     `yaml:"cache"`
	RateLimit     RateLimitConfig `yaml:"rateLimit"`
	Tracing       TracingConfig   `yaml:"tracing"`
}

const defaultMaxBodyBytes = 32 << 20

// LoadConfig reads filePath, applies environment overrides and fills
// defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// LoadConfigOptional behaves like LoadConfig but treats an empty path or a
// missing file as an empty document.
func LoadConfigOptional(filePath string) (*Config, error) {
	if strings.TrimSpace(filePath) != "" {
		c, err := LoadConfig(filePath)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	var c Config
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		c.ArchiveDir = v
	}
	if v := os.Getenv("ANALYZER_PROVIDER"); v != "" {
		c.Analyzer.Provider = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Analyzer.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Analyzer.Model = v
	}
	if v := os.Getenv("ANALYZER_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Analyzer.MaxAttempts = n
		}
	}
	if v := os.Getenv("CACHE_PROVIDER"); v != "" {
		c.Cache.Provider = v
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTLSeconds = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_ANALYZE_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.Analyze.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_ANALYZE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.Analyze.BurstSize = n
		}
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Tracing.ServiceName = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracing.SampleRatio = f
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.Analyzer.Provider == "" {
		if c.Analyzer.APIKey != "" {
			c.Analyzer.Provider = "gemini"
		} else {
			c.Analyzer.Provider = "dummy"
		}
	}
	if c.Analyzer.Model == "" {
		c.Analyzer.Model = "gemini-1.5-flash"
	}
	if c.Analyzer.TimeoutSeconds <= 0 {
		c.Analyzer.TimeoutSeconds = 120
	}
	if c.Analyzer.MaxAttempts <= 0 {
		c.Analyzer.MaxAttempts = 3
	}
	if c.Analyzer.BackoffPolicy == "" {
		c.Analyzer.BackoffPolicy = "exp_full_jitter"
	}
	if c.Analyzer.BackoffBaseMillis <= 0 {
		c.Analyzer.BackoffBaseMillis = 500
	}
	if c.Analyzer.BackoffMaxMillis <= 0 {
		c.Analyzer.BackoffMaxMillis = 8000
	}
	if c.Cache.Provider == "" {
		c.Cache.Provider = "memory"
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 24 * 60 * 60
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 512
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "typhoonlens"
	}
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	switch c.Analyzer.Provider {
	case "gemini":
		if strings.TrimSpace(c.Analyzer.APIKey) == "" {
			errs = append(errs, "analyzer.apiKey (GEMINI_API_KEY) is required for the gemini provider")
		}
	case "dummy":
		if !dev {
			errs = append(errs, "analyzer.provider dummy is only allowed in dev")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown analyzer.provider %q", c.Analyzer.Provider))
	}
	switch c.Cache.Provider {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Sprintf("unknown cache.provider %q", c.Cache.Provider))
	}
	if c.MaxBodyBytes < 1024 {
		errs = append(errs, "maxBodyBytes must be at least 1024")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sampleRatio must be within [0, 1]")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, "logFormat must be json or text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}
