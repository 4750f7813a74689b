// Package config loads configuration from an optional YAML file and the environment.
// Precedence: CLI flags > environment > YAML > defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure shared by the API and worker processes.
type Config struct {
	Server   ServerConfig    `yaml:"server,omitempty"`
	Database DatabaseConfig  `yaml:"database,omitempty"`
	Queue    QueueConfig     `yaml:"queue,omitempty"`
	LLM      LLMConfig       `yaml:"llm,omitempty"`
	Suggest  SuggestConfig   `yaml:"suggest,omitempty"`
	Checker  CheckerConfig   `yaml:"checker,omitempty"`
	Worker   WorkerConfig    `yaml:"worker,omitempty"`
	RateLim  RateLimitConfig `yaml:"rate_limiting,omitempty"`
}

// ServerConfig controls HTTP server binding and timeouts.
type ServerConfig struct {
	Host         string `yaml:"host,omitempty"`
	Port         string `yaml:"port,omitempty"`
	ReadTimeout  int    `yaml:"read_timeout,omitempty"`
	WriteTimeout int    `yaml:"write_timeout,omitempty"`
	IdleTimeout  int    `yaml:"idle_timeout,omitempty"`
}

// DatabaseConfig holds Postgres connection settings.
// URL wins; otherwise the parts are assembled like the original deployment did.
type DatabaseConfig struct {
	URL      string `yaml:"url,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Name     string `yaml:"name,omitempty"`
}

// QueueConfig controls the Redis-backed work queue.
type QueueConfig struct {
	RedisURL          string `yaml:"redis_url,omitempty"`
	QueueName         string `yaml:"queue_name,omitempty"`
	JobTimeoutSeconds int    `yaml:"job_timeout_seconds,omitempty"`
}

// LLMConfig controls the Groq completion client.
type LLMConfig struct {
	APIKey              string  `yaml:"api_key,omitempty"`
	BaseURL             string  `yaml:"base_url,omitempty"`
	Model               string  `yaml:"model,omitempty"`
	Temperature         float64 `yaml:"temperature,omitempty"`
	TopP                float64 `yaml:"top_p,omitempty"`
	MaxCompletionTokens int     `yaml:"max_completion_tokens,omitempty"`
}

// SuggestConfig controls the suggestion orchestrator.
type SuggestConfig struct {
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// CheckerConfig controls the per-phase probe behavior inside workers.
type CheckerConfig struct {
	DNSTimeoutSeconds float64 `yaml:"dns_timeout_seconds,omitempty"`
	DNSServer         string  `yaml:"dns_server,omitempty"`
}

// WorkerConfig controls worker concurrency and the idle recheck sweep.
type WorkerConfig struct {
	MaxConcurrentChecks int   `yaml:"max_concurrent_checks,omitempty"`
	IdleThresholdSecs   int   `yaml:"idle_threshold_seconds,omitempty"`
	RecheckIntervalDays int   `yaml:"recheck_interval_days,omitempty"`
	RecheckBatchSize    int   `yaml:"recheck_batch_size,omitempty"`
	RecheckPollInterval int   `yaml:"recheck_poll_interval,omitempty"`
	EnableIdleRecheck   *bool `yaml:"enable_idle_recheck,omitempty"`
}

// RateLimitConfig controls tollbooth rate limiting on the API.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second,omitempty"`
	BurstSize         int `yaml:"burst_size,omitempty"`
}

// Load reads the YAML file if it exists and applies environment overrides.
// A missing file is not an error - env-only deployments are the common case.
func Load(filePath string) (*Config, error) {
	cfg := &Config{}

	if filePath != "" {
		// #nosec G304 -- filePath is user-controlled via CLI flag by design
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML: %w", err)
			}
		case os.IsNotExist(err):
			// optional config approach
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays the authoritative environment variables onto the config.
func (c *Config) applyEnv() {
	envString("API_HOST", &c.Server.Host)
	envString("API_PORT", &c.Server.Port)

	envString("DATABASE_URL", &c.Database.URL)
	envString("DB_HOST", &c.Database.Host)
	envString("POSTGRES_HOST", &c.Database.Host)
	envInt("DB_PORT", &c.Database.Port)
	envString("DB_USER", &c.Database.User)
	envString("POSTGRES_USER", &c.Database.User)
	envString("DB_PASSWORD", &c.Database.Password)
	envString("POSTGRES_PASSWORD", &c.Database.Password)
	envString("DB_NAME", &c.Database.Name)
	envString("POSTGRES_DB", &c.Database.Name)

	envString("REDIS_URL", &c.Queue.RedisURL)
	envString("RQ_QUEUE", &c.Queue.QueueName)
	envInt("RQ_JOB_TIMEOUT_SECONDS", &c.Queue.JobTimeoutSeconds)

	envString("GROQ_API_KEY", &c.LLM.APIKey)
	envString("GROQ_BASE_URL", &c.LLM.BaseURL)
	envString("GROQ_MODEL", &c.LLM.Model)
	envFloat("GROQ_MODEL_TEMPERATURE", &c.LLM.Temperature)
	envFloat("GROQ_MODEL_TOP_P", &c.LLM.TopP)
	envInt("GROQ_MODEL_MAX_COMPLETION_TOKENS", &c.LLM.MaxCompletionTokens)

	envInt("MAX_SUGGESTIONS_RETRIES", &c.Suggest.MaxRetries)

	envFloat("DOMAIN_CHECKER_DNS_TIMEOUT", &c.Checker.DNSTimeoutSeconds)
	envString("DOMAIN_CHECKER_DNS_SERVER", &c.Checker.DNSServer)

	envInt("WORKER_MAX_CONCURRENT_CHECKS", &c.Worker.MaxConcurrentChecks)
	envInt("WORKER_IDLE_THRESHOLD_SECONDS", &c.Worker.IdleThresholdSecs)
	envInt("WORKER_RECHECK_INTERVAL_DAYS", &c.Worker.RecheckIntervalDays)
	envInt("WORKER_RECHECK_BATCH_SIZE", &c.Worker.RecheckBatchSize)
	envInt("WORKER_RECHECK_POLL_INTERVAL", &c.Worker.RecheckPollInterval)
	if v, ok := os.LookupEnv("WORKER_ENABLE_IDLE_RECHECK"); ok {
		b := strings.EqualFold(v, "true") || v == "1"
		c.Worker.EnableIdleRecheck = &b
	}
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" && *target == "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" && *target == 0 {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" && *target == 0 {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

// GetServerHost provides default fallback.
func (c *Config) GetServerHost() string {
	if c.Server.Host != "" {
		return c.Server.Host
	}
	return "0.0.0.0"
}

// GetServerPort provides default fallback.
func (c *Config) GetServerPort() string {
	if c.Server.Port != "" {
		return c.Server.Port
	}
	return "8000"
}

// GetServerReadTimeout provides default fallback (seconds).
func (c *Config) GetServerReadTimeout() int {
	if c.Server.ReadTimeout > 0 {
		return c.Server.ReadTimeout
	}
	return 15
}

// GetServerWriteTimeout provides default fallback (seconds).
// Streaming responses can outlive short write timeouts, hence the generous default.
func (c *Config) GetServerWriteTimeout() int {
	if c.Server.WriteTimeout > 0 {
		return c.Server.WriteTimeout
	}
	return 300
}

// GetServerIdleTimeout provides default fallback (seconds).
func (c *Config) GetServerIdleTimeout() int {
	if c.Server.IdleTimeout > 0 {
		return c.Server.IdleTimeout
	}
	return 60
}

// GetDatabaseURL assembles the Postgres URL from parts when no explicit URL is set.
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	host := c.Database.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	user := c.Database.User
	if user == "" {
		user = "postgres"
	}
	password := c.Database.Password
	if password == "" {
		password = "password"
	}
	name := c.Database.Name
	if name == "" {
		name = "domain_generator"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", user, password, host, port, name)
}

// GetRedisURL provides default fallback.
func (c *Config) GetRedisURL() string {
	if c.Queue.RedisURL != "" {
		return c.Queue.RedisURL
	}
	return ""
}

// GetQueueName provides default fallback.
func (c *Config) GetQueueName() string {
	if c.Queue.QueueName != "" {
		return c.Queue.QueueName
	}
	return "domain_checks"
}

// GetJobTimeout is how long the dispatcher waits for job results before
// synthesizing unknown statuses.
func (c *Config) GetJobTimeout() time.Duration {
	if c.Queue.JobTimeoutSeconds > 0 {
		return time.Duration(c.Queue.JobTimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// GetLLMBaseURL provides default fallback (Groq's OpenAI-compatible endpoint).
func (c *Config) GetLLMBaseURL() string {
	if c.LLM.BaseURL != "" {
		return c.LLM.BaseURL
	}
	return "https://api.groq.com/openai/v1"
}

// GetLLMModel provides default fallback.
func (c *Config) GetLLMModel() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	return "qwen/qwen3-32b"
}

// GetLLMTemperature provides default fallback.
func (c *Config) GetLLMTemperature() float64 {
	if c.LLM.Temperature > 0 {
		return c.LLM.Temperature
	}
	return 0.6
}

// GetLLMTopP provides default fallback.
func (c *Config) GetLLMTopP() float64 {
	if c.LLM.TopP > 0 {
		return c.LLM.TopP
	}
	return 0.95
}

// GetLLMMaxCompletionTokens provides default fallback.
func (c *Config) GetLLMMaxCompletionTokens() int {
	if c.LLM.MaxCompletionTokens > 0 {
		return c.LLM.MaxCompletionTokens
	}
	return 4096
}

// GetMaxSuggestionsRetries provides default fallback.
func (c *Config) GetMaxSuggestionsRetries() int {
	if c.Suggest.MaxRetries > 0 {
		return c.Suggest.MaxRetries
	}
	return 5
}

// GetDNSTimeout is the per-phase probe timeout inside workers.
func (c *Config) GetDNSTimeout() time.Duration {
	if c.Checker.DNSTimeoutSeconds > 0 {
		return time.Duration(c.Checker.DNSTimeoutSeconds * float64(time.Second))
	}
	return 3 * time.Second
}

// GetDNSServer provides default fallback for the A-record probe target.
func (c *Config) GetDNSServer() string {
	if c.Checker.DNSServer != "" {
		return c.Checker.DNSServer
	}
	return "8.8.8.8:53"
}

// GetMaxConcurrentChecks provides default fallback.
func (c *Config) GetMaxConcurrentChecks() int {
	if c.Worker.MaxConcurrentChecks > 0 {
		return c.Worker.MaxConcurrentChecks
	}
	return 10
}

// GetIdleThreshold provides default fallback.
func (c *Config) GetIdleThreshold() time.Duration {
	if c.Worker.IdleThresholdSecs > 0 {
		return time.Duration(c.Worker.IdleThresholdSecs) * time.Second
	}
	return 60 * time.Second
}

// GetRecheckInterval provides default fallback.
func (c *Config) GetRecheckInterval() time.Duration {
	if c.Worker.RecheckIntervalDays > 0 {
		return time.Duration(c.Worker.RecheckIntervalDays) * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// GetRecheckBatchSize provides default fallback.
func (c *Config) GetRecheckBatchSize() int {
	if c.Worker.RecheckBatchSize > 0 {
		return c.Worker.RecheckBatchSize
	}
	return 50
}

// GetRecheckPollInterval provides default fallback.
func (c *Config) GetRecheckPollInterval() time.Duration {
	if c.Worker.RecheckPollInterval > 0 {
		return time.Duration(c.Worker.RecheckPollInterval) * time.Second
	}
	return 30 * time.Second
}

// IdleRecheckEnabled defaults to true unless explicitly disabled.
func (c *Config) IdleRecheckEnabled() bool {
	if c.Worker.EnableIdleRecheck != nil {
		return *c.Worker.EnableIdleRecheck
	}
	return true
}

// GetRateLimitRequestsPerSecond provides default fallback.
// Returns 0 if explicitly set to 0 (disables rate limiting).
func (c *Config) GetRateLimitRequestsPerSecond() int {
	if c.RateLim.RequestsPerSecond >= 0 {
		return c.RateLim.RequestsPerSecond
	}
	return 10
}

// GetRateLimitBurstSize provides default fallback.
func (c *Config) GetRateLimitBurstSize() int {
	if c.RateLim.BurstSize > 0 {
		return c.RateLim.BurstSize
	}
	return 20
}

// ApplyIntOverride applies a CLI flag override to a config int field with default fallback.
// If the CLI flag was changed and the value is positive, it overrides the config value.
// Otherwise, if the config value is zero, the default value is applied.
func ApplyIntOverride(flagChanged bool, flagValue int, target *int, defaultVal int) {
	if flagChanged && flagValue > 0 {
		*target = flagValue
	} else if *target == 0 {
		*target = defaultVal
	}
}

// ApplyStringOverride applies a CLI flag override to a config string field with default fallback.
func ApplyStringOverride(cliValue string, target *string, defaultVal string) {
	if cliValue != "" {
		*target = cliValue
	} else if *target == "" {
		*target = defaultVal
	}
}
