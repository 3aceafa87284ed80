package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string           `json:"environment"`
	HTTP        HTTPConfig       `json:"http"`
	CORS        CORSConfig       `json:"cors"`
	Redis       RedisConfig      `json:"redis"`
	Completion  CompletionConfig `json:"completion"`
	Gemini      GeminiConfig     `json:"gemini"`
	OpenAI      OpenAIConfig     `json:"openai"`
	Scraper     ScraperConfig    `json:"scraper"`
	Pipeline    PipelineConfig   `json:"pipeline"`
	Reference   ReferenceConfig  `json:"reference"`
	Log         LogConfig        `json:"log"`
	Feeds       FeedCatalog      `json:"feeds"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// RedisConfig drives the optional progress mirror. Nothing is read back
// from Redis to produce a pipeline result.
type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	URL          string        `json:"url"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	StreamMaxLen int64         `json:"stream_max_len"`
	StateTTL     time.Duration `json:"state_ttl"`
}

type CompletionConfig struct {
	Provider string `json:"provider"`
}

// gemini for clustering, matching and summaries
type GeminiConfig struct {
	APIKey            string        `json:"api_key"`
	Model             string        `json:"model"`
	Timeout           time.Duration `json:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	Burst             int           `json:"burst"`
}

type OpenAIConfig struct {
	APIKey            string        `json:"api_key"`
	BaseURL           string        `json:"base_url"`
	Model             string        `json:"model"`
	Timeout           time.Duration `json:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	Burst             int           `json:"burst"`
}

type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Compress   bool   `json:"compress"`
}

type ScraperConfig struct {
	UserAgent   string        `json:"user_agent"`
	Timeout     time.Duration `json:"timeout"`
	Parallelism int           `json:"parallelism"`
	Delay       time.Duration `json:"delay"`
	Debug       bool          `json:"debug"`
}

type PipelineConfig struct {
	MaxPerCategory int `json:"max_per_category"`

	ClusterTemperature float64 `json:"cluster_temperature"`
	ClusterMaxTokens   int     `json:"cluster_max_tokens"`

	MatchTemperature   float64 `json:"match_temperature"`
	MatchMaxTokens     int     `json:"match_max_tokens"`
	MatchHeadlineLimit int     `json:"match_headline_limit"`

	SummaryConcurrency int           `json:"summary_concurrency"`
	WaveSize           int           `json:"wave_size"`
	WaveCooldown       time.Duration `json:"wave_cooldown"`
	PreFetchDelay      time.Duration `json:"pre_fetch_delay"`
	FetchAttempts      int           `json:"fetch_attempts"`
	FetchBackoff       time.Duration `json:"fetch_backoff"`
	MinContentLength   int           `json:"min_content_length"`
	MaxContentLength   int           `json:"max_content_length"`
	SummaryTemperature float64       `json:"summary_temperature"`
	SummaryMaxTokens   int           `json:"summary_max_tokens"`
	SummaryRetries     int           `json:"summary_retries"`
	RateLimitBackoff   time.Duration `json:"rate_limit_backoff"`

	CategorizeBatchSize int           `json:"categorize_batch_size"`
	CategorizePause     time.Duration `json:"categorize_pause"`
	CategorizeMaxTokens int           `json:"categorize_max_tokens"`

	RunTimeout           time.Duration `json:"run_timeout"`
	MaxArticlesPerRun    int           `json:"max_articles_per_run"`
	MaxSummaryURLsPerRun int           `json:"max_summary_urls_per_run"`
}

type ReferenceConfig struct {
	TTL             time.Duration `json:"ttl"`
	PerCategory     int           `json:"per_category"`
	RefreshSchedule string        `json:"refresh_schedule"`
	WarmOnStart     bool          `json:"warm_on_start"`
	FeedsFile       string        `json:"feeds_file"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Port:         getInt("PORT", 8000),
			ReadTimeout:  getDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("HTTP_WRITE_TIMEOUT", 15*time.Minute),
			IdleTimeout:  getDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Redis: RedisConfig{
			Enabled:      getBool("REDIS_ENABLED", false),
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			StreamMaxLen: int64(getInt("REDIS_STREAM_MAX_LEN", 1024)),
			StateTTL:     getDuration("REDIS_STATE_TTL", 6*time.Hour),
		},
		Completion: CompletionConfig{
			Provider: strings.ToLower(getEnv("COMPLETION_PROVIDER", "gemini")),
		},
		Gemini: GeminiConfig{
			APIKey:            getEnv("GEMINI_API_KEY", ""),
			Model:             getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout:           getDuration("GEMINI_TIMEOUT", 60*time.Second),
			RequestsPerSecond: getFloat64("GEMINI_REQUESTS_PER_SECOND", 5),
			Burst:             getInt("GEMINI_BURST", 10),
		},
		OpenAI: OpenAIConfig{
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			BaseURL:           getEnv("OPENAI_BASE_URL", ""),
			Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:           getDuration("OPENAI_TIMEOUT", 60*time.Second),
			RequestsPerSecond: getFloat64("OPENAI_REQUESTS_PER_SECOND", 5),
			Burst:             getInt("OPENAI_BURST", 10),
		},
		Scraper: ScraperConfig{
			UserAgent:   getEnv("SCRAPER_USER_AGENT", ""),
			Timeout:     getDuration("SCRAPER_TIMEOUT", 30*time.Second),
			Parallelism: getInt("SCRAPER_PARALLELISM", 4),
			Delay:       getDuration("SCRAPER_DELAY", 0),
			Debug:       getBool("SCRAPER_DEBUG", false),
		},
		Pipeline: PipelineConfig{
			MaxPerCategory:       getInt("PIPELINE_MAX_PER_CATEGORY", 70),
			ClusterTemperature:   getFloat64("PIPELINE_CLUSTER_TEMPERATURE", 0.3),
			ClusterMaxTokens:     getInt("PIPELINE_CLUSTER_MAX_TOKENS", 2048),
			MatchTemperature:     getFloat64("PIPELINE_MATCH_TEMPERATURE", 0.2),
			MatchMaxTokens:       getInt("PIPELINE_MATCH_MAX_TOKENS", 1024),
			MatchHeadlineLimit:   getInt("PIPELINE_MATCH_HEADLINE_LIMIT", 20),
			SummaryConcurrency:   getInt("PIPELINE_SUMMARY_CONCURRENCY", 10),
			WaveSize:             getInt("PIPELINE_WAVE_SIZE", 5),
			WaveCooldown:         getDuration("PIPELINE_WAVE_COOLDOWN", 2*time.Second),
			PreFetchDelay:        getDuration("PIPELINE_PRE_FETCH_DELAY", 500*time.Millisecond),
			FetchAttempts:        getInt("PIPELINE_FETCH_ATTEMPTS", 3),
			FetchBackoff:         getDuration("PIPELINE_FETCH_BACKOFF", 2*time.Second),
			MinContentLength:     getInt("PIPELINE_MIN_CONTENT_LENGTH", 200),
			MaxContentLength:     getInt("PIPELINE_MAX_CONTENT_LENGTH", 15000),
			SummaryTemperature:   getFloat64("PIPELINE_SUMMARY_TEMPERATURE", 0.2),
			SummaryMaxTokens:     getInt("PIPELINE_SUMMARY_MAX_TOKENS", 1000),
			SummaryRetries:       getInt("PIPELINE_SUMMARY_RETRIES", 3),
			RateLimitBackoff:     getDuration("PIPELINE_RATE_LIMIT_BACKOFF", 2*time.Second),
			CategorizeBatchSize:  getInt("PIPELINE_CATEGORIZE_BATCH_SIZE", 3),
			CategorizePause:      getDuration("PIPELINE_CATEGORIZE_PAUSE", 2*time.Second),
			CategorizeMaxTokens:  getInt("PIPELINE_CATEGORIZE_MAX_TOKENS", 50),
			RunTimeout:           getDuration("PIPELINE_RUN_TIMEOUT", 15*time.Minute),
			MaxArticlesPerRun:    getInt("PIPELINE_MAX_ARTICLES_PER_RUN", 2000),
			MaxSummaryURLsPerRun: getInt("PIPELINE_MAX_SUMMARY_URLS_PER_RUN", 300),
		},
		Reference: ReferenceConfig{
			TTL:             getDuration("REFERENCE_TTL", time.Hour),
			PerCategory:     getInt("REFERENCE_PER_CATEGORY", 20),
			RefreshSchedule: getEnv("REFERENCE_REFRESH_SCHEDULE", "@every 30m"),
			WarmOnStart:     getBool("REFERENCE_WARM_ON_START", true),
			FeedsFile:       getEnv("FEEDS_FILE", "config/feeds.yaml"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE_PATH", "./logs/app.log"),
			MaxSize:    getInt("LOG_MAX_SIZE", 100),
			MaxBackups: getInt("LOG_MAX_BACKUPS", 2),
			MaxAge:     getInt("LOG_MAX_AGE", 2),
			Compress:   getBool("LOG_COMPRESS", true),
		},
	}

	catalog, err := LoadFeedCatalog(config.Reference.FeedsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed catalog: %w", err)
	}
	config.Feeds = *catalog

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.HTTP.Port == 0 {
		return fmt.Errorf("HTTP port is required")
	}

	switch config.Completion.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported completion provider %q", config.Completion.Provider)
	}

	p := config.Pipeline
	if p.MaxPerCategory <= 0 {
		return fmt.Errorf("PIPELINE_MAX_PER_CATEGORY must be positive")
	}
	if p.SummaryConcurrency <= 0 || p.WaveSize <= 0 {
		return fmt.Errorf("summary concurrency and wave size must be positive")
	}
	if p.CategorizeBatchSize <= 0 {
		return fmt.Errorf("PIPELINE_CATEGORIZE_BATCH_SIZE must be positive")
	}
	if p.FetchAttempts <= 0 || p.SummaryRetries <= 0 {
		return fmt.Errorf("fetch attempts and summary retries must be positive")
	}
	if p.MinContentLength < 0 || p.MaxContentLength < p.MinContentLength {
		return fmt.Errorf("content length bounds are inconsistent (min %d, max %d)", p.MinContentLength, p.MaxContentLength)
	}

	if config.Reference.TTL <= 0 {
		return fmt.Errorf("REFERENCE_TTL must be positive")
	}
	if len(config.Feeds.Reference) == 0 {
		return fmt.Errorf("at least one reference feed is required")
	}

	return nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func getFloat64(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
