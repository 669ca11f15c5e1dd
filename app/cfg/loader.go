package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/universe.db" description:"Path to the SQLite database file"`
	UploadsDir string `long:"uploads-dir" env:"UPLOADS_DIR" default:"./data/uploads" description:"Directory for uploaded keyword export files"`

	// Application configuration
	ProfilesDir  string `long:"profiles-dir" env:"PROFILES_DIR" default:"./profiles" description:"Directory containing analysis profile files"`
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service"`
	WorkerCount  int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers for analysis runs"`
	Parallelism  int    `long:"parallelism" env:"PARALLELISM" default:"1" description:"Concurrent model calls per run (provider rate limits usually dominate)"`
	BatchTimeout int    `long:"batch-timeout" env:"BATCH_TIMEOUT" default:"180" description:"Per-batch model call timeout in seconds"`
	CacheTTL     int    `long:"cache-ttl" env:"CACHE_TTL" default:"86400" description:"Universe cache TTL in seconds"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Provider configuration
	Provider        string `long:"provider" env:"LLM_PROVIDER" default:"anthropic" description:"Clustering provider: anthropic, openai or both"`
	AnthropicAPIKey string `long:"anthropic-api-key" env:"ANTHROPIC_API_KEY" description:"Anthropic API key"`
	AnthropicModel  string `long:"anthropic-model" env:"ANTHROPIC_MODEL" description:"Anthropic model override"`
	OpenAIAPIKey    string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key"`
	OpenAIBaseURL   string `long:"openai-base-url" env:"OPENAI_BASE_URL" description:"OpenAI-compatible endpoint override"`
	OpenAIModel     string `long:"openai-model" env:"OPENAI_MODEL" description:"OpenAI model override"`
	MaxTokens       int    `long:"max-tokens" env:"MAX_TOKENS" default:"16000" description:"Maximum completion tokens per model call"`
	SemrushAPIKey   string `long:"semrush-api-key" env:"SEMRUSH_API_KEY" description:"Semrush API key (optional)"`
	SemrushDatabase string `long:"semrush-database" env:"SEMRUSH_DATABASE" default:"us" description:"Semrush regional database"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Keyword Universe/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:          raw.DBPath,
		UploadsDir:      raw.UploadsDir,
		ProfilesDir:     raw.ProfilesDir,
		Port:            raw.Port,
		BaseUrl:         raw.BaseUrl,
		WorkerCount:     raw.WorkerCount,
		Parallelism:     raw.Parallelism,
		BatchTimeout:    raw.BatchTimeout,
		CacheTTL:        raw.CacheTTL,
		APIAccessKey:    raw.APIAccessKey,
		Provider:        raw.Provider,
		AnthropicAPIKey: raw.AnthropicAPIKey,
		AnthropicModel:  raw.AnthropicModel,
		OpenAIAPIKey:    raw.OpenAIAPIKey,
		OpenAIBaseURL:   raw.OpenAIBaseURL,
		OpenAIModel:     raw.OpenAIModel,
		MaxTokens:       raw.MaxTokens,
		SemrushAPIKey:   raw.SemrushAPIKey,
		SemrushDatabase: raw.SemrushDatabase,
		UserAgent:       raw.UserAgent,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}
