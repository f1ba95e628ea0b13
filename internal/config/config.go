package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Worklist     Worklist   `yaml:"worklist"`
	Output       Output     `yaml:"output"`
	Crawl        Crawl      `yaml:"crawl"`
	Browser      Browser    `yaml:"browser"`
	HTTP         HTTP       `yaml:"http"`
	Journal      Journal    `yaml:"journal"`
	Mirror       Mirror     `yaml:"mirror"`
	Classifier   Classifier `yaml:"classifier"`
	Metrics      Metrics    `yaml:"metrics"`
	LogLevel     string     `yaml:"log_level"`
	ShowProgress bool       `yaml:"show_progress"`
}

// Worklist locates the ledger file
type Worklist struct {
	Path             string `yaml:"path"`
	HeaderSearchRows int    `yaml:"header_search_rows"`
	StartIndex       int    `yaml:"start_index"`
}

// Output controls where and how files are written
type Output struct {
	Dir               string `yaml:"dir"`
	SkipExisting      bool   `yaml:"skip_existing"`
	RejectUnsafeNames bool   `yaml:"reject_unsafe_names"`
}

// Crawl holds the retry policy and download tuning
type Crawl struct {
	MaxAttempts         int           `yaml:"max_attempts"`
	MaxTimeoutAttempts  int           `yaml:"max_timeout_attempts"`
	RetryBackoffMs      int           `yaml:"retry_backoff_ms"`
	ItemTimeout         time.Duration `yaml:"item_timeout"`
	DownloadConcurrency int           `yaml:"download_concurrency"`
	ChunkSize           int           `yaml:"chunk_size"`
}

// Browser configures the navigation session
type Browser struct {
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// HTTP configures file requests
type HTTP struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// Journal configures the SQLite attempt journal
type Journal struct {
	Path string `yaml:"path"`
}

// Mirror configures the optional S3-compatible copy of downloaded files
type Mirror struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Metrics configures the Prometheus endpoint; an empty address disables it
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Classifier overrides the extension lists; empty keeps the defaults
type Classifier struct {
	Expected []string `yaml:"expected"`
	Denied   []string `yaml:"denied"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		ShowProgress: true,
		Worklist: Worklist{
			Path:             "input/colorado_links.csv",
			HeaderSearchRows: 10,
		},
		Output: Output{
			Dir: "output/colorado",
		},
		Crawl: Crawl{
			MaxAttempts:         5,
			MaxTimeoutAttempts:  5,
			RetryBackoffMs:      500,
			DownloadConcurrency: 1,
			ChunkSize:           1024,
		},
		Browser: Browser{
			Timeout: 60 * time.Second,
		},
		HTTP: HTTP{
			Timeout:    60 * time.Second,
			MaxRetries: 3,
		},
		Journal: Journal{
			Path: "./journal.db",
		},
	}
}

// Load starts from defaults and applies the YAML file, then a .env file and the
// environment, then the command line flags. Later sources override earlier ones.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv applies LASCRAWL_* variables, reading ./.env first when present.
// Variables already set in the process environment win over the .env file.
func loadFromEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if v, ok := os.LookupEnv("LASCRAWL_WORKLIST"); ok {
		cfg.Worklist.Path = v
	}
	if v, ok := os.LookupEnv("LASCRAWL_OUTPUT_DIR"); ok {
		cfg.Output.Dir = v
	}
	if v, ok := os.LookupEnv("LASCRAWL_JOURNAL"); ok {
		cfg.Journal.Path = v
	}
	if v, ok := os.LookupEnv("LASCRAWL_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("LASCRAWL_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LASCRAWL_MAX_ATTEMPTS: %w", err)
		}
		cfg.Crawl.MaxAttempts = n
	}
	if v, ok := os.LookupEnv("LASCRAWL_MIRROR_ACCESS_KEY"); ok {
		cfg.Mirror.AccessKey = v
	}
	if v, ok := os.LookupEnv("LASCRAWL_MIRROR_SECRET_KEY"); ok {
		cfg.Mirror.SecretKey = v
	}

	return nil
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("worklist") {
		cfg.Worklist.Path, _ = flags.GetString("worklist")
	}
	if flags.Changed("start-index") {
		cfg.Worklist.StartIndex, _ = flags.GetInt("start-index")
	}
	if flags.Changed("output") {
		cfg.Output.Dir, _ = flags.GetString("output")
	}
	if flags.Changed("skip-existing") {
		cfg.Output.SkipExisting, _ = flags.GetBool("skip-existing")
	}
	if flags.Changed("reject-unsafe-names") {
		cfg.Output.RejectUnsafeNames, _ = flags.GetBool("reject-unsafe-names")
	}

	if flags.Changed("max-attempts") {
		cfg.Crawl.MaxAttempts, _ = flags.GetInt("max-attempts")
	}
	if flags.Changed("max-timeout-attempts") {
		cfg.Crawl.MaxTimeoutAttempts, _ = flags.GetInt("max-timeout-attempts")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.Crawl.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if flags.Changed("item-timeout") {
		cfg.Crawl.ItemTimeout, _ = flags.GetDuration("item-timeout")
	}
	if flags.Changed("download-concurrency") {
		cfg.Crawl.DownloadConcurrency, _ = flags.GetInt("download-concurrency")
	}

	if flags.Changed("page-timeout") {
		cfg.Browser.Timeout, _ = flags.GetDuration("page-timeout")
	}
	if flags.Changed("http-timeout") {
		cfg.HTTP.Timeout, _ = flags.GetDuration("http-timeout")
	}
	if flags.Changed("http-retries") {
		cfg.HTTP.MaxRetries, _ = flags.GetInt("http-retries")
	}

	if flags.Changed("journal") {
		cfg.Journal.Path, _ = flags.GetString("journal")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("show-progress") {
		cfg.ShowProgress, _ = flags.GetBool("show-progress")
	}

	return nil
}

func (c *Config) validate() error {
	if c.Worklist.Path == "" {
		return fmt.Errorf("worklist path is required")
	}
	if c.Worklist.HeaderSearchRows < 0 {
		return fmt.Errorf("header search rows cannot be negative")
	}
	if c.Worklist.StartIndex < 0 {
		return fmt.Errorf("start index cannot be negative")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output directory is required")
	}

	if c.Crawl.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.Crawl.MaxTimeoutAttempts <= 0 {
		return fmt.Errorf("max timeout attempts must be positive")
	}
	if c.Crawl.RetryBackoffMs < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.Crawl.DownloadConcurrency <= 0 {
		return fmt.Errorf("download concurrency must be positive")
	}
	if c.Crawl.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http retries cannot be negative")
	}

	if c.Mirror.Endpoint != "" && c.Mirror.Bucket == "" {
		return fmt.Errorf("mirror bucket is required when a mirror endpoint is set")
	}

	return nil
}
