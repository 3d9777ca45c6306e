package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caseworks/casedex/internal/domain"
)

// Config holds the casedex configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	ObjectStore  ObjectStoreConfig  `yaml:"object_store"`
	OCR          OCRConfig          `yaml:"ocr"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Search       SearchConfig       `yaml:"search"`
	Evaluation   EvaluationConfig   `yaml:"evaluation"`
	Optimization OptimizationConfig `yaml:"optimization"`
	Index        IndexConfig        `yaml:"index"`
	Storage      StorageConfig      `yaml:"storage"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// AuthConfig holds API authentication settings. An empty key list disables
// authentication.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ObjectStoreConfig holds S3-compatible object storage settings.
type ObjectStoreConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // optional, for S3-compatible stores
	PageKey  string `yaml:"page_key"` // key segment for rendered page images (default: pages)
}

// OCRConfig holds OCR service settings.
type OCRConfig struct {
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	PollTimeoutSec  int    `yaml:"poll_timeout_sec"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
	Default     string                      `yaml:"default"` // vectorizer name used for chunks and queries
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string       `yaml:"api_key"`
	BaseURL string       `yaml:"base_url"`
	Budget  BudgetConfig `yaml:"budget"`
}

// BudgetConfig caps embedding token spend per provider. Zero limits mean
// unlimited.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
	Action            string `yaml:"action"` // "warn" (default) or "reject"
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider            string `yaml:"provider"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// RetryConfig holds exponential backoff settings for transient page failures.
type RetryConfig struct {
	InitialSec    int `yaml:"initial_sec"`
	MaxSec        int `yaml:"max_sec"`
	MaxElapsedSec int `yaml:"max_elapsed_sec"`
}

// CorrectionConfig gates LLM correction of raw OCR text before chunking.
type CorrectionConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	PromptVersion string `yaml:"prompt_version"`
}

// IngestConfig holds work queue and pipeline settings.
type IngestConfig struct {
	Stream          string           `yaml:"stream"`
	Group           string           `yaml:"group"`
	Consumer        string           `yaml:"consumer"`
	Workers         int              `yaml:"workers"`
	PageWorkers     int              `yaml:"page_workers"`
	MaxDeliveries   int              `yaml:"max_deliveries"`
	ClaimMinIdleSec int              `yaml:"claim_min_idle_sec"`
	BlockSec        int              `yaml:"block_sec"`
	MaxChunkSize    int              `yaml:"max_chunk_size"`
	Retry           RetryConfig      `yaml:"retry"`
	Correction      CorrectionConfig `yaml:"correction"`
}

// SearchConfig holds default ranking parameters.
type SearchConfig struct {
	Boosts domain.BoostConfig `yaml:"boosts"`
}

// EvaluationConfig holds relevance evaluation fixture and output paths.
type EvaluationConfig struct {
	TermsFile     string `yaml:"terms_file"`
	OutputDir     string `yaml:"output_dir"`
	CumulativeLog string `yaml:"cumulative_log"`
}

// OptimizationConfig holds two-phase parameter search settings.
type OptimizationConfig struct {
	CoarseTrials int     `yaml:"coarse_trials"`
	FineTrials   int     `yaml:"fine_trials"`
	CoarseStep   float64 `yaml:"coarse_step"`
	FineStep     float64 `yaml:"fine_step"`
	FineWindow   float64 `yaml:"fine_window"` // half-width around the coarse best
	BoundLow     float64 `yaml:"bound_low"`
	BoundHigh    float64 `yaml:"bound_high"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix        string `yaml:"key_prefix"`
	EmbedCacheTTLSec int    `yaml:"embed_cache_ttl_sec"` // 0 = cache entries never expire
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.ObjectStore.PageKey == "" {
		c.ObjectStore.PageKey = "pages"
	}
	if c.OCR.PollIntervalSec <= 0 {
		c.OCR.PollIntervalSec = 2
	}
	if c.OCR.PollTimeoutSec <= 0 {
		c.OCR.PollTimeoutSec = 300
	}
	if c.Ingest.Stream == "" {
		c.Ingest.Stream = domain.KeyPrefix + "ingest"
	}
	if c.Ingest.Group == "" {
		c.Ingest.Group = "ingest-workers"
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.PageWorkers <= 0 {
		c.Ingest.PageWorkers = 8
	}
	if c.Ingest.MaxDeliveries <= 0 {
		c.Ingest.MaxDeliveries = 5
	}
	if c.Ingest.ClaimMinIdleSec <= 0 {
		c.Ingest.ClaimMinIdleSec = 60
	}
	if c.Ingest.BlockSec <= 0 {
		c.Ingest.BlockSec = 5
	}
	if c.Ingest.MaxChunkSize <= 0 {
		c.Ingest.MaxChunkSize = 80
	}
	if c.Ingest.Retry.InitialSec <= 0 {
		c.Ingest.Retry.InitialSec = 1
	}
	if c.Ingest.Retry.MaxSec <= 0 {
		c.Ingest.Retry.MaxSec = 30
	}
	if c.Ingest.Retry.MaxElapsedSec <= 0 {
		c.Ingest.Retry.MaxElapsedSec = 120
	}
	if isZeroBoosts(c.Search.Boosts) {
		c.Search.Boosts = domain.DefaultBoostConfig()
	}
	if c.Evaluation.TermsFile == "" {
		c.Evaluation.TermsFile = "evaluation/search_terms.csv"
	}
	if c.Evaluation.OutputDir == "" {
		c.Evaluation.OutputDir = "evaluation/results"
	}
	if c.Evaluation.CumulativeLog == "" {
		c.Evaluation.CumulativeLog = "evaluation/results/optimization_log.csv"
	}
	if c.Optimization.CoarseTrials <= 0 {
		c.Optimization.CoarseTrials = 50
	}
	if c.Optimization.FineTrials <= 0 {
		c.Optimization.FineTrials = 50
	}
	if c.Optimization.CoarseStep <= 0 {
		c.Optimization.CoarseStep = 0.2
	}
	if c.Optimization.FineStep <= 0 {
		c.Optimization.FineStep = 0.05
	}
	if c.Optimization.FineWindow <= 0 {
		c.Optimization.FineWindow = 0.4
	}
	if c.Optimization.BoundHigh <= 0 {
		c.Optimization.BoundHigh = 3
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = domain.KeyPrefix
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.Default != "" {
		if _, ok := c.Embedding.Vectorizers[c.Embedding.Default]; !ok {
			return fmt.Errorf("embedding.default %q has no matching vectorizer", c.Embedding.Default)
		}
	}
	for name, v := range c.Embedding.Vectorizers {
		if v.Provider == "" {
			return fmt.Errorf("embedding.vectorizers.%s.provider is required", name)
		}
		if _, ok := c.Embedding.Providers[v.Provider]; !ok {
			return fmt.Errorf("embedding.vectorizers.%s references unknown provider %q", name, v.Provider)
		}
	}
	if c.Ingest.Correction.Enabled {
		if _, ok := c.Embedding.Providers[c.Ingest.Correction.Provider]; !ok {
			return fmt.Errorf("ingest.correction.provider %q is not configured", c.Ingest.Correction.Provider)
		}
	}
	if err := c.Search.Boosts.Validate(); err != nil {
		return fmt.Errorf("search.boosts: %w", err)
	}
	if c.Optimization.BoundLow < 0 || c.Optimization.BoundHigh <= c.Optimization.BoundLow {
		return fmt.Errorf("optimization bounds [%g, %g] are not a valid range",
			c.Optimization.BoundLow, c.Optimization.BoundHigh)
	}
	return nil
}

func isZeroBoosts(b domain.BoostConfig) bool {
	return b == domain.BoostConfig{}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
