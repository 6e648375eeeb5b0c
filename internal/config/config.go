package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Storage   StorageConfig
	Generator GeneratorConfig
	Corpus    CorpusConfig
	Server    ServerConfig
	Fill      FillConfig
	Log       LogConfig
}

// StorageConfig holds object store configuration
type StorageConfig struct {
	Type        string // "memory", "s3", "dynamodb", "mongodb", "postgresql"
	Region      string // For AWS S3 and DynamoDB
	Bucket      string // S3 bucket (or R2 bucket when Endpoint points at Cloudflare)
	TableName   string // DynamoDB table, Mongo collection, Postgres table
	Endpoint    string // Custom endpoint for local testing or S3-compatible stores
	PathStyle   bool   // Force path-style S3 addressing (MinIO, localstack)
	AccessKey   string
	SecretKey   string
	MongoDBURI  string
	MongoDBName string
	PostgresURI string
}

// GeneratorConfig holds text generation backend configuration
type GeneratorConfig struct {
	Provider       string // "cloudflare", "ollama", "openai", "gemini"
	Model          string
	BaseURL        string
	APIKey         string
	AccountID      string // Cloudflare account for Workers AI
	Timeout        time.Duration
	RetryCount     int
	Concurrency    int
	ProductName    string
	ProductContext string
	Examples       []string
}

// CorpusConfig holds the corpus layout and sizing
type CorpusConfig struct {
	Prefix          string
	TargetSize      int
	KeyWidth        int
	ListLimit       int
	DefaultBatch    int
	MaxBatch        int // largest accepted batch; unset means TargetSize, never below DefaultBatch
	AdvanceAttempts int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FillConfig holds settings for the fill client that drives a running
// server to the corpus target
type FillConfig struct {
	APIEndpoint string
	Timeout     time.Duration
	RetryCount  int
	BatchSize   int
	Delay       time.Duration
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string
	Development bool
}

const defaultProductContext = `We are a mobile training app for firefighters that turns real emergency incidents
into short, AI-driven, 3-minute training scenarios. It helps preserve veteran experience,
improve readiness by 40%, and ensure NERIS compliance with AI-generated content,
mobile reference tools, admin dashboards, and department data integration.`

var defaultExamples = []string{
	"Love the app!",
	"Hate the app, too expensive",
	"We need notifications when new scenarios drop",
	"As a training officer, the NERIS compliance tracking is a game-changer. Would be cool if we could export those reports as PDFs.",
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"storage.type":         "STORAGE_TYPE",
	"storage.region":       "AWS_REGION",
	"storage.bucket":       "S3_BUCKET",
	"storage.table_name":   "TABLE_NAME",
	"storage.endpoint":     "STORAGE_ENDPOINT",
	"storage.path_style":   "S3_PATH_STYLE",
	"storage.access_key":   "AWS_ACCESS_KEY_ID",
	"storage.secret_key":   "AWS_SECRET_ACCESS_KEY",
	"storage.mongodb_uri":  "MONGODB_URI",
	"storage.mongodb_name": "MONGODB_DATABASE",
	"storage.postgres_uri": "POSTGRES_URI",

	"generator.provider":        "GENERATOR_PROVIDER",
	"generator.model":           "GENERATOR_MODEL",
	"generator.base_url":        "GENERATOR_BASE_URL",
	"generator.api_key":         "GENERATOR_API_KEY",
	"generator.account_id":      "CLOUDFLARE_ACCOUNT_ID",
	"generator.timeout":         "GENERATOR_TIMEOUT",
	"generator.retry_count":     "RETRY_COUNT",
	"generator.concurrency":     "GENERATOR_CONCURRENCY",
	"generator.product_name":    "PRODUCT_NAME",
	"generator.product_context": "PRODUCT_CONTEXT",
	"generator.examples":        "PRODUCT_EXAMPLES",

	"corpus.prefix":           "CORPUS_PREFIX",
	"corpus.target_size":      "CORPUS_TARGET_SIZE",
	"corpus.key_width":        "CORPUS_KEY_WIDTH",
	"corpus.list_limit":       "CORPUS_LIST_LIMIT",
	"corpus.default_batch":    "CORPUS_DEFAULT_BATCH",
	"corpus.max_batch":        "CORPUS_MAX_BATCH",
	"corpus.advance_attempts": "CORPUS_ADVANCE_ATTEMPTS",

	"server.port":          "SERVER_PORT",
	"server.read_timeout":  "SERVER_READ_TIMEOUT",
	"server.write_timeout": "SERVER_WRITE_TIMEOUT",

	"fill.api_endpoint": "FILL_API_ENDPOINT",
	"fill.timeout":      "FILL_TIMEOUT",
	"fill.retry_count":  "FILL_RETRY_COUNT",
	"fill.batch_size":   "FILL_BATCH_SIZE",
	"fill.delay":        "FILL_DELAY",

	"log.level":       "LOG_LEVEL",
	"log.development": "LOG_DEVELOPMENT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.region", "us-west-2")
	v.SetDefault("storage.table_name", "mock_feedback_objects")
	v.SetDefault("storage.mongodb_name", "mock_feedback")

	v.SetDefault("generator.provider", "cloudflare")
	v.SetDefault("generator.timeout", 60*time.Second)
	v.SetDefault("generator.retry_count", 3)
	v.SetDefault("generator.concurrency", 1)
	v.SetDefault("generator.product_name", "First Pro")
	v.SetDefault("generator.product_context", defaultProductContext)
	v.SetDefault("generator.examples", defaultExamples)

	v.SetDefault("corpus.prefix", "mock_feedback/")
	v.SetDefault("corpus.target_size", 1000)
	v.SetDefault("corpus.key_width", 4)
	v.SetDefault("corpus.list_limit", 1000)
	v.SetDefault("corpus.default_batch", 10)
	v.SetDefault("corpus.advance_attempts", 5)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Generation of a full batch can take minutes against a remote model.
	v.SetDefault("server.write_timeout", 10*time.Minute)

	v.SetDefault("fill.api_endpoint", "http://localhost:8080")
	v.SetDefault("fill.timeout", 10*time.Minute)
	v.SetDefault("fill.retry_count", 3)
	v.SetDefault("fill.batch_size", 10)
	v.SetDefault("fill.delay", 2*time.Second)

	v.SetDefault("log.level", "info")
}

// Load loads configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence. An empty path
// looks for feedbackd.yaml in the working directory; a missing file is not
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("feedbackd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Storage: StorageConfig{
			Type:        v.GetString("storage.type"),
			Region:      v.GetString("storage.region"),
			Bucket:      v.GetString("storage.bucket"),
			TableName:   v.GetString("storage.table_name"),
			Endpoint:    v.GetString("storage.endpoint"),
			PathStyle:   v.GetBool("storage.path_style"),
			AccessKey:   v.GetString("storage.access_key"),
			SecretKey:   v.GetString("storage.secret_key"),
			MongoDBURI:  v.GetString("storage.mongodb_uri"),
			MongoDBName: v.GetString("storage.mongodb_name"),
			PostgresURI: v.GetString("storage.postgres_uri"),
		},
		Generator: GeneratorConfig{
			Provider:       v.GetString("generator.provider"),
			Model:          v.GetString("generator.model"),
			BaseURL:        v.GetString("generator.base_url"),
			APIKey:         v.GetString("generator.api_key"),
			AccountID:      v.GetString("generator.account_id"),
			Timeout:        v.GetDuration("generator.timeout"),
			RetryCount:     v.GetInt("generator.retry_count"),
			Concurrency:    v.GetInt("generator.concurrency"),
			ProductName:    v.GetString("generator.product_name"),
			ProductContext: v.GetString("generator.product_context"),
			Examples:       examples(v.Get("generator.examples")),
		},
		Corpus: CorpusConfig{
			Prefix:          v.GetString("corpus.prefix"),
			TargetSize:      v.GetInt("corpus.target_size"),
			KeyWidth:        v.GetInt("corpus.key_width"),
			ListLimit:       v.GetInt("corpus.list_limit"),
			DefaultBatch:    v.GetInt("corpus.default_batch"),
			MaxBatch:        maxBatch(v),
			AdvanceAttempts: v.GetInt("corpus.advance_attempts"),
		},
		Server: ServerConfig{
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Fill: FillConfig{
			APIEndpoint: v.GetString("fill.api_endpoint"),
			Timeout:     v.GetDuration("fill.timeout"),
			RetryCount:  v.GetInt("fill.retry_count"),
			BatchSize:   v.GetInt("fill.batch_size"),
			Delay:       v.GetDuration("fill.delay"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}
}

// Validate reports the first configuration value that cannot be used.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "memory", "s3", "dynamodb", "mongodb", "postgresql":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	switch c.Generator.Provider {
	case "cloudflare", "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unsupported generator provider: %s", c.Generator.Provider)
	}
	if c.Corpus.TargetSize < 1 {
		return fmt.Errorf("corpus target size must be positive, got %d", c.Corpus.TargetSize)
	}
	if c.Corpus.KeyWidth < 1 {
		return fmt.Errorf("corpus key width must be positive, got %d", c.Corpus.KeyWidth)
	}
	if c.Corpus.ListLimit < 1 {
		return fmt.Errorf("corpus list limit must be positive, got %d", c.Corpus.ListLimit)
	}
	if c.Corpus.DefaultBatch < 1 {
		return fmt.Errorf("corpus default batch must be positive, got %d", c.Corpus.DefaultBatch)
	}
	if c.Corpus.MaxBatch < 1 {
		return fmt.Errorf("corpus max batch must be positive, got %d", c.Corpus.MaxBatch)
	}
	if c.Corpus.DefaultBatch > c.Corpus.MaxBatch {
		return fmt.Errorf("corpus default batch %d exceeds max batch %d", c.Corpus.DefaultBatch, c.Corpus.MaxBatch)
	}
	if c.Corpus.AdvanceAttempts < 1 {
		return fmt.Errorf("corpus advance attempts must be positive, got %d", c.Corpus.AdvanceAttempts)
	}
	if c.Generator.Concurrency < 1 {
		return fmt.Errorf("generator concurrency must be positive, got %d", c.Generator.Concurrency)
	}
	if c.Fill.BatchSize < 1 {
		return fmt.Errorf("fill batch size must be positive, got %d", c.Fill.BatchSize)
	}
	if n := len(c.Generator.Examples); n < 2 || n > 4 {
		return fmt.Errorf("generator needs 2 to 4 example snippets, got %d", n)
	}
	return nil
}

func maxBatch(v *viper.Viper) int {
	if n := v.GetInt("corpus.max_batch"); n != 0 {
		return n
	}
	return max(v.GetInt("corpus.target_size"), v.GetInt("corpus.default_batch"))
}

// examples accepts a YAML list or, from PRODUCT_EXAMPLES, a "|"-separated
// string, since example snippets commonly contain commas.
func examples(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case []string:
		parts = val
	case []any:
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
	case string:
		parts = strings.Split(val, "|")
	}

	var out []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
