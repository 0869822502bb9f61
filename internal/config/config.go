package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends a deployment can select.
const (
	BackendBigQuery = "bigquery"
	BackendMongo    = "mongo"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Confidence policies for out-of-range model confidence values.
const (
	PolicyDrop  = "drop"
	PolicyClamp = "clamp"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "categorizer.yaml"

// Config is the top-level categorizer.yaml configuration.
type Config struct {
	ProjectID       string          `yaml:"project_id"`
	Backend         string          `yaml:"backend"`
	BigQuery        BigQueryConfig  `yaml:"bigquery"`
	Mongo           MongoConfig     `yaml:"mongo"`
	SQLite          SQLiteConfig    `yaml:"sqlite"`
	Source          SourceConfig    `yaml:"source"`
	Model           ModelConfig     `yaml:"model"`
	Timeouts        TimeoutsConfig  `yaml:"timeouts"`
	Parser          ParserConfig    `yaml:"parser"`
	DefaultTaxonomy DefaultTaxonomy `yaml:"default_taxonomy"`
	Worker          WorkerConfig    `yaml:"worker"`
	Log             LogConfig       `yaml:"log"`
	HTTP            HTTPConfig      `yaml:"http"`
}

// BigQueryConfig names the dataset and tables of the BigQuery backend.
type BigQueryConfig struct {
	Dataset           string `yaml:"dataset"`
	TransactionsTable string `yaml:"transactions_table"`
	CategoriesTable   string `yaml:"categories_table"`
}

// MongoConfig locates the MongoDB backend.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SourceConfig controls where raw files are read from. A non-empty LocalRoot
// reads bucket/key from the local filesystem instead of Cloud Storage.
type SourceConfig struct {
	LocalRoot string `yaml:"local_root"`
}

// ModelConfig selects the generative model and its sampling settings.
type ModelConfig struct {
	Name            string  `yaml:"name"`
	APIVersion      string  `yaml:"api_version"`
	Vertex          bool    `yaml:"vertex"`
	Location        string  `yaml:"location"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// TimeoutsConfig bounds each call to an external collaborator.
type TimeoutsConfig struct {
	Source   time.Duration `yaml:"source"`
	Store    time.Duration `yaml:"store"`
	Taxonomy time.Duration `yaml:"taxonomy"`
	Model    time.Duration `yaml:"model"`
}

// ParserConfig controls model response validation.
type ParserConfig struct {
	ConfidencePolicy string `yaml:"confidence_policy"`
}

// DefaultTaxonomy is an opt-in taxonomy used for users who never configured
// categories. It is off unless explicitly enabled.
type DefaultTaxonomy struct {
	Enabled    bool                   `yaml:"enabled"`
	Categories []domain.CategoryGroup `yaml:"categories"`
}

// WorkerConfig sizes the in-process job queue.
type WorkerConfig struct {
	QueueSize  int `yaml:"queue_size"`
	Workers    int `yaml:"workers"`
	MaxRetries int `yaml:"max_retries"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port string `yaml:"port"`
}

// Default returns a Config with the defaults every deployment starts from.
func Default() *Config {
	return &Config{
		Backend: BackendBigQuery,
		BigQuery: BigQueryConfig{
			Dataset:           "finance",
			TransactionsTable: "transactions",
			CategoriesTable:   "categories",
		},
		Mongo: MongoConfig{
			Database: "finance",
		},
		SQLite: SQLiteConfig{
			Path: "categorizer.db",
		},
		Model: ModelConfig{
			Name:            "gemini-2.5-flash",
			APIVersion:      "v1",
			Vertex:          true,
			Location:        "global",
			Temperature:     0,
			MaxOutputTokens: 8192,
		},
		Timeouts: TimeoutsConfig{
			Source:   30 * time.Second,
			Store:    30 * time.Second,
			Taxonomy: 10 * time.Second,
			Model:    2 * time.Minute,
		},
		Parser: ParserConfig{
			ConfidencePolicy: PolicyDrop,
		},
		Worker: WorkerConfig{
			QueueSize:  100,
			Workers:    5,
			MaxRetries: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Port: "8080",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (a
// missing file is fine when path is the default), then variables from an
// optional .env file and the process environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CATEGORIZER_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("GOOGLE_CLOUD_PROJECT", &c.ProjectID)
	str("CATEGORIZER_BACKEND", &c.Backend)
	str("BQ_DATASET", &c.BigQuery.Dataset)
	str("MONGO_URI", &c.Mongo.URI)
	str("SQLITE_PATH", &c.SQLite.Path)
	str("GEMINI_MODEL", &c.Model.Name)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOCAL_SOURCE_ROOT", &c.Source.LocalRoot)
	str("PORT", &c.HTTP.Port)

	if v, ok := lookup("DEFAULT_TAXONOMY_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEFAULT_TAXONOMY_ENABLED: %w", err)
		}
		c.DefaultTaxonomy.Enabled = b
	}
	return nil
}

// Validate rejects configurations the categorizer cannot run with.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendBigQuery:
		if c.ProjectID == "" {
			return fmt.Errorf("config: project_id is required for the bigquery backend")
		}
		if c.BigQuery.Dataset == "" {
			return fmt.Errorf("config: bigquery.dataset is required")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("config: mongo.uri is required for the mongo backend")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("config: sqlite.path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}

	c.Parser.ConfidencePolicy = strings.ToLower(strings.TrimSpace(c.Parser.ConfidencePolicy))
	switch c.Parser.ConfidencePolicy {
	case PolicyDrop, PolicyClamp:
	default:
		return fmt.Errorf("config: unknown parser.confidence_policy %q", c.Parser.ConfidencePolicy)
	}

	for name, d := range map[string]time.Duration{
		"source":   c.Timeouts.Source,
		"store":    c.Timeouts.Store,
		"taxonomy": c.Timeouts.Taxonomy,
		"model":    c.Timeouts.Model,
	} {
		if d <= 0 {
			return fmt.Errorf("config: timeouts.%s must be positive", name)
		}
	}

	if c.Model.Name == "" {
		return fmt.Errorf("config: model.name is required")
	}
	if c.DefaultTaxonomy.Enabled && len(c.DefaultTaxonomy.Categories) == 0 {
		return fmt.Errorf("config: default_taxonomy is enabled but has no categories")
	}
	if c.Worker.Workers <= 0 || c.Worker.QueueSize <= 0 || c.Worker.MaxRetries < 0 {
		return fmt.Errorf("config: worker settings must be positive")
	}
	return nil
}
