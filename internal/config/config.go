// Package config loads service configuration from an optional YAML file,
// a .env file and CAMSEARCH_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kdimtricp/camsearch/internal/ai"
	"github.com/kdimtricp/camsearch/internal/database"
)

const EnvPrefix = "CAMSEARCH"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Search   SearchConfig   `mapstructure:"search"`
	Identity IdentityConfig `mapstructure:"identity"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	CLIP     CLIPConfig     `mapstructure:"clip"`
	Breaker  BreakerConfig  `mapstructure:"circuit_breaker"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite or postgres
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DB converts to the database package's connection settings.
func (d DatabaseConfig) DB() database.Config {
	return database.Config{
		Type:       d.Type,
		Host:       d.Host,
		Port:       d.Port,
		User:       d.User,
		Password:   d.Password,
		Name:       d.Name,
		SQLitePath: d.Path,
	}
}

type StorageConfig struct {
	FramesDir string `mapstructure:"frames_dir"`
}

type SearchConfig struct {
	DefaultTopK  int           `mapstructure:"default_top_k"`
	TextWeight   float64       `mapstructure:"text_weight"`
	VisualWeight float64       `mapstructure:"visual_weight"`
	ObjectBoost  float64       `mapstructure:"object_boost"`
	ColorBoost   float64       `mapstructure:"color_boost"`
	Budget       time.Duration `mapstructure:"budget"`
	Encoder      string        `mapstructure:"encoder"` // hashing or openai
	HashDims     int           `mapstructure:"hash_dimensions"`
	UseLLM       bool          `mapstructure:"use_llm"`
}

type IdentityConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Encoder   string  `mapstructure:"encoder"` // histogram or clip
}

type IngestConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	CrowdThreshold      int     `mapstructure:"crowd_threshold"`
	UnattendedBagAlert  bool    `mapstructure:"unattended_bag_alert"`
	EstimateColors      bool    `mapstructure:"estimate_colors"`
}

type OpenAIConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	EmbeddingModel    string        `mapstructure:"embedding_model"`
	EmbeddingDims     int           `mapstructure:"embedding_dimensions"`
	ChatModel         string        `mapstructure:"chat_model"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type CLIPConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ReadyToTripRatio float64       `mapstructure:"ready_to_trip_ratio"`
}

func (b BreakerConfig) AI() ai.BreakerConfig {
	return ai.BreakerConfig{
		Enabled:     b.Enabled,
		MaxRequests: b.MaxRequests,
		Interval:    b.Interval,
		Timeout:     b.Timeout,
		TripRatio:   b.ReadyToTripRatio,
	}
}

// Load builds a Config from defaults, the optional file at path, .env and
// the environment. A missing .env file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	_ = godotenv.Load()

	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Type {
	case database.TypeSQLite, database.TypePostgres:
	default:
		errs = append(errs, fmt.Errorf("database.type must be %q or %q, got %q", database.TypeSQLite, database.TypePostgres, c.Database.Type))
	}
	if c.Identity.Threshold <= 0 || c.Identity.Threshold > 1 {
		errs = append(errs, fmt.Errorf("identity.threshold must be in (0, 1], got %v", c.Identity.Threshold))
	}
	if c.Ingest.ConfidenceThreshold < 0 || c.Ingest.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("ingest.confidence_threshold must be in [0, 1], got %v", c.Ingest.ConfidenceThreshold))
	}
	if c.Search.DefaultTopK <= 0 {
		errs = append(errs, fmt.Errorf("search.default_top_k must be positive, got %d", c.Search.DefaultTopK))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.max_upload_size", 10<<20)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.type", database.TypeSQLite)
	v.SetDefault("database.path", "./camsearch.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "camsearch")
	v.SetDefault("database.password", "camsearch_dev")
	v.SetDefault("database.name", "camsearch")

	v.SetDefault("storage.frames_dir", "./storage/frames")

	v.SetDefault("search.default_top_k", 5)
	v.SetDefault("search.text_weight", 0.4)
	v.SetDefault("search.visual_weight", 0.6)
	v.SetDefault("search.object_boost", 0.2)
	v.SetDefault("search.color_boost", 0.3)
	v.SetDefault("search.budget", 5*time.Second)
	v.SetDefault("search.encoder", "hashing")
	v.SetDefault("search.hash_dimensions", 384)
	v.SetDefault("search.use_llm", false)

	v.SetDefault("identity.threshold", 0.85)
	v.SetDefault("identity.encoder", "histogram")

	v.SetDefault("ingest.confidence_threshold", 0.5)
	v.SetDefault("ingest.crowd_threshold", 5)
	v.SetDefault("ingest.unattended_bag_alert", true)
	v.SetDefault("ingest.estimate_colors", true)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.embedding_dimensions", 1536)
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.requests_per_second", 5.0)
	v.SetDefault("openai.timeout", 30*time.Second)

	v.SetDefault("clip.url", "")
	v.SetDefault("clip.timeout", 10*time.Second)

	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.interval", 60*time.Second)
	v.SetDefault("circuit_breaker.timeout", 30*time.Second)
	v.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)
}
