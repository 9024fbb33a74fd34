package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// ConfigFile is the file name used inside the config directory.
const ConfigFile = "config.toml"

// Duration is a time.Duration written as a Go duration string ("5m").
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the complete knowledge core configuration.
type Config struct {
	Storage     StorageConfig        `toml:"storage"`
	Chunker     ChunkerConfig        `toml:"chunker"`
	Embedding   EmbeddingConfig      `toml:"embedding"`
	VectorIndex VectorIndexConfig    `toml:"vector_index"`
	Reranker    RerankerConfig       `toml:"reranker"`
	Pipeline    PipelineConfig       `toml:"pipeline"`
	Ranking     domain.RankingConfig `toml:"ranking"`
	Scheduler   SchedulerConfig      `toml:"scheduler"`
}

// StorageConfig selects the chunk and job store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `toml:"backend" validate:"oneof=sqlite memory"`

	// DataDir holds the sqlite database. Empty means ~/.fpkb/data.
	DataDir string `toml:"data_dir"`
}

// ChunkerConfig configures the registered chunker.
type ChunkerConfig struct {
	Name         string `toml:"name" validate:"required"`
	ChunkSize    int    `toml:"chunk_size" validate:"gt=0"`
	ChunkOverlap int    `toml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	MinChunkSize int    `toml:"min_chunk_size" validate:"gte=0"`
	Unit         string `toml:"unit" validate:"oneof=words chars"`
}

// Options returns the generic option map understood by the chunker registry.
func (c ChunkerConfig) Options() map[string]any {
	return map[string]any{
		"chunk_size":     c.ChunkSize,
		"chunk_overlap":  c.ChunkOverlap,
		"min_chunk_size": c.MinChunkSize,
		"unit":           c.Unit,
	}
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai", "ollama" or "hashing".
	Provider string `toml:"provider" validate:"oneof=openai ollama hashing"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url" validate:"omitempty,url"`

	// APIKey is normally supplied through FPKB_EMBEDDING_API_KEY.
	APIKey string `toml:"api_key"`

	Dimensions        int      `toml:"dimensions" validate:"gte=0"`
	InputPrefixes     bool     `toml:"input_prefixes"`
	BatchSize         int      `toml:"batch_size" validate:"gt=0"`
	MaxTextLength     int      `toml:"max_text_length" validate:"gt=0"`
	RequestsPerSecond float64  `toml:"requests_per_second" validate:"gte=0"`
	Burst             int      `toml:"burst" validate:"gte=0"`
	Timeout           Duration `toml:"timeout"`
}

// VectorIndexConfig selects the vector index.
type VectorIndexConfig struct {
	// Provider is "qdrant" or "memory".
	Provider   string   `toml:"provider" validate:"oneof=qdrant memory"`
	URL        string   `toml:"url" validate:"required_if=Provider qdrant"`
	APIKey     string   `toml:"api_key"`
	Collection string   `toml:"collection"`
	Namespace  string   `toml:"namespace" validate:"required"`
	Timeout    Duration `toml:"timeout"`
}

// RerankerConfig selects the optional reranker.
type RerankerConfig struct {
	// Provider is "none" or "tei".
	Provider string   `toml:"provider" validate:"oneof=none tei"`
	URL      string   `toml:"url" validate:"required_if=Provider tei"`
	Timeout  Duration `toml:"timeout"`
}

// PipelineConfig tunes the vectorization pipeline.
type PipelineConfig struct {
	Workers      int      `toml:"workers" validate:"gt=0"`
	BatchSize    int      `toml:"batch_size" validate:"gt=0"`
	StaleAfter   Duration `toml:"stale_after"`
	JobRetention Duration `toml:"job_retention"`
}

// SchedulerConfig controls background maintenance.
type SchedulerConfig struct {
	Enabled          bool     `toml:"enabled"`
	RecoveryInterval Duration `toml:"recovery_interval"`
	PruneInterval    Duration `toml:"prune_interval"`
}

// Domain converts the file settings to the scheduler's domain config.
func (c SchedulerConfig) Domain() domain.SchedulerConfig {
	cfg := domain.DefaultSchedulerConfig()
	cfg.Enabled = c.Enabled
	if c.RecoveryInterval.Duration > 0 {
		cfg.Tasks[domain.TaskJobRecovery] = domain.TaskConfig{Enabled: true, Interval: c.RecoveryInterval.Duration}
	}
	if c.PruneInterval.Duration > 0 {
		cfg.Tasks[domain.TaskJobPrune] = domain.TaskConfig{Enabled: true, Interval: c.PruneInterval.Duration}
	}
	return cfg
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Backend: "sqlite"},
		Chunker: ChunkerConfig{
			Name:         "semantic",
			ChunkSize:    500,
			ChunkOverlap: 50,
			MinChunkSize: 100,
			Unit:         "words",
		},
		Embedding: EmbeddingConfig{
			Provider:          "hashing",
			Dimensions:        384,
			BatchSize:         96,
			MaxTextLength:     8192,
			RequestsPerSecond: 5,
			Burst:             5,
			Timeout:           Duration{60 * time.Second},
		},
		VectorIndex: VectorIndexConfig{
			Provider:  "memory",
			Namespace: "knowledge",
			Timeout:   Duration{15 * time.Second},
		},
		Reranker: RerankerConfig{
			Provider: "none",
			Timeout:  Duration{5 * time.Second},
		},
		Pipeline: PipelineConfig{
			Workers:      4,
			BatchSize:    32,
			StaleAfter:   Duration{15 * time.Minute},
			JobRetention: Duration{30 * 24 * time.Hour},
		},
		Ranking: domain.DefaultRankingConfig(),
		Scheduler: SchedulerConfig{
			Enabled:          true,
			RecoveryInterval: Duration{5 * time.Minute},
			PruneInterval:    Duration{24 * time.Hour},
		},
	}
}

// DefaultPath returns ~/.fpkb/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fpkb", ConfigFile), nil
}

// Load reads the TOML file at path over the defaults and validates it.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidInput, path, err)
	}
	if cfg.Ranking.DomainBoosts == nil {
		cfg.Ranking.DomainBoosts = map[string]float64{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

var validate = validator.New()

// Validate checks every section and reports problems as ErrInvalidInput.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s%s", fe.Namespace(), fe.Tag(), param(fe.Param())))
	}
	return fmt.Errorf("%w: config: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
}

func param(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}
