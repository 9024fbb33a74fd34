package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	writeConfig(t, path, `
[embedding]
provider = "ollama"
model = "nomic-embed-text"
base_url = "http://localhost:11434"
timeout = "10s"

[vector_index]
provider = "qdrant"
url = "http://localhost:6333"
namespace = "tea"

[ranking]
top_n = 3
recency_weight = 0.2
domain_boosts = { plant_disease = 1.5, weather = 0.8 }

[scheduler]
enabled = false
recovery_interval = "2m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 10*time.Second, cfg.Embedding.Timeout.Duration)
	assert.Equal(t, 96, cfg.Embedding.BatchSize, "unset keys keep defaults")
	assert.Equal(t, "qdrant", cfg.VectorIndex.Provider)
	assert.Equal(t, "tea", cfg.VectorIndex.Namespace)

	assert.Equal(t, 3, cfg.Ranking.TopN)
	assert.InDelta(t, 0.2, cfg.Ranking.RecencyWeight, 1e-9)
	assert.InDelta(t, 1.5, cfg.Ranking.Boost("plant_disease"), 1e-9)
	assert.InDelta(t, 1.0, cfg.Ranking.Boost("soil"), 1e-9)
	assert.InDelta(t, domain.DefaultDedupThreshold, cfg.Ranking.DedupThreshold, 1e-9)

	sched := cfg.Scheduler.Domain()
	assert.False(t, sched.Enabled)
	assert.Equal(t, 2*time.Minute, sched.Task(domain.TaskJobRecovery).Interval)
	assert.Equal(t, 24*time.Hour, sched.Task(domain.TaskJobPrune).Interval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `[ranking`},
		{"bad duration", "[pipeline]\nstale_after = \"soon\""},
		{"zero top_n", "[ranking]\ntop_n = 0"},
		{"recency weight above one", "[ranking]\nrecency_weight = 1.5"},
		{"negative boost", "[ranking]\ndomain_boosts = { weather = -1.0 }"},
		{"unknown embedding provider", "[embedding]\nprovider = \"magic\""},
		{"qdrant without url", "[vector_index]\nprovider = \"qdrant\""},
		{"tei without url", "[reranker]\nprovider = \"tei\""},
		{"overlap not below size", "[chunker]\nchunk_size = 50\nchunk_overlap = 50"},
		{"empty namespace", "[vector_index]\nnamespace = \"\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFile)
			writeConfig(t, path, tt.body)

			_, err := Load(path)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFile)

	cfg := Default()
	cfg.Ranking.DomainBoosts["plant_disease"] = 2
	cfg.Pipeline.StaleAfter = Duration{90 * time.Second}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSave_RejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Ranking.TopN = 0
	err := Save(filepath.Join(t.TempDir(), ConfigFile), cfg)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChunkerConfig_Options(t *testing.T) {
	opts := Default().Chunker.Options()
	assert.Equal(t, 500, opts["chunk_size"])
	assert.Equal(t, 50, opts["chunk_overlap"])
	assert.Equal(t, 100, opts["min_chunk_size"])
	assert.Equal(t, "words", opts["unit"])
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1h30m ")))
	assert.Equal(t, 90*time.Minute, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", string(text))

	require.Error(t, d.UnmarshalText([]byte("later")))
}
