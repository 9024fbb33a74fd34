package postprocessors

import (
	"fmt"
	"math"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/postprocessors/chunker"
)

// DefaultChunker is the chunker used when config names none.
const DefaultChunker = "semantic"

// RegisterDefaults registers the built-in chunkers. It fails only if one
// of the names is already taken.
func RegisterDefaults(r *Registry) error {
	return r.Register(DefaultChunker, buildSemantic)
}

// buildSemantic creates the section-aware chunker. Keys:
//   - chunk_size (int): units per chunk (default 500)
//   - chunk_overlap (int): units shared by neighbouring windows (default 50)
//   - min_chunk_size (int): smaller trailing chunks are merged (default 100)
//   - unit (string): "words" or "chars" (default words)
func buildSemantic(cfg map[string]any) (driven.Chunker, error) {
	var opts []chunker.Option

	intOpts := []struct {
		key   string
		apply func(int) chunker.Option
	}{
		{"chunk_size", chunker.WithChunkSize},
		{"chunk_overlap", chunker.WithOverlap},
		{"min_chunk_size", chunker.WithMinChunkSize},
	}
	for _, o := range intOpts {
		v, ok, err := intOption(cfg, o.key)
		if err != nil {
			return nil, err
		}
		if ok {
			opts = append(opts, o.apply(v))
		}
	}

	if raw, ok := cfg["unit"]; ok {
		unit, _ := raw.(string)
		if !chunker.Unit(unit).IsValid() {
			return nil, fmt.Errorf("%w: chunk unit %v", domain.ErrInvalidInput, raw)
		}
		opts = append(opts, chunker.WithUnit(chunker.Unit(unit)))
	}

	return chunker.New(opts...), nil
}

// intOption reads an integer option. TOML decodes integers as int64 and
// JSON as float64; fractional floats and other types are rejected.
func intOption(cfg map[string]any, key string) (int, bool, error) {
	val, ok := cfg[key]
	if !ok {
		return 0, false, nil
	}

	switch v := val.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), true, nil
		}
	}
	return 0, false, fmt.Errorf("%w: %s must be an integer, got %v", domain.ErrInvalidInput, key, val)
}
