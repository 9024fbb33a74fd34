package postprocessors

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// BuilderFunc creates a Chunker from the [chunker] options of the config
// file. Unknown keys are ignored; wrongly typed known keys are errors.
type BuilderFunc func(cfg map[string]any) (driven.Chunker, error)

// Registry maps chunker names to builders. Names are case-insensitive.
// Registration happens during start-up; the registry is not safe for
// concurrent Register calls.
type Registry struct {
	builders map[string]BuilderFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]BuilderFunc)}
}

// Register adds a builder. Empty and already registered names are errors.
func (r *Registry) Register(name string, builder BuilderFunc) error {
	key := normaliseName(name)
	switch {
	case key == "":
		return fmt.Errorf("%w: chunker name is empty", domain.ErrInvalidInput)
	case builder == nil:
		return fmt.Errorf("%w: chunker %q has no builder", domain.ErrInvalidInput, name)
	}
	if _, dup := r.builders[key]; dup {
		return fmt.Errorf("%w: chunker %q already registered", domain.ErrInvalidInput, name)
	}
	r.builders[key] = builder
	return nil
}

// Build creates the named chunker, or the default chunker when name is
// empty. Unknown names return domain.ErrUnsupportedType listing the
// registered ones.
func (r *Registry) Build(name string, cfg map[string]any) (driven.Chunker, error) {
	key := normaliseName(name)
	if key == "" {
		key = DefaultChunker
	}
	builder, ok := r.builders[key]
	if !ok {
		return nil, fmt.Errorf("%w: chunker %q (available: %s)",
			domain.ErrUnsupportedType, name, strings.Join(r.Names(), ", "))
	}
	c, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("chunker %s: %w", key, err)
	}
	return c, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.builders[normaliseName(name)]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
