package domain

import "time"

// RankingConfig controls one ranking invocation. It is built once per
// request and not mutated while ranking.
type RankingConfig struct {
	// DomainBoosts multiplies scores per domain. Unlisted domains use 1.0.
	DomainBoosts map[string]float64 `toml:"domain_boosts" validate:"omitempty,dive,gte=0"`

	// RecencyWeight blends freshness into the score. 0 disables recency.
	RecencyWeight float64 `toml:"recency_weight" validate:"gte=0,lte=1"`

	// RecencyHalfLifeDays is the age at which the recency factor halves.
	RecencyHalfLifeDays float64 `toml:"recency_half_life_days" validate:"gt=0"`

	// DedupThreshold is the content similarity at or above which the
	// lower-scoring match is dropped. 0 disables deduplication.
	DedupThreshold float64 `toml:"dedup_threshold" validate:"gte=0,lte=1"`

	// TopN is the maximum number of results returned.
	TopN int `toml:"top_n" validate:"gte=1"`

	// RerankModel identifies the reranker model.
	RerankModel string `toml:"rerank_model"`
}

// Default ranking values.
const (
	DefaultTopN                = 5
	DefaultDedupThreshold      = 0.9
	DefaultRecencyHalfLifeDays = 180
)

// DefaultRankingConfig returns sensible defaults.
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{
		DomainBoosts:        map[string]float64{},
		RecencyWeight:       0,
		RecencyHalfLifeDays: DefaultRecencyHalfLifeDays,
		DedupThreshold:      DefaultDedupThreshold,
		TopN:                DefaultTopN,
	}
}

// Boost returns the multiplier for a domain.
func (c RankingConfig) Boost(domain string) float64 {
	if b, ok := c.DomainBoosts[domain]; ok {
		return b
	}
	return 1.0
}

// Clone returns a copy with its own boost map.
func (c RankingConfig) Clone() RankingConfig {
	out := c
	out.DomainBoosts = make(map[string]float64, len(c.DomainBoosts))
	for k, v := range c.DomainBoosts {
		out.DomainBoosts[k] = v
	}
	return out
}

// RetrievalMatch is a raw match from the vector index hydrated with
// chunk content.
type RetrievalMatch struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	VectorID   string
	Content    string
	Title      string
	Domain     string
	Score      float64
	UpdatedAt  *time.Time
}

// RankedMatch is a match after ranking. Score is the final blended score
// and the ordering key.
type RankedMatch struct {
	RetrievalMatch

	RerankScore   float64
	BoostApplied  float64
	RecencyFactor float64
	FinalScore    float64
}

// RankingResult is the output of ranking.
type RankingResult struct {
	Matches           []RankedMatch
	DuplicatesRemoved int
	RerankerUsed      bool
}

// RetrievalOptions configures the query path.
type RetrievalOptions struct {
	Namespace string
	TopK      int
	Filter    MetadataFilter

	// Ranking overrides the configured ranking for this request.
	Ranking *RankingConfig
}

// RerankResult is one reranker score keyed by candidate index.
type RerankResult struct {
	Index int
	Score float64
}
