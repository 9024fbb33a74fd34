package services

import (
	"cmp"
	"context"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/logger"
	"github.com/jltournay/farmer-power-knowledge/internal/telemetry"
)

// DefaultRerankTimeout bounds a reranker call before falling back.
const DefaultRerankTimeout = 5 * time.Second

// RankingEngine orders retrieval matches: rerank, domain boost, recency
// blend, deduplication, then top-N. The result does not depend on the
// order of the input matches.
type RankingEngine struct {
	reranker      driven.Reranker
	rerankTimeout time.Duration
	now           func() time.Time
}

// RankingOption configures the ranking engine.
type RankingOption func(*RankingEngine)

// WithReranker sets the optional reranker.
func WithReranker(r driven.Reranker) RankingOption {
	return func(e *RankingEngine) {
		e.reranker = r
	}
}

// WithRerankTimeout sets how long a reranker call may take.
func WithRerankTimeout(d time.Duration) RankingOption {
	return func(e *RankingEngine) {
		if d > 0 {
			e.rerankTimeout = d
		}
	}
}

// WithRankingClock sets the clock used for recency.
func WithRankingClock(now func() time.Time) RankingOption {
	return func(e *RankingEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewRankingEngine creates a ranking engine.
func NewRankingEngine(opts ...RankingOption) *RankingEngine {
	e := &RankingEngine{
		rerankTimeout: DefaultRerankTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// candidate carries per-match ranking state.
type candidate struct {
	match  domain.RankedMatch
	tokens map[string]struct{}
}

// Rank orders matches for the query under cfg.
func (e *RankingEngine) Rank(
	ctx context.Context,
	query string,
	matches []domain.RetrievalMatch,
	cfg domain.RankingConfig,
) (*domain.RankingResult, error) {
	if err := validateStruct(cfg); err != nil {
		return nil, err
	}

	result := &domain.RankingResult{Matches: []domain.RankedMatch{}}
	if len(matches) == 0 {
		return result, nil
	}

	// Canonical input order makes every later step order-independent.
	cands := make([]candidate, len(matches))
	for i, m := range matches {
		cands[i] = candidate{match: domain.RankedMatch{RetrievalMatch: m}}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return lessMatch(&cands[i].match, &cands[j].match, cands[i].match.Score, cands[j].match.Score)
	})

	result.RerankerUsed = e.rerank(ctx, query, cfg.RerankModel, cands)

	now := e.now()
	for i := range cands {
		m := &cands[i].match
		if !result.RerankerUsed {
			m.RerankScore = m.Score
		}
		base := m.RerankScore

		m.BoostApplied = cfg.Boost(m.Domain)
		boosted := base * m.BoostApplied

		m.FinalScore = boosted
		if cfg.RecencyWeight > 0 && m.UpdatedAt != nil {
			m.RecencyFactor = recencyFactor(*m.UpdatedAt, now, cfg.RecencyHalfLifeDays)
			m.FinalScore = boosted*(1-cfg.RecencyWeight) + boosted*m.RecencyFactor*cfg.RecencyWeight
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return lessMatch(&cands[i].match, &cands[j].match, cands[i].match.FinalScore, cands[j].match.FinalScore)
	})

	kept, removed := dedupe(cands, cfg.DedupThreshold)
	result.DuplicatesRemoved = removed
	telemetry.DuplicatesRemoved(removed)

	if len(kept) > cfg.TopN {
		kept = kept[:cfg.TopN]
	}
	for _, c := range kept {
		result.Matches = append(result.Matches, c.match)
	}

	logger.Debug("ranked matches",
		"candidates", len(matches), "returned", len(result.Matches),
		"duplicates_removed", removed, "reranker_used", result.RerankerUsed)
	return result, nil
}

// rerank scores candidates with the reranker. It returns false, leaving
// retrieval scores in charge, when the reranker is absent, fails, or
// returns an incomplete score set.
func (e *RankingEngine) rerank(ctx context.Context, query, model string, cands []candidate) bool {
	if e.reranker == nil || strings.TrimSpace(query) == "" {
		return false
	}

	rctx, cancel := context.WithTimeout(ctx, e.rerankTimeout)
	defer cancel()

	docs := make([]string, len(cands))
	for i, c := range cands {
		docs[i] = c.match.Content
	}

	results, err := e.reranker.Rerank(rctx, model, query, docs)
	if err == nil {
		err = checkRerankResults(results, len(cands))
	}
	if err != nil {
		telemetry.RerankFallback()
		logger.Warn("reranking failed, using retrieval scores",
			"error", err, "timeout", e.rerankTimeout, "candidates", len(cands))
		return false
	}

	for _, r := range results {
		cands[r.Index].match.RerankScore = r.Score
	}
	return true
}

func checkRerankResults(results []domain.RerankResult, n int) error {
	if len(results) != n {
		return domain.ErrRerankerUnavailable
	}
	seen := make([]bool, n)
	for _, r := range results {
		if r.Index < 0 || r.Index >= n || seen[r.Index] || math.IsNaN(r.Score) {
			return domain.ErrRerankerUnavailable
		}
		seen[r.Index] = true
	}
	return nil
}

// recencyFactor decays by half every halfLifeDays. Future dates count as
// fresh.
func recencyFactor(updated, now time.Time, halfLifeDays float64) float64 {
	ageDays := now.Sub(updated).Hours() / 24
	if ageDays <= 0 {
		return 1
	}
	f := math.Pow(0.5, ageDays/halfLifeDays)
	return math.Max(0, math.Min(1, f))
}

// dedupe keeps the first of each group of near-duplicate candidates.
// Candidates must already be in final order.
func dedupe(cands []candidate, threshold float64) ([]candidate, int) {
	kept := make([]candidate, 0, len(cands))
	removed := 0
	for _, c := range cands {
		if isDuplicate(c, kept, threshold) {
			removed++
			continue
		}
		if threshold > 0 {
			c.tokens = contentTokens(c.match.Content)
		}
		kept = append(kept, c)
	}
	return kept, removed
}

func isDuplicate(c candidate, kept []candidate, threshold float64) bool {
	var tokens map[string]struct{}
	for _, k := range kept {
		if k.match.ChunkID == c.match.ChunkID {
			return true
		}
		if threshold <= 0 {
			continue
		}
		if tokens == nil {
			tokens = contentTokens(c.match.Content)
		}
		if jaccard(tokens, k.tokens) >= threshold {
			return true
		}
	}
	return false
}

// contentTokens lowercases text and splits it into a set of words.
func contentTokens(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// jaccard returns |a ∩ b| / |a ∪ b|. An empty set scores 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// lessMatch orders by score descending, then chunk ID ascending. The
// remaining fields make the order total so matches sharing a chunk ID
// still sort the same way whatever the input order.
func lessMatch(a, b *domain.RankedMatch, sa, sb float64) bool {
	if sa != sb {
		return sa > sb
	}
	return cmp.Or(
		strings.Compare(a.ChunkID, b.ChunkID),
		strings.Compare(a.VectorID, b.VectorID),
		strings.Compare(a.DocumentID, b.DocumentID),
		cmp.Compare(a.ChunkIndex, b.ChunkIndex),
		cmp.Compare(b.Score, a.Score),
		strings.Compare(a.Domain, b.Domain),
		strings.Compare(a.Title, b.Title),
		strings.Compare(a.Content, b.Content),
		compareUpdated(a.UpdatedAt, b.UpdatedAt),
	) < 0
}

// compareUpdated puts newer dates first and undated matches last.
func compareUpdated(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return b.Compare(*a)
}
