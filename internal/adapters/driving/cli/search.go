package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

var (
	searchTopK      int
	searchTopN      int
	searchNamespace string
	searchFilters   []string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Embeds the query, retrieves the nearest chunks from the vector index
and ranks them with reranking, domain boosts, recency and deduplication.`,
	Args:        cobra.ExactArgs(1),
	Annotations: withServices,
	RunE:        runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.IntVarP(&searchTopK, "top-k", "k", 0, "candidates fetched from the index (default from service)")
	f.IntVarP(&searchTopN, "limit", "n", 0, "maximum results after ranking (default from config)")
	f.StringVar(&searchNamespace, "namespace", "", "vector index namespace (default from config)")
	f.StringArrayVarP(&searchFilters, "filter", "f", nil, "metadata filter key=value, repeatable")
	f.BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, err := retrievalService()
	if err != nil {
		return err
	}

	filter, err := parseFilters(searchFilters)
	if err != nil {
		return err
	}
	opts := domain.RetrievalOptions{
		Namespace: searchNamespace,
		TopK:      searchTopK,
		Filter:    filter,
	}
	if searchTopN > 0 {
		ranking := currentRanking()
		ranking.TopN = searchTopN
		opts.Ranking = &ranking
	}

	result, err := svc.Search(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return outputSearchTable(cmd, result)
}

// currentRanking returns the configured ranking settings when the wiring
// exposes them, else the defaults.
func currentRanking() domain.RankingConfig {
	if services != nil && services.Ranking != nil {
		return services.Ranking.RankingConfig()
	}
	return domain.DefaultRankingConfig()
}

func parseFilters(raw []string) (domain.MetadataFilter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filter := make(domain.MetadataFilter, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: filter %q must be key=value", domain.ErrInvalidInput, kv)
		}
		filter[key] = strings.TrimSpace(value)
	}
	return filter, nil
}

func outputSearchTable(cmd *cobra.Command, result *domain.RankingResult) error {
	if len(result.Matches) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println(titleStyle.Render("Results:"))
	cmd.Println()
	for i := range result.Matches {
		m := &result.Matches[i]
		title := m.Title
		if title == "" {
			title = m.DocumentID
		}

		cmd.Printf("  [%d] %s (%.3f)\n", i+1, title, m.FinalScore)
		meta := fmt.Sprintf("chunk %s", m.ChunkID)
		if m.Domain != "" {
			meta += " | " + m.Domain
		}
		cmd.Printf("      %s\n", mutedStyle.Render(meta))
		cmd.Printf("      %s\n", snippet(m.Content, 200))
		cmd.Println()
	}

	var notes []string
	if result.RerankerUsed {
		notes = append(notes, "reranked")
	}
	if result.DuplicatesRemoved > 0 {
		notes = append(notes, fmt.Sprintf("%d duplicates removed", result.DuplicatesRemoved))
	}
	if len(notes) > 0 {
		cmd.Println(mutedStyle.Render(strings.Join(notes, ", ")))
	}
	return nil
}

// snippet collapses whitespace and cuts s to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
