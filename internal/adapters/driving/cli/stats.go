package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:         "stats [namespace]",
	Short:       "Show vector index statistics",
	Long:        `Shows the vector count per namespace, or for one namespace when given.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: withServices,
	RunE:        runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, err := retrievalService()
	if err != nil {
		return err
	}

	namespace := ""
	if len(args) == 1 {
		namespace = args[0]
	}
	stats, err := svc.IndexStats(cmd.Context(), namespace)
	if err != nil {
		return fmt.Errorf("index stats: %w", err)
	}

	if statsJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"total_vector_count": stats.TotalVectorCount,
			"namespaces":         stats.NamespaceCounts,
			"dimension":          stats.Dimension,
		})
	}

	cmd.Println(titleStyle.Render("Vector index"))
	cmd.Println(field("vectors", fmt.Sprintf("%d", stats.TotalVectorCount)))
	cmd.Println(field("dimension", fmt.Sprintf("%d", stats.Dimension)))

	names := make([]string, 0, len(stats.NamespaceCounts))
	for ns := range stats.NamespaceCounts {
		names = append(names, ns)
	}
	sort.Strings(names)
	for _, ns := range names {
		cmd.Println(field("  "+ns, fmt.Sprintf("%d", stats.NamespaceCounts[ns])))
	}
	return nil
}
