package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/logger"
	"github.com/jltournay/farmer-power-knowledge/internal/normalisers"
)

var (
	vectorizeDocID     string
	vectorizeVersion   int
	vectorizeNamespace string
	vectorizeTitle     string
	vectorizeDomain    string
	vectorizeRegion    string
	vectorizeSeason    string
	vectorizeTags      []string
	vectorizeUpdatedAt string
	vectorizeFormat    string
	vectorizeJSON      bool
)

var vectorizeCmd = &cobra.Command{
	Use:   "vectorize [file]",
	Short: "Chunk, embed and index a document version",
	Long: `Reads the document from a file (or stdin when the file is "-"),
extracts its text, splits it into chunks, embeds them and writes the
vectors to the index. The command waits for the job to finish and prints
its final state.

Markdown, HTML, DOCX and plain text are understood. The format is taken
from the file extension unless --format is given. Markdown front matter
fills in title, domain, region, season, tags and updated_at; flags win.`,
	Args:        cobra.ExactArgs(1),
	Annotations: withServices,
	RunE:        runVectorize,
}

func init() {
	f := vectorizeCmd.Flags()
	f.StringVar(&vectorizeDocID, "doc-id", "", "document identifier (required)")
	f.IntVar(&vectorizeVersion, "version", 1, "document version")
	f.StringVar(&vectorizeNamespace, "namespace", "", "vector index namespace (default from config)")
	f.StringVar(&vectorizeTitle, "title", "", "document title")
	f.StringVar(&vectorizeDomain, "domain", "", "knowledge domain, e.g. plant_disease")
	f.StringVar(&vectorizeRegion, "region", "", "region the document applies to")
	f.StringVar(&vectorizeSeason, "season", "", "season the document applies to")
	f.StringSliceVar(&vectorizeTags, "tags", nil, "comma separated tags")
	f.StringVar(&vectorizeUpdatedAt, "updated-at", "", "last content change, RFC 3339 or YYYY-MM-DD")
	f.StringVar(&vectorizeFormat, "format", "", "input format: markdown, html, docx, text or a MIME type")
	f.BoolVar(&vectorizeJSON, "json", false, "output the job as JSON")
	_ = vectorizeCmd.MarkFlagRequired("doc-id")
	rootCmd.AddCommand(vectorizeCmd)
}

func runVectorize(cmd *cobra.Command, args []string) error {
	svc, err := vectorizationService()
	if err != nil {
		return err
	}

	raw, err := readContent(cmd, args[0])
	if err != nil {
		return err
	}
	if raw.MIMEType, err = normalisers.ResolveFormat(vectorizeFormat); err != nil {
		return err
	}
	normalised, err := normaliserRegistry().Normalise(cmd.Context(), raw)
	if err != nil {
		return fmt.Errorf("read %s: %w", raw.URI, err)
	}
	updatedAt, err := parseDate(vectorizeUpdatedAt)
	if err != nil {
		return err
	}

	meta := normalised.Meta
	if updatedAt.IsZero() && meta.UpdatedAt != nil {
		updatedAt = *meta.UpdatedAt
	}
	tags := vectorizeTags
	if len(tags) == 0 {
		tags = meta.Tags
	}

	doc := &domain.Document{
		ID:        vectorizeDocID,
		Version:   vectorizeVersion,
		Namespace: vectorizeNamespace,
		Title:     firstNonEmpty(vectorizeTitle, meta.Title),
		Domain:    firstNonEmpty(vectorizeDomain, meta.Domain),
		Region:    firstNonEmpty(vectorizeRegion, meta.Region),
		Season:    firstNonEmpty(vectorizeSeason, meta.Season),
		Tags:      tags,
		Content:   normalised.Content,
		UpdatedAt: updatedAt,
	}
	logger.Debug("document normalised", "uri", raw.URI, "format", normalised.Format, "chars", len(doc.Content))

	job, runErr := svc.Vectorize(cmd.Context(), doc)
	if job != nil {
		if vectorizeJSON {
			if err := writeJSON(cmd.OutOrStdout(), newJobView(job)); err != nil {
				return err
			}
		} else {
			renderJob(cmd.OutOrStdout(), job, -1)
		}
	}
	if runErr != nil {
		return fmt.Errorf("vectorize failed: %w", runErr)
	}
	return nil
}

func readContent(cmd *cobra.Command, path string) (*domain.RawDocument, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return &domain.RawDocument{URI: path, Content: data}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: updated-at %q is not RFC 3339 or YYYY-MM-DD", domain.ErrInvalidInput, s)
	}
	return t, nil
}
