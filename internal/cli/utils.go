// Package cli provides output formatting for the ragtriever CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/ragtriever/internal/indexer"
	"github.com/hyperjump/ragtriever/internal/models"
	"github.com/hyperjump/ragtriever/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and the chunks it was built from.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, ans)
	}
	fmt.Fprintf(w, "\n%s\n\n", ans.Text)
	source := "generated"
	switch {
	case ans.Cached:
		source = "cached"
	case ans.Degraded:
		source = "degraded"
	}
	fmt.Fprintf(w, "%s | %d matches from %d documents | %dms\n",
		source, len(ans.Matches), len(ans.Documents), ans.QueryTime)
	for i, m := range ans.Matches {
		if m.Chunk == nil {
			continue
		}
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "[%d] %s #%d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
			i+1, m.Chunk.DocumentName, m.Chunk.Position, m.Score, m.KeywordScore, m.SemanticScore)
		fmt.Fprintf(w, "%s\n", utils.Truncate(m.Chunk.Content, 200))
	}
	return nil
}

// WriteDocuments writes a document listing.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Document{}
		}
		return WriteJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %-40s  %-16s  %4d chunks  %s\n",
			d.ID, d.Name, d.Type, d.ChunkCount, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "\n%d documents\n", len(docs))
	return nil
}

// WriteReport writes the outcome of an ingest.
func WriteReport(w io.Writer, report *indexer.Report, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, report)
	}
	for _, d := range report.Ingested {
		fmt.Fprintf(w, "ingested  %s (%d chunks) %s\n", d.Name, d.ChunkCount, d.ID)
	}
	for _, name := range report.Skipped {
		fmt.Fprintf(w, "skipped   %s (already exists)\n", name)
	}
	names := make([]string, 0, len(report.Failed))
	for name := range report.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "failed    %s: %s\n", name, report.Failed[name])
	}
	fmt.Fprintf(w, "\n%d ingested, %d skipped, %d failed\n",
		len(report.Ingested), len(report.Skipped), len(report.Failed))
	return nil
}

// WriteStatus writes a status map such as the /api/status response.
func WriteStatus(w io.Writer, status map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, status)
	}
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-18s %s\n", k+":", formatValue(status[k]))
	}
	return nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		parts := make([]string, 0, len(val))
		for k, x := range val {
			parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(x)))
		}
		sort.Strings(parts)
		return strings.Join(parts, " ")
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
