// Package cli provides CLI utilities for umekomi.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/umekomi/internal/docs"
)

// OutputFormat is the format for result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact is one result per line.
	OutputCompact OutputFormat = "compact"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	case "compact":
		return OutputCompact, nil
	default:
		return OutputText, fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteEncodeResults writes the embedded collection to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteEncodeResults(w io.Writer, collection []*docs.Document, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(collection)
	case OutputCompact:
		for _, d := range collection {
			fmt.Fprintf(w, "%s\tdims=%d\t%s\n", d.ID, len(d.Embedding), Truncate(contentLabel(d), 60))
		}
		return nil
	default:
		writeEncodeResultsText(w, collection)
		return nil
	}
}

func writeEncodeResultsText(w io.Writer, collection []*docs.Document) {
	fmt.Fprintf(w, "\nEncoded %d document(s)\n\n", len(collection))
	for _, d := range collection {
		fmt.Fprintf(w, "ID: %s\n", d.ID)
		fmt.Fprintf(w, "Content: %s\n", Truncate(contentLabel(d), 120))
		if d.HasEmbedding() {
			fmt.Fprintf(w, "Embedding: %d dims, head %v\n", len(d.Embedding), head(d.Embedding, 4))
		} else {
			fmt.Fprintln(w, "Embedding: (none)")
		}
		fmt.Fprintln(w)
	}
}

// WriteRankResults writes ranked anchors and their reordered matches.
func WriteRankResults(w io.Writer, collection []*docs.Document, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(collection)
	case OutputCompact:
		for _, anchor := range collection {
			for rank, m := range anchor.Matches {
				score, _ := m.Score(docs.ScoreCLIP)
				fmt.Fprintf(w, "%s\t%d\t%.4f\t%s\n", anchor.ID, rank+1, score, Truncate(contentLabel(m), 60))
			}
		}
		return nil
	default:
		writeRankResultsText(w, collection)
		return nil
	}
}

func writeRankResultsText(w io.Writer, collection []*docs.Document) {
	for _, anchor := range collection {
		fmt.Fprintf(w, "\nAnchor %s: %s\n", anchor.ID, Truncate(contentLabel(anchor), 120))
		for rank, m := range anchor.Matches {
			score, _ := m.Score(docs.ScoreCLIP)
			cosine, _ := m.Score(docs.ScoreCLIPCosine)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Rank: %d | Score: %.4f (Cosine: %.4f)\n", rank+1, score, cosine)
			fmt.Fprintf(w, "ID: %s\n", m.ID)
			fmt.Fprintf(w, "\n%s\n", Truncate(contentLabel(m), 200))
		}
		fmt.Fprintln(w)
	}
}

// contentLabel describes a document's content for display.
func contentLabel(d *docs.Document) string {
	switch {
	case d.Text != "":
		return d.Text
	case d.Tensor != nil:
		return fmt.Sprintf("<tensor %v %s>", d.Tensor.Shape, d.Tensor.DType)
	case len(d.Blob) > 0:
		return fmt.Sprintf("<blob %d bytes>", len(d.Blob))
	case d.URI != "":
		return d.URI
	default:
		return "<empty>"
	}
}

func head(v []float32, n int) []float32 {
	if len(v) < n {
		return v
	}
	return v[:n]
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
