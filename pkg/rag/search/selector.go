package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/rag/search/filter"
)

const selectorSystemPrompt = `You are a document selector for a retrieval system.
You receive a catalog of ingested documents and a user query.
Reply with the file_id values of the documents worth searching for this query,
separated by commas. Reply with file_id values only, nothing else.
If no document is relevant, reply with an empty line.`

// catalogEntry is one document as described by its summary record.
type catalogEntry struct {
	FileID      string
	FileName    string
	FileType    string
	Summary     string
	TotalPages  int
	TotalImages int
	HasChapters bool
}

func (e *Engine) searchSelector(ctx context.Context, query string, vector []float64, opts Options, withMetadata bool) ([]domain.SearchHit, error) {
	selected, err := e.selectDocuments(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		e.logger.Info("selector chose no documents", "query_len", len(query))
		return []domain.SearchHit{}, nil
	}

	if withMetadata {
		return e.searchWithMetadata(ctx, query, vector, selected, opts)
	}

	var merged []domain.SearchHit
	for _, entry := range selected {
		expr := filter.And(filter.ByFileIDs([]string{entry.FileID}), opts.Filter)
		hits, err := e.store.Search(ctx, vector, opts.Limit, domain.PartitionDocuments, expr)
		if err != nil {
			return nil, fmt.Errorf("search document %s: %w", entry.FileID, err)
		}
		merged = append(merged, hits...)
	}
	return truncate(merged, opts.Limit), nil
}

// selectDocuments runs the selection phase: scroll the summaries
// partition, show the catalog to the LLM, and keep only the known ids it
// returns. An empty catalog or an unparseable reply selects nothing.
func (e *Engine) selectDocuments(ctx context.Context, query string, opts Options) ([]catalogEntry, error) {
	summaries, err := e.store.ScrollPartition(ctx, domain.PartitionSummaries, 0)
	if err != nil {
		return nil, fmt.Errorf("load document catalog: %w", err)
	}
	entries := catalogFromHits(summaries)
	if len(entries) == 0 {
		return nil, nil
	}

	reply, err := e.llm.Generate(ctx, domain.TextRequest{
		SystemPrompt: selectorSystemPrompt,
		Prompt:       renderCatalog(entries) + "\n\nQuery: " + query,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("document selection: %w", err)
	}

	ids := parseSelection(reply, entries)
	e.logger.Debug("selector resolved documents", "selected", len(ids), "catalog", len(entries))

	selected := make([]catalogEntry, 0, len(ids))
	for _, entry := range entries {
		if _, ok := ids[entry.FileID]; ok {
			selected = append(selected, entry)
		}
	}
	return selected, nil
}

func catalogFromHits(hits []domain.SearchHit) []catalogEntry {
	entries := make([]catalogEntry, 0, len(hits))
	for _, hit := range hits {
		if hit.FileID == "" {
			continue
		}
		entries = append(entries, catalogEntry{
			FileID:      hit.FileID,
			FileName:    hit.FileName,
			FileType:    hit.FileType,
			Summary:     hit.Text,
			TotalPages:  payloadInt(hit.Payload, "total_pages"),
			TotalImages: payloadInt(hit.Payload, "full_images"),
			HasChapters: payloadBool(hit.Payload, "has_chapters"),
		})
	}
	return entries
}

// renderCatalog produces the Markdown document catalog shown to the LLM,
// one section per document.
func renderCatalog(entries []catalogEntry) string {
	var sb strings.Builder
	sb.WriteString("# Document catalog\n")
	for _, entry := range entries {
		fmt.Fprintf(&sb, "\n## %s\n", entry.FileName)
		fmt.Fprintf(&sb, "- file_id: %s\n", entry.FileID)
		fmt.Fprintf(&sb, "- file_type: %s\n", entry.FileType)
		fmt.Fprintf(&sb, "- total_pages: %d\n", entry.TotalPages)
		fmt.Fprintf(&sb, "- total_images: %d\n", entry.TotalImages)
		fmt.Fprintf(&sb, "- has_chapters: %t\n", entry.HasChapters)
		fmt.Fprintf(&sb, "\n%s\n", entry.Summary)
	}
	return sb.String()
}

// parseSelection tokenizes an LLM reply on commas, whitespace and
// newlines and intersects the tokens with the catalog's ids. Unknown
// tokens are dropped silently.
func parseSelection(reply string, entries []catalogEntry) map[string]struct{} {
	known := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		known[entry.FileID] = struct{}{}
	}

	selected := make(map[string]struct{})
	tokens := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == '\t' || r == ' '
	})
	for _, tok := range tokens {
		tok = strings.Trim(tok, "\"'`.;:()[]")
		if _, ok := known[tok]; ok {
			selected[tok] = struct{}{}
		}
	}
	return selected
}

func payloadInt(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func payloadBool(payload map[string]interface{}, key string) bool {
	v, _ := payload[key].(bool)
	return v
}
