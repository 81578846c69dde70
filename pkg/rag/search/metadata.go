package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/rag/search/filter"
)

const metadataSystemPrompt = `You are a retrieval-filter assistant.
You receive a catalog of selected documents and a user query.
For each document, decide which metadata narrows the search: relevant page
numbers, chapter labels, whether image-derived records should be searched and
which image numbers, and a file type when the query implies one.
Reply with JSON only, in this shape:
{"documents": [{"file_id": "...", "pages": [1], "chapters": ["..."],
"search_image": false, "num_image": [], "type_file": ""}]}
Omit or leave empty any field you are not confident about.`

// docMetadata is the per-document filter hint returned by the LLM.
type docMetadata struct {
	FileID      string   `json:"file_id"`
	Pages       []int    `json:"pages"`
	Chapters    []string `json:"chapters"`
	SearchImage bool     `json:"search_image"`
	NumImage    []int    `json:"num_image"`
	TypeFile    string   `json:"type_file"`
}

// searchWithMetadata runs the metadata-extraction phase over the selected
// documents and issues a single filtered search. Metadata that fails
// validation is dropped field by field; a document whose hints are all
// invalid degrades to an id-only match.
func (e *Engine) searchWithMetadata(ctx context.Context, query string, vector []float64, selected []catalogEntry, opts Options) ([]domain.SearchHit, error) {
	reply, err := e.llm.Generate(ctx, domain.TextRequest{
		SystemPrompt: metadataSystemPrompt,
		Prompt:       renderCatalog(selected) + "\n\nQuery: " + query,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("metadata extraction: %w", err)
	}

	hints := parseMetadata(reply)
	exprs := make([]string, 0, len(selected))
	for _, entry := range selected {
		exprs = append(exprs, documentExpr(entry, hints[entry.FileID]))
	}

	combined := exprs[0]
	if len(exprs) > 1 {
		combined = "(" + strings.Join(exprs, " or ") + ")"
	}
	combined = filter.And(combined, opts.Filter)

	hits, err := e.store.Search(ctx, vector, opts.Limit, domain.PartitionDocuments, combined)
	if err != nil {
		return nil, fmt.Errorf("filtered search: %w", err)
	}
	return truncate(hits, opts.Limit), nil
}

// parseMetadata extracts the JSON object from an LLM reply, tolerating
// surrounding prose and code fences. An unparseable reply yields no
// hints.
func parseMetadata(reply string) map[string]docMetadata {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil
	}

	var payload struct {
		Documents []docMetadata `json:"documents"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &payload); err != nil {
		return nil
	}

	hints := make(map[string]docMetadata, len(payload.Documents))
	for _, doc := range payload.Documents {
		if doc.FileID != "" {
			hints[doc.FileID] = doc
		}
	}
	return hints
}

// documentExpr builds one document's filter expression from its validated
// metadata hints.
func documentExpr(entry catalogEntry, meta docMetadata) string {
	expr := filter.ByFileIDs([]string{entry.FileID})

	pages := validPages(meta.Pages, entry.TotalPages)
	chapters := validChapters(meta.Chapters)
	var images []int
	if meta.SearchImage {
		images = validImages(meta.NumImage, entry.TotalImages)
	}
	typeFile := validTypeFile(meta.TypeFile, entry)

	parts := []string{expr}
	if p := filter.In("pages", pages); p != "" {
		parts = append(parts, p)
	}
	if c := filter.InStrings("chapters", chapters); c != "" {
		parts = append(parts, c)
	}
	if n := filter.In("num_image", images); n != "" {
		parts = append(parts, n)
	}
	if typeFile != "" {
		parts = append(parts, fmt.Sprintf("type_file == %q", typeFile))
	}

	if len(parts) == 1 {
		return expr
	}
	return "(" + strings.Join(parts, " and ") + ")"
}

func validPages(pages []int, totalPages int) []int {
	var out []int
	for _, p := range pages {
		if p >= 1 && (totalPages == 0 || p <= totalPages) {
			out = append(out, p)
		}
	}
	return out
}

func validChapters(chapters []string) []string {
	var out []string
	for _, c := range chapters {
		c = strings.TrimSpace(c)
		if c != "" && !strings.ContainsAny(c, `"`) {
			out = append(out, c)
		}
	}
	return out
}

func validImages(nums []int, totalImages int) []int {
	var out []int
	for _, n := range nums {
		if n >= 1 && (totalImages == 0 || n <= totalImages) {
			out = append(out, n)
		}
	}
	return out
}

// validTypeFile accepts only the document's own base type or its
// image-derived variant; summary records never live in documents.
func validTypeFile(typeFile string, entry catalogEntry) string {
	typeFile = strings.TrimSpace(typeFile)
	if typeFile == "" {
		return ""
	}
	base := strings.TrimPrefix(entry.FileType, "summary_")
	if typeFile == base || typeFile == "image_"+base {
		return typeFile
	}
	return ""
}
