package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	pdf "github.com/dslipak/pdf"

	"github.com/ragpipe/ragpipe/pkg/chunker"
	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/log"
)

// PDFExtractor reads PDF files page by page. The underlying reader exposes
// text only, so Images stays nil regardless of extractImages.
type PDFExtractor struct{}

func (e *PDFExtractor) Extensions() []string {
	return []string{".pdf"}
}

func (e *PDFExtractor) Extract(ctx context.Context, path string, extractImages bool) (*domain.ExtractionResult, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := r.NumPage()
	pages := make([]string, 0, totalPages)
	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			log.Warn("failed to extract page text", "path", path, "page", i, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	if extractImages {
		log.Debug("image extraction not supported by the PDF reader", "path", path)
	}

	return &domain.ExtractionResult{
		Content: pages,
		Metadata: domain.DocumentMetadata{
			FileName:    filepath.Base(path),
			FileType:    "pdf",
			TotalPages:  totalPages,
			TotalImages: 0,
			HasChapters: hasChapters(pages),
		},
	}, nil
}

// hasChapters reports whether any line of the document matches the default
// chapter heading rule.
func hasChapters(pages []string) bool {
	policy := chunker.DefaultChapterPolicy{}
	for _, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			if _, ok := policy.Heading(line); ok {
				return true
			}
		}
	}
	return false
}
