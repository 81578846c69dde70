package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

// TextExtractor reads plain-text and markdown files as a single page.
// It never produces images.
type TextExtractor struct{}

func (e *TextExtractor) Extensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

func (e *TextExtractor) Extract(ctx context.Context, path string, extractImages bool) (*domain.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if fileType == "markdown" {
		fileType = "md"
	}

	return &domain.ExtractionResult{
		Content: []string{string(data)},
		Metadata: domain.DocumentMetadata{
			FileName:   filepath.Base(path),
			FileType:   fileType,
			TotalPages: 1,
		},
	}, nil
}
