// Package extract is the façade over format-specific document extractors.
// The set of supported formats is closed; unsupported paths fail fast with
// a typed error.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

// Facade routes extraction requests to the extractor registered for the
// file's extension.
type Facade struct {
	byExt map[string]domain.Extractor
}

// New builds a façade with the default extractor set (PDF, plain text,
// markdown).
func New() *Facade {
	f := &Facade{byExt: make(map[string]domain.Extractor)}
	f.register(&PDFExtractor{})
	f.register(&TextExtractor{})
	return f
}

func (f *Facade) register(e domain.Extractor) {
	for _, ext := range e.Extensions() {
		f.byExt[ext] = e
	}
}

// Supported reports whether the path's extension has a registered extractor.
func (f *Facade) Supported(path string) bool {
	_, ok := f.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// File extracts a single file. Errors are typed: ErrFileNotFound,
// ErrNotAFile, ErrUnsupportedFileType, or ErrExtractionFailed wrapping the
// parser failure with file context.
func (f *Facade) File(ctx context.Context, path string, extractImages bool) (*domain.ExtractionResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtractionFailed, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotAFile, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	extractor, ok := f.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, ext)
	}

	result, err := extractor.Extract(ctx, path, extractImages)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtractionFailed, path, err)
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("%w: %s: no content extracted", domain.ErrExtractionFailed, path)
	}
	return result, nil
}
