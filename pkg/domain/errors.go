package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrFileNotFound        = errors.New("file not found")
	ErrNotAFile            = errors.New("path is not a file")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrEmbeddingFailed     = errors.New("embedding generation failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrChunkLossExceeded   = errors.New("chunk embedding loss exceeded threshold")
	ErrGenerationFailed    = errors.New("text generation failed")
	ErrVectorStoreFailed   = errors.New("vector store operation failed")
	ErrFilterSyntax        = errors.New("invalid filter expression")
	ErrConfigurationError  = errors.New("configuration error")
	ErrDocumentExists      = errors.New("document already ingested")
)
