// Package ingest composes the end-to-end ingestion path: extraction,
// chunking, embedding and vector-store commits for chunks, image
// descriptions and a per-document summary.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/embedder"
	"github.com/ragpipe/ragpipe/pkg/extract"
	"github.com/ragpipe/ragpipe/pkg/log"
)

// Re-ingest policies for paths whose document id is already stored.
const (
	ReingestDuplicate = "duplicate"
	ReingestFail      = "fail"
	ReingestReplace   = "replace"
)

const summarySystemPrompt = `You summarize documents for a retrieval catalog.
Write a dense summary of the document below: its topic, structure and the
questions it can answer. A few sentences, no preamble.`

const describeImagePrompt = `Describe this image for retrieval: what it shows,
any visible text, and what it illustrates. A few sentences, no preamble.`

// Extractor is the slice of the extraction façade the orchestrator needs.
// *extract.Facade satisfies it.
type Extractor interface {
	File(ctx context.Context, path string, extractImages bool) (*domain.ExtractionResult, error)
	Folder(ctx context.Context, dir string, extractImages bool, workers int) (*extract.FolderResult, error)
}

// Chunker is satisfied by *chunker.Service.
type Chunker interface {
	ChunkPages(pages []string) ([]string, []domain.ChunkMetadata, error)
}

// Options control a Service's ingestion behavior.
type Options struct {
	ExtractImages  bool
	DescribeImages bool
	Workers        int
	OnReingest     string
}

type Service struct {
	extractor Extractor
	chunker   Chunker
	embedder  *embedder.Service
	store     domain.VectorStore
	textLLM   domain.TextLLM
	visionLLM domain.VisionLLM
	opts      Options
	logger    *slog.Logger
}

// New wires the ingestion orchestrator. The text LLM is required (it
// writes summaries); the vision LLM is only required when DescribeImages
// is set.
func New(ex Extractor, ch Chunker, emb *embedder.Service, vs domain.VectorStore, textLLM domain.TextLLM, visionLLM domain.VisionLLM, opts Options) (*Service, error) {
	if ex == nil || ch == nil || emb == nil || vs == nil {
		return nil, fmt.Errorf("%w: extractor, chunker, embedder and store are required", domain.ErrInvalidInput)
	}
	if textLLM == nil {
		return nil, fmt.Errorf("%w: a text LLM is required for summaries", domain.ErrConfigurationError)
	}
	if opts.DescribeImages && visionLLM == nil {
		return nil, fmt.Errorf("%w: describing images requires a vision LLM", domain.ErrConfigurationError)
	}
	switch opts.OnReingest {
	case "":
		opts.OnReingest = ReingestDuplicate
	case ReingestDuplicate, ReingestFail, ReingestReplace:
	default:
		return nil, fmt.Errorf("%w: unknown re-ingest policy %q", domain.ErrConfigurationError, opts.OnReingest)
	}
	return &Service{
		extractor: ex,
		chunker:   ch,
		embedder:  emb,
		store:     vs,
		textLLM:   textLLM,
		visionLLM: visionLLM,
		opts:      opts,
		logger:    log.WithModule("ingest"),
	}, nil
}

// IngestFile runs the full pipeline for one file. A summary failure after
// the chunks are committed is reported as a success with a warning
// message; the chunks stay in the store.
func (s *Service) IngestFile(ctx context.Context, path string) (domain.IngestResult, error) {
	fileID := domain.DocumentID(path)

	if err := s.applyReingestPolicy(ctx, fileID); err != nil {
		return failure(fileID, path, err), err
	}

	extraction, err := s.extractor.File(ctx, path, s.opts.ExtractImages)
	if err != nil {
		return failure(fileID, path, err), err
	}
	return s.ingestExtracted(ctx, fileID, path, extraction)
}

// IngestFolder extracts a directory in parallel and ingests each
// successfully extracted file sequentially. Per-file failures become
// failed results; they do not abort the batch.
func (s *Service) IngestFolder(ctx context.Context, dir string) ([]domain.IngestResult, error) {
	folder, err := s.extractor.Folder(ctx, dir, s.opts.ExtractImages, s.opts.Workers)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(folder.Results)+len(folder.Failures))
	for path := range folder.Results {
		paths = append(paths, path)
	}
	for path := range folder.Failures {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	results := make([]domain.IngestResult, 0, len(paths))
	for _, path := range paths {
		fileID := domain.DocumentID(path)
		if extractErr, failed := folder.Failures[path]; failed {
			results = append(results, failure(fileID, path, extractErr))
			continue
		}
		if err := s.applyReingestPolicy(ctx, fileID); err != nil {
			results = append(results, failure(fileID, path, err))
			continue
		}
		result, err := s.ingestExtracted(ctx, fileID, path, folder.Results[path])
		if err != nil {
			s.logger.Warn("ingestion failed", "path", path, "error", err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) applyReingestPolicy(ctx context.Context, fileID string) error {
	if s.opts.OnReingest == ReingestDuplicate {
		return nil
	}
	count, err := s.store.CountByFileID(ctx, fileID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	switch s.opts.OnReingest {
	case ReingestFail:
		return fmt.Errorf("%w: document %s already has %d records", domain.ErrDocumentExists, fileID, count)
	default: // ReingestReplace
		s.logger.Info("replacing existing document", "file_id", fileID, "records", count)
		return s.store.DeleteByFileID(ctx, fileID)
	}
}

func (s *Service) ingestExtracted(ctx context.Context, fileID, path string, extraction *domain.ExtractionResult) (domain.IngestResult, error) {
	date := ingestDate()
	doc := extraction.Metadata

	chunks, metas, err := s.chunker.ChunkPages(extraction.Content)
	if err != nil {
		return failure(fileID, path, err), err
	}

	keptChunks, keptMetas, embeddings, err := s.embedder.EmbedChunks(ctx, chunks, metas)
	if err != nil {
		return failure(fileID, path, err), err
	}

	if err := s.store.EnsureCollection(ctx, s.embedder.Dimensions()); err != nil {
		return failure(fileID, path, err), err
	}
	if err := s.store.EnsurePartition(ctx, domain.PartitionDocuments); err != nil {
		return failure(fileID, path, err), err
	}

	records := make([]domain.Record, len(keptChunks))
	for i, chunk := range keptChunks {
		records[i] = chunkRecord(fileID, doc, chunk, embeddings[i], keptMetas[i], date)
	}
	if err := s.store.InsertPrepared(ctx, records, domain.PartitionDocuments); err != nil {
		return failure(fileID, path, err), err
	}
	s.logger.Info("committed chunks", "file", doc.FileName, "chunks", len(records))

	s.ingestImages(ctx, fileID, doc, extraction.Images, date)

	if err := s.ingestSummary(ctx, fileID, doc, extraction.Content, date); err != nil {
		s.logger.Warn("summary failed, chunks stay committed", "file", doc.FileName, "error", err)
		return domain.IngestResult{
			Success: true,
			Message: fmt.Sprintf("ingested %d chunks; summary failed: %v", len(records), err),
			Info:    info(fileID, path, doc),
		}, nil
	}

	return domain.IngestResult{
		Success: true,
		Message: fmt.Sprintf("ingested %d chunks", len(records)),
		Info:    info(fileID, path, doc),
	}, nil
}

// ingestImages describes, embeds and stores image records. Every failure
// is skipped: a broken image never aborts its siblings or the document.
func (s *Service) ingestImages(ctx context.Context, fileID string, doc domain.DocumentMetadata, images []domain.ImageData, date string) {
	if !s.opts.DescribeImages || len(images) == 0 {
		return
	}

	var records []domain.Record
	for _, img := range images {
		if img.Base64 == "" {
			s.logger.Debug("skipping empty image", "file", doc.FileName, "image", img.Number)
			continue
		}
		description, err := s.visionLLM.Describe(ctx, domain.VisionRequest{
			Prompt: describeImagePrompt,
			Images: []string{img.Base64},
		})
		if err != nil {
			s.logger.Warn("image description failed, skipping", "file", doc.FileName, "image", img.Number, "error", err)
			continue
		}
		emb, err := s.embedder.Embed(ctx, description)
		if err != nil {
			s.logger.Warn("image embedding failed, skipping", "file", doc.FileName, "image", img.Number, "error", err)
			continue
		}
		records = append(records, imageRecord(fileID, doc, img, description, emb, date))
	}
	if len(records) == 0 {
		return
	}
	if err := s.store.InsertPrepared(ctx, records, domain.PartitionDocuments); err != nil {
		s.logger.Warn("image records not committed", "file", doc.FileName, "error", err)
		return
	}
	s.logger.Info("committed image records", "file", doc.FileName, "images", len(records))
}

func (s *Service) ingestSummary(ctx context.Context, fileID string, doc domain.DocumentMetadata, pages []string, date string) error {
	if err := s.store.EnsurePartition(ctx, domain.PartitionSummaries); err != nil {
		return err
	}

	summary, err := s.textLLM.Generate(ctx, domain.TextRequest{
		SystemPrompt: summarySystemPrompt,
		Prompt:       strings.Join(pages, "\n"),
	})
	if err != nil {
		return err
	}
	emb, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return err
	}
	return s.store.InsertPrepared(ctx, []domain.Record{
		summaryRecord(fileID, doc, summary, emb, date),
	}, domain.PartitionSummaries)
}

func info(fileID, path string, doc domain.DocumentMetadata) domain.IngestInfo {
	return domain.IngestInfo{FileID: fileID, FileName: doc.FileName, FilePath: path}
}

func failure(fileID, path string, err error) domain.IngestResult {
	return domain.IngestResult{
		Success: false,
		Message: err.Error(),
		Info:    domain.IngestInfo{FileID: fileID, FilePath: path},
	}
}
