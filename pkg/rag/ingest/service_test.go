package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe/ragpipe/pkg/chunker"
	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/embedder"
	"github.com/ragpipe/ragpipe/pkg/extract"
)

type fakeExtractor struct {
	results map[string]*domain.ExtractionResult
	folder  *extract.FolderResult
}

func (f *fakeExtractor) File(ctx context.Context, path string, extractImages bool) (*domain.ExtractionResult, error) {
	result, ok := f.results[path]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	return result, nil
}

func (f *fakeExtractor) Folder(ctx context.Context, dir string, extractImages bool, workers int) (*extract.FolderResult, error) {
	if f.folder == nil {
		return nil, domain.ErrFileNotFound
	}
	return f.folder, nil
}

type insertCall struct {
	partition string
	records   []domain.Record
}

type fakeStore struct {
	inserts    []insertCall
	counts     map[string]int
	deleted    []string
	partitions []string
	insertErr  error
}

func (f *fakeStore) EnsureCollection(ctx context.Context, dimensions int) error { return nil }

func (f *fakeStore) EnsurePartition(ctx context.Context, name string) error {
	f.partitions = append(f.partitions, name)
	return nil
}

func (f *fakeStore) InsertPrepared(ctx context.Context, records []domain.Record, partition string) error {
	if f.insertErr != nil && partition == domain.PartitionSummaries {
		return f.insertErr
	}
	f.inserts = append(f.inserts, insertCall{partition, records})
	return nil
}

func (f *fakeStore) Search(ctx context.Context, vector []float64, limit int, partition, filterExpr string) ([]domain.SearchHit, error) {
	return nil, nil
}

func (f *fakeStore) SearchByPartition(ctx context.Context, vector []float64, partition string, limit int) ([]domain.SearchHit, error) {
	return nil, nil
}

func (f *fakeStore) ScrollPartition(ctx context.Context, partition string, limit int) ([]domain.SearchHit, error) {
	return nil, nil
}

func (f *fakeStore) CountByFileID(ctx context.Context, fileID string) (int, error) {
	return f.counts[fileID], nil
}

func (f *fakeStore) DeleteByFileID(ctx context.Context, fileID string) error {
	f.deleted = append(f.deleted, fileID)
	return nil
}

func (f *fakeStore) Close() error { return nil }

// fakeEmbedder fails for texts containing the fail marker.
type fakeEmbedder struct{ failOn string }

func (f fakeEmbedder) Embed(ctx context.Context, text string) (*domain.Embedding, error) {
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, domain.ErrEmbeddingFailed
	}
	return &domain.Embedding{Vector: []float64{0.1, 0.2, 0.3}}, nil
}

func (fakeEmbedder) Dimensions() int { return 3 }

func (fakeEmbedder) Config() domain.EmbedderConfig { return domain.EmbedderConfig{} }

type fakeTextLLM struct {
	reply string
	err   error
}

func (f *fakeTextLLM) Generate(ctx context.Context, req domain.TextRequest) (string, error) {
	return f.reply, f.err
}

type fakeVisionLLM struct{ failImage string }

func (f *fakeVisionLLM) Describe(ctx context.Context, req domain.VisionRequest) (string, error) {
	if f.failImage != "" && req.Images[0] == f.failImage {
		return "", domain.ErrGenerationFailed
	}
	return "an illustration", nil
}

func textExtraction(name, content string) *domain.ExtractionResult {
	return &domain.ExtractionResult{
		Content: []string{content},
		Metadata: domain.DocumentMetadata{
			FileName:   name,
			FileType:   "txt",
			TotalPages: 1,
		},
	}
}

func newService(t *testing.T, ex Extractor, vs domain.VectorStore, text domain.TextLLM, vision domain.VisionLLM, opts Options) *Service {
	t.Helper()
	ch, err := chunker.New(chunker.Options{ChunkSize: 1000, Overlap: 100})
	require.NoError(t, err)
	emb, err := embedder.New(fakeEmbedder{}, embedder.Options{RetryDelay: -1})
	require.NoError(t, err)
	svc, err := New(ex, ch, emb, vs, text, vision, opts)
	require.NoError(t, err)
	return svc
}

func TestIngestFileSmallText(t *testing.T) {
	ex := &fakeExtractor{results: map[string]*domain.ExtractionResult{
		"a.txt": textExtraction("a.txt", "Hello world."),
	}}
	vs := &fakeStore{}
	svc := newService(t, ex, vs, &fakeTextLLM{reply: "A greeting."}, nil, Options{})

	result, err := svc.IngestFile(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.DocumentID("a.txt"), result.Info.FileID)
	assert.Equal(t, "a.txt", result.Info.FileName)

	require.Len(t, vs.inserts, 2)
	assert.Equal(t, domain.PartitionDocuments, vs.inserts[0].partition)
	assert.Equal(t, domain.PartitionSummaries, vs.inserts[1].partition)

	require.Len(t, vs.inserts[0].records, 1)
	chunk := vs.inserts[0].records[0].Payload
	assert.Equal(t, result.Info.FileID, chunk["file_id"])
	assert.Equal(t, "Hello world.", chunk["text"])
	assert.Equal(t, "1", chunk["pages"])
	assert.Equal(t, "", chunk["chapters"])
	assert.Equal(t, "txt", chunk["file_type"])

	require.Len(t, vs.inserts[1].records, 1)
	summary := vs.inserts[1].records[0].Payload
	assert.Equal(t, "A greeting.", summary["text"])
	assert.Equal(t, "summary_txt", summary["file_type"])
	assert.Equal(t, "summary_a.txt", summary["file_name"])
	assert.Equal(t, 1, summary["total_pages"])
}

func TestIngestFileSummaryFailureIsPartialSuccess(t *testing.T) {
	ex := &fakeExtractor{results: map[string]*domain.ExtractionResult{
		"a.txt": textExtraction("a.txt", "Hello world."),
	}}
	vs := &fakeStore{}
	svc := newService(t, ex, vs, &fakeTextLLM{err: domain.ErrGenerationFailed}, nil, Options{})

	result, err := svc.IngestFile(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "summary failed")

	// Chunks stay committed, no summary record.
	require.Len(t, vs.inserts, 1)
	assert.Equal(t, domain.PartitionDocuments, vs.inserts[0].partition)
}

func TestIngestFileSummaryInsertFailureIsPartialSuccess(t *testing.T) {
	ex := &fakeExtractor{results: map[string]*domain.ExtractionResult{
		"a.txt": textExtraction("a.txt", "Hello world."),
	}}
	vs := &fakeStore{insertErr: domain.ErrVectorStoreFailed}
	svc := newService(t, ex, vs, &fakeTextLLM{reply: "A greeting."}, nil, Options{})

	result, err := svc.IngestFile(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "summary failed")
}

func TestIngestFileExtractionFailure(t *testing.T) {
	svc := newService(t, &fakeExtractor{}, &fakeStore{}, &fakeTextLLM{reply: "x"}, nil, Options{})

	result, err := svc.IngestFile(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
	assert.False(t, result.Success)
	assert.Equal(t, "missing.txt", result.Info.FilePath)
}

func TestIngestFileReingestFail(t *testing.T) {
	ex := &fakeExtractor{results: map[string]*domain.ExtractionResult{
		"a.txt": textExtraction("a.txt", "Hello world."),
	}}
	vs := &fakeStore{counts: map[string]int{domain.DocumentID("a.txt"): 3}}
	svc := newService(t, ex, vs, &fakeTextLLM{reply: "x"}, nil, Options{OnReingest: ReingestFail})

	result, err := svc.IngestFile(context.Background(), "a.txt")
	assert.ErrorIs(t, err, domain.ErrDocumentExists)
	assert.False(t, result.Success)
	assert.Empty(t, vs.inserts)
}

func TestIngestFileReingestReplace(t *testing.T) {
	fileID := domain.DocumentID("a.txt")
	ex := &fakeExtractor{results: map[string]*domain.ExtractionResult{
		"a.txt": textExtraction("a.txt", "Hello world."),
	}}
	vs := &fakeStore{counts: map[string]int{fileID: 3}}
	svc := newService(t, ex, vs, &fakeTextLLM{reply: "x"}, nil, Options{OnReingest: ReingestReplace})

	result, err := svc.IngestFile(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{fileID}, vs.deleted)
	require.Len(t, vs.inserts, 2)
}

func TestIngestFileImages(t *testing.T) {
	extraction := textExtraction("doc.pdf", "Page text.")
	extraction.Metadata.FileType = "pdf"
	extraction.Metadata.TotalImages = 2
	extraction.Images = []domain.ImageData{
		{Page: 1, NumberInPage: 1, Number: 1, Base64: "imgA", Format: "png"},
		{Page: 1, NumberInPage: 2, Number: 2, Base64: "imgB", Format: "png"},
	}
	ex := &fakeExtractor{results: map[string]*domain.ExtractionResult{"doc.pdf": extraction}}
	vs := &fakeStore{}
	vision := &fakeVisionLLM{failImage: "imgB"}
	svc := newService(t, ex, vs, &fakeTextLLM{reply: "x"}, vision, Options{
		ExtractImages:  true,
		DescribeImages: true,
	})

	result, err := svc.IngestFile(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.True(t, result.Success)

	// chunks, images, summary
	require.Len(t, vs.inserts, 3)
	imageInsert := vs.inserts[1]
	assert.Equal(t, domain.PartitionDocuments, imageInsert.partition)
	require.Len(t, imageInsert.records, 1) // the failing image was skipped

	payload := imageInsert.records[0].Payload
	assert.Equal(t, "image_pdf", payload["file_type"])
	assert.Equal(t, "an illustration", payload["text"])
	assert.Equal(t, 1, payload["image_number"])
	assert.Equal(t, "1", payload["pages"])
}

func TestIngestFolder(t *testing.T) {
	ex := &fakeExtractor{folder: &extract.FolderResult{
		Results: map[string]*domain.ExtractionResult{
			"/docs/b.txt": textExtraction("b.txt", "Beta."),
			"/docs/a.txt": textExtraction("a.txt", "Alpha."),
		},
		Failures: map[string]error{
			"/docs/c.pdf": errors.New("parser exploded"),
		},
	}}
	vs := &fakeStore{}
	svc := newService(t, ex, vs, &fakeTextLLM{reply: "x"}, nil, Options{})

	results, err := svc.IngestFolder(context.Background(), "/docs")
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Sorted by path: a, b succeed, c carries its extraction error.
	assert.True(t, results[0].Success)
	assert.Equal(t, "/docs/a.txt", results[0].Info.FilePath)
	assert.True(t, results[1].Success)
	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Message, "parser exploded")
}

func TestNewValidation(t *testing.T) {
	ex := &fakeExtractor{}
	vs := &fakeStore{}
	ch, err := chunker.New(chunker.Options{ChunkSize: 1000})
	require.NoError(t, err)
	emb, err := embedder.New(fakeEmbedder{}, embedder.Options{RetryDelay: -1})
	require.NoError(t, err)

	_, err = New(nil, ch, emb, vs, &fakeTextLLM{}, nil, Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(ex, ch, emb, vs, nil, nil, Options{})
	assert.ErrorIs(t, err, domain.ErrConfigurationError)

	_, err = New(ex, ch, emb, vs, &fakeTextLLM{}, nil, Options{DescribeImages: true})
	assert.ErrorIs(t, err, domain.ErrConfigurationError)

	_, err = New(ex, ch, emb, vs, &fakeTextLLM{}, nil, Options{OnReingest: "merge"})
	assert.ErrorIs(t, err, domain.ErrConfigurationError)
}
