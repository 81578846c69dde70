package domain

import (
	"context"
	"time"
)

// ExtractionResult is the data contract every format extractor produces.
// Content holds one entry per page; index+1 is the 1-based page number.
// Images is nil when image extraction was not requested or the extractor
// does not support it.
type ExtractionResult struct {
	Content  []string         `json:"content"`
	Images   []ImageData      `json:"images,omitempty"`
	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentMetadata describes the source file. TotalPages, TotalImages and
// HasChapters are only meaningful for paginated formats.
type DocumentMetadata struct {
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	TotalPages  int    `json:"total_pages,omitempty"`
	TotalImages int    `json:"total_images,omitempty"`
	HasChapters bool   `json:"chapters,omitempty"`
}

// ImageData is a single image lifted out of a document. Number is the
// document-wide ordinal (strictly monotonic in traversal order),
// NumberInPage restarts at 1 on every page.
type ImageData struct {
	Page         int    `json:"page"`
	NumberInPage int    `json:"image_number_in_page"`
	Number       int    `json:"image_number"`
	Base64       string `json:"image_base64"`
	Format       string `json:"image_format"`
}

// ChunkMetadata is the structured per-chunk metadata emitted by the chunker.
// It is flattened to the comma-joined wire form only when records are
// prepared for insertion.
type ChunkMetadata struct {
	Pages    []int    `json:"pages"`
	Chapters []string `json:"chapters"`
}

// Embedding is the result of a single embedding call. Tokens is zero when
// the provider cannot report a count.
type Embedding struct {
	Vector []float64 `json:"vector"`
	Tokens int       `json:"tokens,omitempty"`
}

// Record is a fully prepared row for the vector store: the insert path
// performs no further transformation on it.
type Record struct {
	Vector  []float64
	Payload map[string]interface{}
}

// Partition names inside a collection. Chunk and image records live in
// documents; one summary record per document lives in summaries.
const (
	PartitionDocuments = "documents"
	PartitionSummaries = "summaries"
)

// SearchHit is one ranked result from a similarity search.
type SearchHit struct {
	ID       string
	Score    float64
	Text     string
	FileID   string
	FileName string
	FileType string
	Pages    string
	Chapters string
	Payload  map[string]interface{}
}

// IngestInfo identifies the document an ingestion touched.
type IngestInfo struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
}

// IngestResult is the user-visible outcome of a single-file ingestion.
// Success with a non-empty warning message signals a partial success
// (chunks committed, summary failed).
type IngestResult struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Info    IngestInfo `json:"info"`
}

// Extractor turns a source file into an ExtractionResult.
type Extractor interface {
	Extract(ctx context.Context, path string, extractImages bool) (*ExtractionResult, error)
	// Extensions lists the lower-case file extensions this extractor accepts.
	Extensions() []string
}

// Embedder produces dense vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) (*Embedding, error)
	// Dimensions is a property of the configured model, known without a call.
	Dimensions() int
	// Config returns a serializable description sufficient to reconstruct
	// an equivalent embedder inside a worker. Live clients never cross
	// worker boundaries.
	Config() EmbedderConfig
}

// EmbedderConfig is the closed sum of provider configurations. Exactly one
// variant is set.
type EmbedderConfig struct {
	OpenAI *OpenAIConfig `json:"openai,omitempty"`
}

// OpenAIConfig configures an OpenAI-compatible provider endpoint.
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	LLMModel       string `json:"llm_model,omitempty"`
	VisionModel    string `json:"vision_model,omitempty"`
	// Timeout bounds each provider request; zero leaves the client default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// TextRequest is a chat-style text generation request. Either Prompt or
// Messages is set; SystemPrompt is optional.
type TextRequest struct {
	SystemPrompt string
	Prompt       string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// VisionRequest asks a vision model to describe images. Images are base64
// payloads or full data URLs; bare payloads are wrapped as PNG data URLs.
type VisionRequest struct {
	Prompt      string
	Images      []string
	MaxTokens   int
	Temperature float64
}

// TextLLM is a chat-style text model.
type TextLLM interface {
	Generate(ctx context.Context, req TextRequest) (string, error)
}

// VisionLLM is a chat-style model that accepts images.
type VisionLLM interface {
	Describe(ctx context.Context, req VisionRequest) (string, error)
}

// VectorStore is the client abstraction over the vector database. All
// ensure-operations are idempotent with respect to "already exists".
type VectorStore interface {
	EnsureCollection(ctx context.Context, dimensions int) error
	EnsurePartition(ctx context.Context, name string) error
	InsertPrepared(ctx context.Context, records []Record, partition string) error
	Search(ctx context.Context, vector []float64, limit int, partition, filterExpr string) ([]SearchHit, error)
	SearchByPartition(ctx context.Context, vector []float64, partition string, limit int) ([]SearchHit, error)
	// ScrollPartition reads records without a query vector, up to limit.
	ScrollPartition(ctx context.Context, partition string, limit int) ([]SearchHit, error)
	CountByFileID(ctx context.Context, fileID string) (int, error)
	DeleteByFileID(ctx context.Context, fileID string) error
	Close() error
}
