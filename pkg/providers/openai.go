// Package providers holds the OpenAI-compatible implementations of the
// embedding, text LLM and vision LLM interfaces.
package providers

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/pkoukk/tiktoken-go"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

// embeddingDimensions is the closed table of supported embedding models.
// Unknown models fail at construction, never at call time.
var embeddingDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// clientOptions translates the shared provider config into request options
// common to all three clients.
func clientOptions(cfg domain.OpenAIConfig) []option.RequestOption {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return opts
}

// EmbeddingDimensions returns the declared vector size for a supported
// model.
func EmbeddingDimensions(model string) (int, error) {
	d, ok := embeddingDimensions[model]
	if !ok {
		return 0, fmt.Errorf("%w: unknown embedding model %q", domain.ErrConfigurationError, model)
	}
	return d, nil
}

// OpenAIEmbedder implements domain.Embedder against an OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	client     openai.Client
	cfg        domain.OpenAIConfig
	dimensions int
	encoding   *tiktoken.Tiktoken
}

// NewOpenAIEmbedder validates the model against the closed dimension table
// and builds a live client. Token counting is local via tiktoken; a missing
// encoding only disables counts.
func NewOpenAIEmbedder(cfg domain.OpenAIConfig) (*OpenAIEmbedder, error) {
	dims, err := EmbeddingDimensions(cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	encoding, err := tiktoken.EncodingForModel(cfg.EmbeddingModel)
	if err != nil {
		encoding, _ = tiktoken.GetEncoding("cl100k_base")
	}

	return &OpenAIEmbedder{
		client:     openai.NewClient(clientOptions(cfg)...),
		cfg:        cfg,
		dimensions: dims,
		encoding:   encoding,
	}, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

func (e *OpenAIEmbedder) Config() domain.EmbedderConfig {
	cfg := e.cfg
	return domain.EmbedderConfig{OpenAI: &cfg}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (*domain.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.cfg.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, classifyEmbedError(err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding data returned", domain.ErrEmbeddingFailed)
	}

	vector := make([]float64, len(resp.Data[0].Embedding))
	copy(vector, resp.Data[0].Embedding)

	tokens := 0
	if e.encoding != nil {
		tokens = len(e.encoding.Encode(text, nil, nil))
	}

	return &domain.Embedding{Vector: vector, Tokens: tokens}, nil
}

// OpenAITextLLM implements domain.TextLLM over the chat completions API.
type OpenAITextLLM struct {
	client openai.Client
	model  string
}

func NewOpenAITextLLM(cfg domain.OpenAIConfig) (*OpenAITextLLM, error) {
	if cfg.LLMModel == "" {
		return nil, fmt.Errorf("%w: llm model is required", domain.ErrConfigurationError)
	}
	return &OpenAITextLLM{client: openai.NewClient(clientOptions(cfg)...), model: cfg.LLMModel}, nil
}

func (p *OpenAITextLLM) Generate(ctx context.Context, req domain.TextRequest) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	switch {
	case len(req.Messages) > 0:
		for _, msg := range req.Messages {
			switch msg.Role {
			case "system":
				messages = append(messages, openai.SystemMessage(msg.Content))
			case "assistant":
				messages = append(messages, openai.AssistantMessage(msg.Content))
			default:
				messages = append(messages, openai.UserMessage(msg.Content))
			}
		}
	case req.Prompt != "":
		messages = append(messages, openai.UserMessage(req.Prompt))
	default:
		return "", fmt.Errorf("%w: empty prompt", domain.ErrInvalidInput)
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if IsRateLimit(err) {
			return "", fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", domain.ErrGenerationFailed)
	}
	return completion.Choices[0].Message.Content, nil
}

// OpenAIVisionLLM implements domain.VisionLLM over the chat completions API
// with image content parts.
type OpenAIVisionLLM struct {
	client openai.Client
	model  string
}

func NewOpenAIVisionLLM(cfg domain.OpenAIConfig) (*OpenAIVisionLLM, error) {
	if cfg.VisionModel == "" {
		return nil, fmt.Errorf("%w: vision model is required", domain.ErrConfigurationError)
	}
	return &OpenAIVisionLLM{client: openai.NewClient(clientOptions(cfg)...), model: cfg.VisionModel}, nil
}

func (p *OpenAIVisionLLM) Describe(ctx context.Context, req domain.VisionRequest) (string, error) {
	if len(req.Images) == 0 {
		return "", fmt.Errorf("%w: no images provided", domain.ErrInvalidInput)
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
	}
	for _, img := range req.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: ImageDataURL(img),
		}))
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if IsRateLimit(err) {
			return "", fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", domain.ErrGenerationFailed)
	}
	return completion.Choices[0].Message.Content, nil
}

// ImageDataURL wraps a bare base64 payload as a PNG data URL. Payloads that
// already carry a data: prefix pass through untouched.
func ImageDataURL(image string) string {
	if strings.HasPrefix(image, "data:") {
		return image
	}
	return "data:image/png;base64," + image
}
