package providers

import (
	"fmt"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

// NewEmbedder turns a serializable embedder configuration into a live
// instance. Workers call this so that every worker owns its own provider
// client.
func NewEmbedder(cfg domain.EmbedderConfig) (domain.Embedder, error) {
	switch {
	case cfg.OpenAI != nil:
		return NewOpenAIEmbedder(*cfg.OpenAI)
	default:
		return nil, fmt.Errorf("%w: no embedder provider configured", domain.ErrConfigurationError)
	}
}
