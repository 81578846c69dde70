package providers

import (
	"fmt"
	"strings"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

// rateLimitMarkers are the textual fingerprints of a throttled provider
// response. Detection is by substring because OpenAI-compatible backends do
// not agree on structured error codes.
var rateLimitMarkers = []string{"429", "too many requests", "rate_limit"}

// IsRateLimit reports whether the error text identifies provider throttling.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// classifyEmbedError wraps a provider failure as retriable (ErrRateLimited)
// or fatal (ErrEmbeddingFailed).
func classifyEmbedError(err error) error {
	if IsRateLimit(err) {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrEmbeddingFailed, err)
}
