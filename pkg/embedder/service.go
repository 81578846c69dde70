// Package embedder wraps a provider embedder with the two embedding
// policies of the pipeline: the all-or-nothing batch path used at search
// and summary time, and the loss-tolerant chunk path used at ingestion.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/log"
	"github.com/ragpipe/ragpipe/pkg/providers"
)

// Options tunes batching, retry and loss policy.
type Options struct {
	BatchSize  int
	MaxRetries int
	// RetryDelay is the pause between rate-limited attempts. Zero means
	// retry immediately; the configuration layer supplies the 15s default.
	RetryDelay        time.Duration
	MaxAcceptableLoss float64
	// Factory reconstructs an embedder from its serializable config inside
	// each batch worker. Defaults to the provider registry.
	Factory func(domain.EmbedderConfig) (domain.Embedder, error)
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.MaxAcceptableLoss <= 0 {
		o.MaxAcceptableLoss = 0.1
	}
	if o.Factory == nil {
		o.Factory = providers.NewEmbedder
	}
}

type Service struct {
	embedder domain.Embedder
	opts     Options
}

func New(embedder domain.Embedder, opts Options) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder cannot be nil", domain.ErrInvalidInput)
	}
	opts.applyDefaults()
	return &Service{embedder: embedder, opts: opts}, nil
}

// Dimensions exposes the fixed vector size of the configured model.
func (s *Service) Dimensions() int { return s.embedder.Dimensions() }

// Embed produces a single embedding. Empty or whitespace-only text is an
// input error.
func (s *Service) Embed(ctx context.Context, text string) (*domain.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}
	return s.embedWithRetry(ctx, s.embedder, text)
}

// EmbedBatch embeds texts and returns a result slice of the same length:
// nil at the positions of invalid (empty/whitespace) inputs, the embedding
// everywhere else. Valid texts are partitioned into batches and dispatched
// to one worker per batch; every worker rebuilds its own provider client
// from the serializable config. Any unrecoverable failure aborts the whole
// call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([]*domain.Embedding, error) {
	out := make([]*domain.Embedding, len(texts))

	var valid []int
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 {
		return out, nil
	}

	batches := partition(valid, s.opts.BatchSize)
	workers := len(batches)
	if max := runtime.GOMAXPROCS(0); workers > max {
		workers = max
	}

	cfg := s.embedder.Config()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, batch := range batches {
		g.Go(func() error {
			worker, err := s.opts.Factory(cfg)
			if err != nil {
				return fmt.Errorf("failed to construct worker embedder: %w", err)
			}
			for _, idx := range batch {
				embedding, err := s.embedWithRetry(gctx, worker, texts[idx])
				if err != nil {
					return fmt.Errorf("embedding text %d: %w", idx, err)
				}
				out[idx] = embedding
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedChunks is the loss-tolerant ingestion path: failed chunks are
// dropped until the cumulative failure fraction exceeds the configured
// maximum, at which point the whole operation aborts. It returns the
// surviving chunks together with their metadata and embeddings, in input
// order.
func (s *Service) EmbedChunks(ctx context.Context, chunks []string, metas []domain.ChunkMetadata) ([]string, []domain.ChunkMetadata, []*domain.Embedding, error) {
	if len(metas) != 0 && len(metas) != len(chunks) {
		return nil, nil, nil, fmt.Errorf("%w: %d chunks but %d metadata entries", domain.ErrInvalidInput, len(chunks), len(metas))
	}
	if len(chunks) == 0 {
		return nil, nil, nil, nil
	}

	var (
		keptChunks []string
		keptMetas  []domain.ChunkMetadata
		embeddings []*domain.Embedding
		failed     int
	)
	for i, chunk := range chunks {
		embedding, err := s.embedWithRetry(ctx, s.embedder, chunk)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, nil, nil, err
			}
			failed++
			log.Warn("chunk embedding failed, dropping chunk", "index", i, "error", err)
			if loss := float64(failed) / float64(len(chunks)); loss > s.opts.MaxAcceptableLoss {
				return nil, nil, nil, fmt.Errorf("%w: %.0f%% of %d chunks failed",
					domain.ErrChunkLossExceeded, loss*100, len(chunks))
			}
			continue
		}
		keptChunks = append(keptChunks, chunk)
		if len(metas) > 0 {
			keptMetas = append(keptMetas, metas[i])
		}
		embeddings = append(embeddings, embedding)
	}
	return keptChunks, keptMetas, embeddings, nil
}

// embedWithRetry retries rate-limited calls with a fixed delay; any other
// error is fatal immediately.
func (s *Service) embedWithRetry(ctx context.Context, embedder domain.Embedder, text string) (*domain.Embedding, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, s.opts.RetryDelay); err != nil {
				return nil, err
			}
		}
		embedding, err := embedder.Embed(ctx, text)
		if err == nil {
			return embedding, nil
		}
		if !errors.Is(err, domain.ErrRateLimited) {
			return nil, err
		}
		lastErr = err
		log.Warn("embedding rate limited, backing off",
			"attempt", attempt+1, "max_retries", s.opts.MaxRetries, "delay", s.opts.RetryDelay)
	}
	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func partition(indices []int, size int) [][]int {
	var batches [][]int
	for start := 0; start < len(indices); start += size {
		end := start + size
		if end > len(indices) {
			end = len(indices)
		}
		batches = append(batches, indices[start:end])
	}
	return batches
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
