// Package search implements query-time retrieval strategies over the
// vector store: a direct similarity search and two LLM-assisted
// document-selector variants.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/log"
	"github.com/ragpipe/ragpipe/pkg/rag/store"
)

const (
	StrategySimple           = "simple"
	StrategySelector         = "selector"
	StrategySelectorMetadata = "selector_metadata"
)

const (
	defaultLimit       = 5
	defaultMaxTokens   = 500
	defaultTemperature = 0.2
)

// Options tune one query. Zero values fall back to the defaults above;
// Filter is an optional expression in the store's filter grammar, applied
// on top of whatever the strategy builds.
type Options struct {
	Limit       int
	Filter      string
	MaxTokens   int
	Temperature float64
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = defaultTemperature
	}
	return o
}

// Engine runs one configured strategy against a store.
type Engine struct {
	store    domain.VectorStore
	embedder domain.Embedder
	llm      domain.TextLLM
	strategy string
	logger   *slog.Logger
}

// NewEngine validates the strategy against the closed set. The selector
// strategies need a text LLM; the simple strategy does not.
func NewEngine(vs domain.VectorStore, emb domain.Embedder, llm domain.TextLLM, strategy string) (*Engine, error) {
	if vs == nil || emb == nil {
		return nil, fmt.Errorf("%w: store and embedder are required", domain.ErrInvalidInput)
	}
	switch strategy {
	case "", StrategySimple:
		strategy = StrategySimple
	case StrategySelector, StrategySelectorMetadata:
		if llm == nil {
			return nil, fmt.Errorf("%w: strategy %s requires a text LLM", domain.ErrConfigurationError, strategy)
		}
	default:
		return nil, fmt.Errorf("%w: unknown search strategy %q", domain.ErrConfigurationError, strategy)
	}
	return &Engine{
		store:    vs,
		embedder: emb,
		llm:      llm,
		strategy: strategy,
		logger:   log.WithModule("search"),
	}, nil
}

// Search embeds the query and dispatches to the configured strategy,
// returning chunk hits ranked by descending score.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]domain.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidInput)
	}
	opts = opts.withDefaults()

	emb, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	switch e.strategy {
	case StrategySelector:
		return e.searchSelector(ctx, query, emb.Vector, opts, false)
	case StrategySelectorMetadata:
		return e.searchSelector(ctx, query, emb.Vector, opts, true)
	default:
		return e.store.Search(ctx, emb.Vector, opts.Limit, domain.PartitionDocuments, opts.Filter)
	}
}

// truncate caps a sorted hit list at limit.
func truncate(hits []domain.SearchHit, limit int) []domain.SearchHit {
	store.SortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
