package ragpipe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/providers"
	"github.com/ragpipe/ragpipe/pkg/rag/search"
)

var (
	searchStrategy string
	searchLimit    int
	searchFilter   string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested documents",
	Long: `Embed the query and retrieve the best-matching chunks. The
selector strategies first ask the LLM which documents are worth
searching, based on the stored summaries.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		vectorStore, err := newStore()
		if err != nil {
			return fmt.Errorf("failed to create vector store: %w", err)
		}
		defer func() {
			if closeErr := vectorStore.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close vector store: %v\n", closeErr)
			}
		}()

		emb, err := providers.NewOpenAIEmbedder(providerConfig())
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}

		strategy := cfg.Search.Strategy
		if searchStrategy != "" {
			strategy = searchStrategy
		}

		var textLLM domain.TextLLM
		if strategy != search.StrategySimple && strategy != "" {
			textLLM, err = providers.NewOpenAITextLLM(providerConfig())
			if err != nil {
				return err
			}
		}

		engine, err := search.NewEngine(vectorStore, emb, textLLM, strategy)
		if err != nil {
			return err
		}

		limit := cfg.Search.Limit
		if searchLimit > 0 {
			limit = searchLimit
		}

		hits, err := engine.Search(context.Background(), query, search.Options{
			Limit:       limit,
			Filter:      searchFilter,
			MaxTokens:   cfg.Search.MaxTokens,
			Temperature: cfg.Search.Temperature,
		})
		if err != nil {
			return err
		}

		if len(hits) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for i, hit := range hits {
			fmt.Printf("%d. [%.4f] %s (pages %s)\n", i+1, hit.Score, hit.FileName, hit.Pages)
			fmt.Printf("   %s\n", hit.Text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchStrategy, "strategy", "", "search strategy: simple, selector or selector_metadata (default: from config)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results (default: from config)")
	searchCmd.Flags().StringVar(&searchFilter, "filter", "", `filter expression, e.g. 'type_file == "pdf" and pages in [1, 2]'`)
}
