// Package ragpipe holds the CLI commands: ingestion of files or folders
// into the vector store and strategy-driven search over it.
package ragpipe

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/pkg/config"
	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/embedder"
	"github.com/ragpipe/ragpipe/pkg/log"
	"github.com/ragpipe/ragpipe/pkg/providers"
	"github.com/ragpipe/ragpipe/pkg/rag/store"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	version = "dev"
)

var RootCmd = &cobra.Command{
	Use:   "ragpipe",
	Short: "ragpipe - document ingestion and retrieval over a vector store",
	Long: `ragpipe ingests documents (PDF, txt, Markdown) into a qdrant
collection - extraction, chunking, embeddings, image descriptions and a
per-document summary - and searches them with a configurable strategy.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		log.SetDebug(verbose)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func Execute() error {
	return RootCmd.Execute()
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
	RootCmd.Version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragpipe version %s\n", version)
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path (default: ./ragpipe.toml or ~/.ragpipe/ragpipe.toml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging output")

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(ingestCmd)
	RootCmd.AddCommand(searchCmd)
}

func providerConfig() domain.OpenAIConfig {
	return domain.OpenAIConfig{
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		EmbeddingModel: cfg.Provider.EmbeddingModel,
		LLMModel:       cfg.Provider.LLMModel,
		VisionModel:    cfg.Provider.VisionModel,
		Timeout:        cfg.Provider.Timeout,
	}
}

func newStore() (*store.QdrantStore, error) {
	return store.NewQdrantStore(store.Config{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		Database:   cfg.Qdrant.Database,
		Collection: cfg.Qdrant.Collection,
		Index:      cfg.Qdrant.Index,
	})
}

func newEmbedderService() (*embedder.Service, error) {
	emb, err := providers.NewOpenAIEmbedder(providerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder.New(emb, embedder.Options{
		BatchSize:         cfg.Embed.BatchSize,
		MaxRetries:        cfg.Embed.MaxRetries,
		RetryDelay:        cfg.Embed.RetryDelay,
		MaxAcceptableLoss: cfg.Embed.MaxAcceptableLoss,
	})
}
