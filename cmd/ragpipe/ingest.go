package ragpipe

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/pkg/chunker"
	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/extract"
	"github.com/ragpipe/ragpipe/pkg/providers"
	"github.com/ragpipe/ragpipe/pkg/rag/ingest"
)

var (
	extractImages bool
	ingestWorkers int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|directory]",
	Short: "Ingest documents into the vector store",
	Long: `Extract, chunk, embed and store a document or a directory of
documents. Directories are extracted in parallel. With --images, images
found in PDFs are described by the vision model and stored alongside the
text chunks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		vectorStore, err := newStore()
		if err != nil {
			return fmt.Errorf("failed to create vector store: %w", err)
		}
		defer func() {
			if closeErr := vectorStore.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close vector store: %v\n", closeErr)
			}
		}()

		embedService, err := newEmbedderService()
		if err != nil {
			return err
		}

		chunkService, err := chunker.New(chunker.Options{
			ChunkSize:      cfg.Chunker.ChunkSize,
			Overlap:        cfg.Chunker.Overlap,
			DetectChapters: cfg.Chunker.DetectChapters,
		})
		if err != nil {
			return err
		}

		textLLM, err := providers.NewOpenAITextLLM(providerConfig())
		if err != nil {
			return err
		}

		images := cfg.Ingest.ExtractImages
		if cmd.Flags().Changed("images") {
			images = extractImages
		}
		describeImages := images && cfg.Ingest.DescribeImages
		var visionLLM domain.VisionLLM
		if describeImages {
			visionLLM, err = providers.NewOpenAIVisionLLM(providerConfig())
			if err != nil {
				return err
			}
		}

		service, err := ingest.New(extract.New(), chunkService, embedService, vectorStore, textLLM, visionLLM, ingest.Options{
			ExtractImages:  images,
			DescribeImages: describeImages,
			Workers:        ingestWorkers,
			OnReingest:     cfg.Ingest.OnReingest,
		})
		if err != nil {
			return err
		}

		ctx := context.Background()
		stat, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrFileNotFound, path)
		}

		if stat.IsDir() {
			results, err := service.IngestFolder(ctx, path)
			if err != nil {
				return err
			}
			failed := 0
			for _, result := range results {
				printResult(result)
				if !result.Success {
					failed++
				}
			}
			fmt.Printf("Ingested %d/%d files\n", len(results)-failed, len(results))
			return nil
		}

		result, err := service.IngestFile(ctx, path)
		printResult(result)
		return err
	},
}

func printResult(result domain.IngestResult) {
	status := "ok"
	if !result.Success {
		status = "failed"
	}
	fmt.Printf("[%s] %s: %s\n", status, result.Info.FilePath, result.Message)
}

func init() {
	ingestCmd.Flags().BoolVar(&extractImages, "images", false, "extract and describe images from documents")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "parallel extraction workers (default: number of CPUs)")
}
