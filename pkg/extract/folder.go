package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ragpipe/ragpipe/pkg/domain"
	"github.com/ragpipe/ragpipe/pkg/log"
)

// FolderResult collects the outcome of a folder-level extraction. Failed
// files never abort the batch; they are reported alongside the successes.
type FolderResult struct {
	Results  map[string]*domain.ExtractionResult
	Failures map[string]error
}

// Folder extracts every supported file directly inside dir, one worker per
// file bounded by workers (NumCPU when workers <= 0). Each worker hands its
// result back as a JSON intermediate so reconstruction is independent of
// worker memory.
func (f *Facade) Folder(ctx context.Context, dir string, extractImages bool, workers int) (*FolderResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtractionFailed, dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if f.Supported(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := &FolderResult{
		Results:  make(map[string]*domain.ExtractionResult, len(paths)),
		Failures: make(map[string]error),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range paths {
		g.Go(func() error {
			encoded, err := f.extractEncoded(gctx, path, extractImages)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("folder extraction: file failed", "path", path, "error", err)
				out.Failures[path] = err
				return nil
			}
			result := &domain.ExtractionResult{}
			if err := json.Unmarshal(encoded, result); err != nil {
				out.Failures[path] = fmt.Errorf("%w: %s: decoding worker result: %v", domain.ErrExtractionFailed, path, err)
				return nil
			}
			out.Results[path] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Facade) extractEncoded(ctx context.Context, path string, extractImages bool) ([]byte, error) {
	result, err := f.File(ctx, path, extractImages)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: encoding worker result: %v", domain.ErrExtractionFailed, path, err)
	}
	return encoded, nil
}
