package frames

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fogleman/gg"
)

const maxWorkers = 4

// FramePattern names exported frames; numbering starts at 1
const FramePattern = "frame_%04d.png"

type exportItem struct {
	index int
	path  string
}

// Export writes every frame of b as a PNG into dir and returns the file paths in frame order
func Export(ctx context.Context, b *Batch, dir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", dir, err)
	}

	n := b.Len()
	paths := make([]string, n)
	work := make(chan exportItem, n)
	errs := make(chan error, n+maxWorkers)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf(FramePattern, i+1))
		work <- exportItem{index: i, path: paths[i]}
	}
	close(work)

	var wg sync.WaitGroup
	for w := 0; w < min(maxWorkers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				if err := ctx.Err(); err != nil {
					errs <- err
					return
				}
				if err := gg.SavePNG(item.path, b.Frame(item.index)); err != nil {
					errs <- fmt.Errorf("frame %d/%d failed: %w", item.index+1, n, err)
					continue
				}
				logger.Debug("exported frame", "path", item.path)
			}
		}()
	}
	wg.Wait()
	close(errs)

	var messages []string
	for err := range errs {
		messages = append(messages, err.Error())
	}
	if len(messages) > 0 {
		return nil, fmt.Errorf("encountered errors during export: %s", strings.Join(messages, "; "))
	}
	logger.Info("exported frames", "count", n, "dir", dir)
	return paths, nil
}
