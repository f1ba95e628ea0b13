package worker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool downloads the tasks of a single item with bounded concurrency
type Pool struct {
	size       int
	downloader *Downloader
	logger     *zap.Logger
}

// NewPool creates a new pool; size below one means sequential
func NewPool(size int, downloader *Downloader, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:       size,
		downloader: downloader,
		logger:     logger,
	}
}

// Run downloads every task and returns once all of them have settled. Results are
// in task order; the first failure cancels the remaining downloads and is returned.
func (p *Pool) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	results := make([]Result, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)

	for i, task := range tasks {
		g.Go(func() error {
			logger := p.logger.With(zap.String("page", task.Page), zap.String("filename", task.Filename))
			logger.Debug("Download started")

			result, err := p.downloader.Download(gctx, task)
			results[i] = result
			if err != nil {
				logger.Warn("Download failed", zap.Error(err))
				return err
			}

			logger.Debug("Download finished", zap.Int64("bytes", result.Bytes), zap.Bool("skipped", result.Skipped))
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
