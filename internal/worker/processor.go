package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"lascrawl/internal/fetch"
	"lascrawl/internal/metrics"
	"lascrawl/internal/storage"

	"go.uber.org/zap"
)

const defaultChunkSize = 1024

// Downloader streams remote files to disk
type Downloader struct {
	config  Config
	fetcher fetch.Client
	sink    storage.Sink
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewDownloader creates a new downloader. sink may be nil.
func NewDownloader(config Config, fetcher fetch.Client, sink storage.Sink, metricsCollector *metrics.Collector, logger *zap.Logger) *Downloader {
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultChunkSize
	}
	return &Downloader{
		config:  config,
		fetcher: fetcher,
		sink:    sink,
		metrics: metricsCollector,
		logger:  logger,
	}
}

// Download fetches task.URL into task.Dest, overwriting any existing file unless
// SkipExisting is set. Error responses are never written. A failed transfer may
// leave a truncated file behind.
func (d *Downloader) Download(ctx context.Context, task Task) (Result, error) {
	result := Result{Filename: task.Filename, Path: task.Dest}

	if d.config.SkipExisting {
		if info, err := os.Stat(task.Dest); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			d.logger.Debug("Skipping existing file", zap.String("path", task.Dest))
			result.Skipped = true
			result.Bytes = info.Size()
			return result, nil
		}
	}

	d.metrics.DownloadStarted()
	defer d.metrics.DownloadFinished()

	resp, err := d.fetcher.Get(ctx, task.URL)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return result, &fetch.Error{
			Kind: fetch.ConnectionError,
			URL:  task.URL,
			Err:  fmt.Errorf("server returned %d", resp.StatusCode),
		}
	}

	written, err := writeChunks(task.Dest, resp.Body, d.config.ChunkSize)
	result.Bytes = written
	if err != nil {
		return result, err
	}

	d.metrics.AddFile(written)

	if d.sink != nil {
		if err := d.sink.Put(ctx, task.Dest, task.Filename); err != nil {
			d.logger.Warn("Failed to mirror file", zap.String("path", task.Dest), zap.Error(err))
		}
	}

	return result, nil
}

// writeChunks copies r into a freshly created file at path, chunk bytes at a time.
// Read errors are returned unwrapped.
func writeChunks(path string, r io.Reader, chunk int) (written int64, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, closeErr)
		}
	}()

	buf := make([]byte, chunk)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write %s: %w", path, err)
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
