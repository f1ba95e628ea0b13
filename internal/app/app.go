package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"lascrawl/internal/browser"
	"lascrawl/internal/checkpoint"
	"lascrawl/internal/config"
	"lascrawl/internal/crawl"
	"lascrawl/internal/fetch"
	"lascrawl/internal/ledger"
	"lascrawl/internal/metrics"
	"lascrawl/internal/progress"
	"lascrawl/internal/storage"
	"lascrawl/internal/worker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Crawler represents the main crawl application. It owns the worklist and the
// browsing session and processes items one at a time in index order.
type Crawler struct {
	cfg        *config.Config
	logger     *zap.Logger
	runID      string
	ledger     *ledger.Ledger
	driver     browser.Driver
	paginator  *crawl.Paginator
	classifier *crawl.Classifier
	workers    *worker.Pool
	journal    checkpoint.Store
	metrics    *metrics.Collector
	policy     ledger.RetryPolicy
	closeOnce  sync.Once
}

// collaborators are the parts of a Crawler that talk to the outside world
type collaborators struct {
	ledger  *ledger.Ledger
	driver  browser.Driver
	fetcher fetch.Client
	sink    storage.Sink
	journal checkpoint.Store
}

// New creates a new crawler instance
func New(cfg *config.Config, logger *zap.Logger) (*Crawler, error) {
	// Load worklist
	work, err := ledger.Load(cfg.Worklist.Path, ledger.LoadOptions{
		HeaderSearchRows: cfg.Worklist.HeaderSearchRows,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Create attempt journal
	var journal checkpoint.Store = checkpoint.NopStore{}
	if cfg.Journal.Path != "" {
		store, err := checkpoint.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create journal: %w", err)
		}
		journal = store
	}

	// Create mirror sink
	var sink storage.Sink
	mirror := storage.Config{
		Endpoint:  cfg.Mirror.Endpoint,
		AccessKey: cfg.Mirror.AccessKey,
		SecretKey: cfg.Mirror.SecretKey,
		Secure:    cfg.Mirror.Secure,
		Bucket:    cfg.Mirror.Bucket,
		Prefix:    cfg.Mirror.Prefix,
	}
	if mirror.Enabled() {
		minioSink, err := storage.NewMinIOSink(mirror)
		if err != nil {
			journal.Close()
			return nil, fmt.Errorf("failed to create mirror: %w", err)
		}
		sink = minioSink
	}

	fetcher := fetch.NewHTTPClient(fetch.Config{
		UserAgent:  cfg.Browser.UserAgent,
		Timeout:    cfg.HTTP.Timeout,
		MaxRetries: cfg.HTTP.MaxRetries,
		Backoff:    time.Duration(cfg.Crawl.RetryBackoffMs) * time.Millisecond,
	})

	opts := []browser.Option{browser.WithTimeout(cfg.Browser.Timeout)}
	if cfg.Browser.UserAgent != "" {
		opts = append(opts, browser.WithUserAgent(cfg.Browser.UserAgent))
	}
	driver := browser.NewHTMLDriver(opts...)

	return newCrawler(cfg, logger, collaborators{
		ledger:  work,
		driver:  driver,
		fetcher: fetcher,
		sink:    sink,
		journal: journal,
	}), nil
}

func newCrawler(cfg *config.Config, logger *zap.Logger, deps collaborators) *Crawler {
	metricsCollector := metrics.New()

	downloader := worker.NewDownloader(worker.Config{
		ChunkSize:    cfg.Crawl.ChunkSize,
		SkipExisting: cfg.Output.SkipExisting,
	}, deps.fetcher, deps.sink, metricsCollector, logger)

	scanner := crawl.NewScanner(deps.driver, deps.fetcher, logger)

	return &Crawler{
		cfg:        cfg,
		logger:     logger,
		runID:      uuid.NewString(),
		ledger:     deps.ledger,
		driver:     deps.driver,
		paginator:  crawl.NewPaginator(deps.driver, scanner, logger, metricsCollector.SetCurrentPage),
		classifier: crawl.NewClassifier(cfg.Classifier.Expected, cfg.Classifier.Denied),
		workers:    worker.NewPool(cfg.Crawl.DownloadConcurrency, downloader, logger),
		journal:    deps.journal,
		metrics:    metricsCollector,
		policy: ledger.RetryPolicy{
			MaxAttempts:        cfg.Crawl.MaxAttempts,
			MaxTimeoutAttempts: cfg.Crawl.MaxTimeoutAttempts,
		},
	}
}

// Run processes every pending or retryable item. The worklist is written after
// each item and once more when Run returns, whether it returns normally, with an
// error or by panicking.
func (c *Crawler) Run(ctx context.Context) (err error) {
	defer func() {
		if perr := c.ledger.Persist(); perr != nil {
			c.logger.Error("Failed to persist worklist", zap.Error(perr))
			if err == nil {
				err = perr
			}
		}
	}()

	summary := c.ledger.Summary()
	c.logger.Info("Starting crawl",
		zap.String("run_id", c.runID),
		zap.String("worklist", c.ledger.Path()),
		zap.Int("items", summary.Total),
		zap.Int("pending", summary.Counts[ledger.StatePending]),
		zap.Int("complete", summary.Counts[ledger.StateComplete]),
		zap.Int("error", summary.Counts[ledger.StateError]),
		zap.String("percent_complete", fmt.Sprintf("%.1f%%", summary.PercentComplete())),
	)

	if summary.Counts[ledger.StateUnrecognized] > 0 {
		for _, item := range c.ledger.Items() {
			if item.Status.State == ledger.StateUnrecognized {
				c.logger.Warn("Unrecognized status, item left untouched",
					zap.Int("index", item.Index),
					zap.String("identifier", item.Identifier),
					zap.String("status", item.Status.Detail),
				)
			}
		}
	}

	var items []ledger.WorkItem
	for _, item := range c.ledger.PendingOrRetryable(c.policy) {
		if item.Index >= c.cfg.Worklist.StartIndex {
			items = append(items, item)
		}
	}
	c.metrics.SetTotalItems(int64(len(items)))

	// Start metrics server in a goroutine with error handling
	if c.cfg.Metrics.Addr != "" {
		go func() {
			if err := c.metrics.StartServer(c.cfg.Metrics.Addr); err != nil {
				c.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	if c.cfg.ShowProgress && progress.IsTerminalSupported() {
		display := progress.NewDisplay(c.metrics.GetProgressTracker(), 2*time.Second)
		display.Start()
		defer display.Stop()
	}

	c.logger.Info("Items to process", zap.Int("count", len(items)), zap.Int("start_index", c.cfg.Worklist.StartIndex))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			c.logger.Info("Crawl interrupted", zap.Int("next_index", item.Index))
			return err
		}
		if err := c.processItem(ctx, item); err != nil {
			return err
		}
	}

	summary = c.ledger.Summary()
	c.logger.Info("Crawl completed",
		zap.Int("complete", summary.Counts[ledger.StateComplete]),
		zap.Int("error", summary.Counts[ledger.StateError]),
		zap.String("percent_complete", fmt.Sprintf("%.1f%%", summary.PercentComplete())),
	)
	return nil
}

// processItem attempts one item until it completes, fails with a kind that may not
// be retried, or exhausts that kind's attempts. Only Unhandled failures, persist
// failures and cancellation are returned.
func (c *Crawler) processItem(ctx context.Context, item ledger.WorkItem) error {
	logger := c.logger.With(
		zap.Int("index", item.Index),
		zap.String("api", item.Identifier),
	)

	// last recorded status; restored if an attempt never finishes
	status := item.Status
	defer func() {
		c.ledger.Update(item.Index, status)
	}()

	for attempt := 1; ; attempt++ {
		if err := c.ledger.Update(item.Index, ledger.InProgress(status)); err != nil {
			return err
		}

		logger.Info("Processing item", zap.String("url", item.SourceURL), zap.Int("attempt", attempt))
		started := time.Now()
		files, err := c.attempt(ctx, item)
		c.metrics.ObserveDuration(time.Since(started))

		record := &checkpoint.AttemptRecord{
			RunID:      c.runID,
			Index:      item.Index,
			SourceURL:  item.SourceURL,
			Identifier: item.Identifier,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}

		if err == nil {
			status = ledger.Complete(files)
			record.Outcome = checkpoint.OutcomeComplete
			record.Files = files
			c.metrics.IncComplete()
			if len(files) == 0 {
				logger.Info("No files found")
			} else {
				logger.Info("Item complete", zap.Strings("files", files))
			}
			return c.commit(item, status, record)
		}

		if ctx.Err() != nil {
			record.Outcome = checkpoint.OutcomeInterrupted
			record.Detail = err.Error()
			c.recordAttempt(record)
			return ctx.Err()
		}

		kind := classify(err)
		status = ledger.Failed(status, kind, err.Error())
		record.Outcome = checkpoint.OutcomeError
		record.Kind = string(kind)
		record.Attempt = status.AttemptCount()
		record.Detail = err.Error()

		if err := c.commit(item, status, record); err != nil {
			return err
		}

		if kind == ledger.KindUnhandled {
			c.metrics.IncFailed(string(kind))
			logger.Error("Unhandled failure, stopping crawl", zap.Error(err))
			return fmt.Errorf("item %d (%s): %w", item.Index, item.Identifier, err)
		}

		if !c.policy.Eligible(status) {
			c.metrics.IncFailed(string(kind))
			logger.Warn("Item failed, moving on",
				zap.String("kind", string(kind)),
				zap.Int("attempts", status.AttemptCount()),
				zap.Error(err),
			)
			return nil
		}

		backoff := c.calculateBackoff(status.AttemptCount())
		logger.Warn("Item failed, retrying",
			zap.String("kind", string(kind)),
			zap.Int("attempts", status.AttemptCount()),
			zap.Int("limit", c.policy.Limit(kind)),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// attempt navigates to the item, walks its sub-pages and downloads what the
// classifier retains. It returns the downloaded filenames in traversal order.
func (c *Crawler) attempt(ctx context.Context, item ledger.WorkItem) ([]string, error) {
	if c.cfg.Crawl.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Crawl.ItemTimeout)
		defer cancel()
	}

	if err := c.driver.Navigate(ctx, item.SourceURL); err != nil {
		return nil, err
	}

	candidates, err := c.paginator.Crawl(ctx, crawl.Target{
		Index:      item.Index,
		URL:        item.SourceURL,
		Identifier: item.Identifier,
	})
	if err != nil {
		return nil, err
	}

	tasks := c.plan(item, candidates)
	results, err := c.workers.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(results))
	for _, result := range results {
		files = append(files, result.Filename)
	}
	return files, nil
}

// plan turns candidates into download tasks. Rejected types are dropped, and a
// file offered on several rows is downloaded once.
func (c *Crawler) plan(item ledger.WorkItem, candidates []crawl.Candidate) []worker.Task {
	var tasks []worker.Task
	seen := make(map[string]bool)

	for _, candidate := range candidates {
		verdict := c.classifier.Classify(candidate.Filename)
		c.metrics.IncCandidate(verdict.String())

		logger := c.logger.With(
			zap.String("page", candidate.Page),
			zap.String("filename", candidate.Filename),
		)

		switch verdict {
		case crawl.Reject:
			logger.Debug("Skipping file type")
			continue
		case crawl.Unexpected:
			logger.Warn("Unexpected file type, downloading for review")
		default:
			logger.Info("Found file")
		}

		dest, safe := worker.Destination(c.cfg.Output.Dir, candidate.Filename)
		if !safe {
			if c.cfg.Output.RejectUnsafeNames {
				logger.Warn("Skipping file outside the output directory", zap.String("path", dest))
				continue
			}
			logger.Warn("Filename points outside the output directory", zap.String("path", dest))
		}

		if seen[dest] {
			continue
		}
		seen[dest] = true

		tasks = append(tasks, worker.Task{
			Index:    item.Index,
			Page:     candidate.Page,
			URL:      candidate.URL,
			Filename: candidate.Filename,
			Verdict:  verdict,
			Dest:     dest,
		})
	}

	return tasks
}

// commit records the item's new status, writes the worklist and journals the attempt
func (c *Crawler) commit(item ledger.WorkItem, status ledger.Status, record *checkpoint.AttemptRecord) error {
	if err := c.ledger.Update(item.Index, status); err != nil {
		return err
	}
	if err := c.ledger.Persist(); err != nil {
		return fmt.Errorf("failed to persist worklist: %w", err)
	}
	c.recordAttempt(record)
	return nil
}

func (c *Crawler) recordAttempt(record *checkpoint.AttemptRecord) {
	if err := c.journal.RecordAttempt(record); err != nil {
		c.logger.Warn("Failed to journal attempt", zap.Int("index", record.Index), zap.Error(err))
	}
}

func (c *Crawler) calculateBackoff(attempt int) time.Duration {
	base := time.Duration(c.cfg.Crawl.RetryBackoffMs) * time.Millisecond
	return base * time.Duration(math.Pow(2, float64(attempt-1)))
}

// Close persists the worklist a last time and releases the browsing session and
// the journal. It is safe to call more than once.
func (c *Crawler) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		if err := c.ledger.Persist(); err != nil {
			errs = append(errs, fmt.Errorf("failed to persist worklist: %w", err))
		}
		if err := c.driver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		if err := c.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close journal: %w", err))
		}
	})
	return errors.Join(errs...)
}
