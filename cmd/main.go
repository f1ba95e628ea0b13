package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lascrawl/internal/app"
	"lascrawl/internal/config"
	"lascrawl/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lascrawl",
	Short: "Crawl well document pages and download LAS files",
	Long:  `A resumable crawler that walks the paginated document table of every well in a worklist, downloads the files it finds and records per-well progress back into the worklist.`,
	RunE:  runCrawl,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is none)")

	// Worklist flags
	rootCmd.Flags().String("worklist", "input/colorado_links.csv", "Worklist CSV with Docs, API and status columns")
	rootCmd.Flags().Int("start-index", 0, "Skip items below this index")

	// Output flags
	rootCmd.Flags().String("output", "output/colorado", "Directory downloaded files are written to")
	rootCmd.Flags().Bool("skip-existing", false, "Keep files already present instead of downloading them again")
	rootCmd.Flags().Bool("reject-unsafe-names", false, "Skip files whose declared name points outside the output directory")

	// Crawl flags
	rootCmd.Flags().Int("max-attempts", 5, "Maximum attempts per item for each error kind")
	rootCmd.Flags().Int("max-timeout-attempts", 5, "Maximum attempts per item for timeouts")
	rootCmd.Flags().Int("retry-backoff-ms", 500, "Initial retry backoff in milliseconds")
	rootCmd.Flags().Duration("item-timeout", 0, "Time limit for one attempt at an item (0 disables)")
	rootCmd.Flags().Int("download-concurrency", 1, "Concurrent downloads within one item")

	// Network flags
	rootCmd.Flags().Duration("page-timeout", 60*time.Second, "Time limit for loading a page")
	rootCmd.Flags().Duration("http-timeout", 60*time.Second, "Time limit for connecting and receiving response headers")
	rootCmd.Flags().Int("http-retries", 3, "Connection-level retries per request")

	// Runtime flags
	rootCmd.Flags().String("journal", "./journal.db", "Attempt journal database file (empty disables)")
	rootCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.Flags().Bool("show-progress", true, "Show progress display")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Create application
	crawler, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, saving progress...")
		cancel()
	}()

	return runAndClose(ctx, crawler, log)
}

type crawlRunner interface {
	Run(ctx context.Context) error
	Close() error
}

// runAndClose runs the crawl and releases the crawler's resources however Run
// exits, including by panic.
func runAndClose(ctx context.Context, crawler crawlRunner, log *zap.Logger) error {
	defer func() {
		if closeErr := crawler.Close(); closeErr != nil {
			log.Error("Error closing crawler", zap.Error(closeErr))
		}
	}()

	err := crawler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("Crawl stopped, progress saved")
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
