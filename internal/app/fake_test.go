package app

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"lascrawl/internal/browser"
	"lascrawl/internal/checkpoint"
	"lascrawl/internal/config"
	"lascrawl/internal/fetch"
	"lascrawl/internal/ledger"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubElement struct {
	text string
}

func (e stubElement) Text() string               { return e.text }
func (e stubElement) Attr(string) (string, bool) { return "", false }

// stubDriver serves pages without download links, so every item it opens completes
// with no files found. Navigation outcomes are scripted per URL.
type stubDriver struct {
	pages    map[string][]string
	failures map[string]error
	panics   map[string]bool
	hook     func(url string)
	current  string
	visits   map[string]int
	closed   bool
}

func newStubDriver() *stubDriver {
	return &stubDriver{
		pages:    make(map[string][]string),
		failures: make(map[string]error),
		panics:   make(map[string]bool),
		visits:   make(map[string]int),
	}
}

func (d *stubDriver) Navigate(ctx context.Context, url string) error {
	d.visits[url]++
	if d.hook != nil {
		d.hook(url)
	}
	if d.panics[url] {
		panic("browser crashed on " + url)
	}
	if err, ok := d.failures[url]; ok {
		return err
	}
	if _, ok := d.pages[url]; !ok {
		return &browser.NavigationError{Kind: browser.CannotOpen, URL: url}
	}
	d.current = url
	return nil
}

func (d *stubDriver) Rows(ctx context.Context) ([]browser.Element, error) {
	var rows []browser.Element
	for _, text := range d.pages[d.current] {
		rows = append(rows, stubElement{text: text})
	}
	return rows, nil
}

func (d *stubDriver) FindByText(ctx context.Context, scope browser.Element, label string) (browser.Element, bool, error) {
	return nil, false, nil
}

func (d *stubDriver) Activate(ctx context.Context, el browser.Element) error {
	return nil
}

func (d *stubDriver) Close() error {
	d.closed = true
	return nil
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Worklist.Path = filepath.Join(dir, "links.csv")
	cfg.Output.Dir = filepath.Join(dir, "output")
	cfg.Crawl.RetryBackoffMs = 0
	cfg.Journal.Path = ""
	cfg.ShowProgress = false
	return cfg
}

// writeWorklist writes rows of {Docs, API, status}
func writeWorklist(t *testing.T, path string, rows ...[]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write([]string{ledger.ColumnSource, ledger.ColumnIdentifier, ledger.ColumnStatus}))
	require.NoError(t, w.WriteAll(rows))
}

func newTestCrawler(t *testing.T, cfg *config.Config, driver browser.Driver, journal checkpoint.Store) *Crawler {
	t.Helper()
	work, err := ledger.Load(cfg.Worklist.Path, ledger.LoadOptions{HeaderSearchRows: cfg.Worklist.HeaderSearchRows})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.Output.Dir, 0o755))

	if journal == nil {
		journal = checkpoint.NopStore{}
	}
	return newCrawler(cfg, zap.NewNop(), collaborators{
		ledger:  work,
		driver:  driver,
		fetcher: fetch.NewHTTPClient(fetch.Config{}),
		journal: journal,
	})
}

func reload(t *testing.T, cfg *config.Config) []ledger.WorkItem {
	t.Helper()
	work, err := ledger.Load(cfg.Worklist.Path, ledger.LoadOptions{HeaderSearchRows: cfg.Worklist.HeaderSearchRows})
	require.NoError(t, err)
	return work.Items()
}
