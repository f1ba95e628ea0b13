package crawl

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"lascrawl/internal/browser"
	"lascrawl/internal/fetch"

	"go.uber.org/zap"
)

// DownloadLabel is the visible text of a row's download link
const DownloadLabel = "Download"

var filenamePattern = regexp.MustCompile(`filename="(.*?)"`)

// Candidate is a row whose download link resolved to a named remote file
type Candidate struct {
	Page     string
	Row      int
	URL      string
	Filename string
}

// PageScanner extracts candidates from the currently rendered sub-page
type PageScanner interface {
	Scan(ctx context.Context) ([]Candidate, error)
}

// Scanner finds download links row by row and asks the server for each file's name
type Scanner struct {
	driver  browser.Driver
	fetcher fetch.Client
	logger  *zap.Logger
}

// NewScanner creates a new scanner
func NewScanner(driver browser.Driver, fetcher fetch.Client, logger *zap.Logger) *Scanner {
	return &Scanner{
		driver:  driver,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Scan checks every row of the current page. Rows without a download link, or whose
// response carries no filename, are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	rows, err := s.driver.Rows(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for i, row := range rows {
		link, ok, err := s.driver.FindByText(ctx, row, DownloadLabel)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		href, ok := link.Attr("href")
		if !ok || href == "" {
			continue
		}

		filename, err := s.declaredFilename(ctx, href)
		if err != nil {
			return nil, err
		}
		if filename == "" {
			s.logger.Debug("No filename declared, skipping row",
				zap.Int("row", i),
				zap.String("url", href),
			)
			continue
		}

		candidates = append(candidates, Candidate{Row: i, URL: href, Filename: filename})
	}

	return candidates, nil
}

// declaredFilename reads only the response headers of url
func (s *Scanner) declaredFilename(ctx context.Context, url string) (string, error) {
	resp, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to inspect %s: %w", url, err)
	}
	defer resp.Body.Close()

	return ParseFilename(resp.Header.Get("Content-Disposition")), nil
}

// ParseFilename extracts the quoted filename parameter of a content-disposition
// header, or "" when there is none.
func ParseFilename(disposition string) string {
	m := filenamePattern.FindStringSubmatch(disposition)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
