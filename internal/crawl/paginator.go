package crawl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lascrawl/internal/browser"

	"go.uber.org/zap"
)

// ErrEmptyTable is returned when a page has no table rows to inspect
var ErrEmptyTable = errors.New("page has no table rows")

// firstPage is the leading token of a page-number strip
const firstPage = "1"

// Target identifies the item being crawled
type Target struct {
	Index      int
	URL        string
	Identifier string
}

// Paginator walks every sub-page of a result table and scans each one.
// The last table row is the page strip when its first token is "1".
type Paginator struct {
	driver  browser.Driver
	scanner PageScanner
	logger  *zap.Logger
	onPage  func(key string)
}

// NewPaginator creates a new paginator. onPage, if set, is called with the
// "{index}.{page}" key before each sub-page is scanned.
func NewPaginator(driver browser.Driver, scanner PageScanner, logger *zap.Logger, onPage func(key string)) *Paginator {
	return &Paginator{
		driver:  driver,
		scanner: scanner,
		logger:  logger,
		onPage:  onPage,
	}
}

// Crawl scans the already loaded page of target and any further sub-pages, and
// returns their candidates in traversal order.
func (p *Paginator) Crawl(ctx context.Context, target Target) ([]Candidate, error) {
	strip, err := p.lastRow(ctx, target)
	if err != nil {
		return nil, err
	}

	tokens := strings.Fields(strip.Text())
	if len(tokens) == 0 || tokens[0] != firstPage {
		return p.scan(ctx, strconv.Itoa(target.Index))
	}

	p.logger.Debug("Multiple result pages",
		zap.Int("index", target.Index),
		zap.String("api", target.Identifier),
		zap.Strings("pages", tokens),
	)

	var candidates []Candidate
	for _, token := range tokens {
		if token != firstPage {
			link, ok, err := p.driver.FindByText(ctx, strip, token)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &browser.NavigationError{
					Kind: browser.ElementNotFound,
					URL:  target.URL,
					Err:  fmt.Errorf("no link for page %q", token),
				}
			}
			if err := p.driver.Activate(ctx, link); err != nil {
				return nil, err
			}
			// the strip is re-rendered with the new page
			if strip, err = p.lastRow(ctx, target); err != nil {
				return nil, err
			}
		}

		found, err := p.scan(ctx, fmt.Sprintf("%d.%s", target.Index, token))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	return candidates, nil
}

func (p *Paginator) lastRow(ctx context.Context, target Target) (browser.Element, error) {
	rows, err := p.driver.Rows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTable, target.URL)
	}
	return rows[len(rows)-1], nil
}

func (p *Paginator) scan(ctx context.Context, key string) ([]Candidate, error) {
	if p.onPage != nil {
		p.onPage(key)
	}

	found, err := p.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	for i := range found {
		found[i].Page = key
	}
	return found, nil
}
