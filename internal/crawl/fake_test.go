package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lascrawl/internal/browser"
	"lascrawl/internal/fetch"
)

// fakeRow is a table row: its text plus link label -> target
type fakeRow struct {
	text  string
	links map[string]string
}

type fakeElement struct {
	text string
	href string
	row  *fakeRow
}

func (e *fakeElement) Text() string { return e.text }

func (e *fakeElement) Attr(name string) (string, bool) {
	if name == "href" && e.href != "" {
		return e.href, true
	}
	return "", false
}

// fakeDriver serves canned pages keyed by URL
type fakeDriver struct {
	pages   map[string][]fakeRow
	current string
	visited []string
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	if _, ok := d.pages[url]; !ok {
		return &browser.NavigationError{Kind: browser.CannotOpen, URL: url}
	}
	d.current = url
	d.visited = append(d.visited, url)
	return nil
}

func (d *fakeDriver) Rows(ctx context.Context) ([]browser.Element, error) {
	rows := d.pages[d.current]
	out := make([]browser.Element, len(rows))
	for i := range rows {
		out[i] = &fakeElement{text: rows[i].text, row: &rows[i]}
	}
	return out, nil
}

func (d *fakeDriver) FindByText(ctx context.Context, scope browser.Element, label string) (browser.Element, bool, error) {
	row := scope.(*fakeElement).row
	href, ok := row.links[label]
	if !ok {
		return nil, false, nil
	}
	return &fakeElement{text: label, href: href}, true, nil
}

func (d *fakeDriver) Activate(ctx context.Context, el browser.Element) error {
	href, _ := el.Attr("href")
	return d.Navigate(ctx, href)
}

func (d *fakeDriver) Close() error { return nil }

// fakeFetcher answers with a content-disposition per URL
type fakeFetcher struct {
	dispositions map[string]string
	requested    []string
}

func (f *fakeFetcher) Get(ctx context.Context, url string) (*fetch.Response, error) {
	f.requested = append(f.requested, url)
	cd, ok := f.dispositions[url]
	if !ok {
		return nil, &fetch.Error{Kind: fetch.ConnectionError, URL: url, Err: fmt.Errorf("refused")}
	}
	header := http.Header{}
	if cd != "" {
		header.Set("Content-Disposition", cd)
	}
	return &fetch.Response{StatusCode: http.StatusOK, Header: header, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func downloadRow(text, href string) fakeRow {
	return fakeRow{text: text + " Download", links: map[string]string{DownloadLabel: href}}
}

func attachment(name string) string {
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}
