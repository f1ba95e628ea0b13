package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// HTMLDriver renders pages by fetching them over HTTP and parsing the markup.
// Links are activated by following their href, which covers tables whose page
// strip is made of plain anchors.
type HTMLDriver struct {
	client    *http.Client
	userAgent string

	doc     *html.Node
	current *url.URL
	closed  bool
}

// Option configures an HTMLDriver
type Option func(*HTMLDriver)

// WithHTTPClient sets the client used to load pages
func WithHTTPClient(client *http.Client) Option {
	return func(d *HTMLDriver) {
		d.client = client
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(d *HTMLDriver) {
		d.userAgent = ua
	}
}

// WithTimeout bounds a single page load
func WithTimeout(timeout time.Duration) Option {
	return func(d *HTMLDriver) {
		d.client.Timeout = timeout
	}
}

// NewHTMLDriver creates a driver with a fresh session
func NewHTMLDriver(opts ...Option) *HTMLDriver {
	d := &HTMLDriver{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Navigate loads rawURL
func (d *HTMLDriver) Navigate(ctx context.Context, rawURL string) error {
	if d.closed {
		return &NavigationError{Kind: DriverCrashed, URL: rawURL, Err: ErrSessionClosed}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &NavigationError{Kind: CannotOpen, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return &NavigationError{Kind: navigationKind(err), URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &NavigationError{Kind: CannotOpen, URL: rawURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return &NavigationError{Kind: navigationKind(err), URL: rawURL, Err: err}
	}

	d.doc = doc
	d.current = resp.Request.URL
	return nil
}

func navigationKind(err error) NavigationErrorKind {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Timeout
	}
	return CannotOpen
}

// Rows lists every <tr> of the current page
func (d *HTMLDriver) Rows(ctx context.Context) ([]Element, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}

	var rows []Element
	walk(d.doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "tr" {
			rows = append(rows, &node{n: n, base: d.current})
		}
		return true
	})
	return rows, nil
}

// FindByText returns the first anchor under scope whose text is label
func (d *HTMLDriver) FindByText(ctx context.Context, scope Element, label string) (Element, bool, error) {
	if err := d.ready(); err != nil {
		return nil, false, err
	}

	root := d.doc
	if scope != nil {
		sn, ok := scope.(*node)
		if !ok {
			return nil, false, &NavigationError{Kind: ElementNotFound, URL: d.current.String(), Err: fmt.Errorf("foreign element %T", scope)}
		}
		root = sn.n
	}

	var found *node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if candidate := (&node{n: n, base: d.current}); candidate.Text() == label {
				found = candidate
				return false
			}
		}
		return true
	})

	if found == nil {
		return nil, false, nil
	}
	return found, true, nil
}

// Activate follows the element's link
func (d *HTMLDriver) Activate(ctx context.Context, el Element) error {
	if err := d.ready(); err != nil {
		return err
	}

	href, ok := el.Attr("href")
	if !ok || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return &NavigationError{Kind: ElementNotFound, URL: d.current.String(), Err: fmt.Errorf("element %q is not a followable link", el.Text())}
	}
	return d.Navigate(ctx, href)
}

// Close ends the session
func (d *HTMLDriver) Close() error {
	d.closed = true
	d.doc = nil
	d.client.CloseIdleConnections()
	return nil
}

func (d *HTMLDriver) ready() error {
	if d.closed {
		return &NavigationError{Kind: DriverCrashed, Err: ErrSessionClosed}
	}
	if d.doc == nil {
		return &NavigationError{Kind: CannotOpen, Err: errors.New("no page loaded")}
	}
	return nil
}

type node struct {
	n    *html.Node
	base *url.URL
}

func (e *node) Text() string {
	var parts []string
	walk(e.n, func(n *html.Node) bool {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return false
		}
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		return true
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func (e *node) Attr(name string) (string, bool) {
	for _, attr := range e.n.Attr {
		if attr.Key != name {
			continue
		}
		if name == "href" || name == "src" {
			ref, err := url.Parse(strings.TrimSpace(attr.Val))
			if err != nil {
				return attr.Val, true
			}
			return e.base.ResolveReference(ref).String(), true
		}
		return attr.Val, true
	}
	return "", false
}

// walk visits n and its descendants depth first; visit returning false skips the
// node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}
