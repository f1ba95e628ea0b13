package browser

import (
	"context"
	"errors"
	"fmt"
)

// Element is a node of the rendered page
type Element interface {
	// Text returns the visible text with whitespace collapsed to single spaces
	Text() string
	// Attr returns an attribute value; link targets are absolute
	Attr(name string) (string, bool)
}

// Driver is a single browsing session. It holds the currently rendered page and is
// not safe for concurrent use.
type Driver interface {
	// Navigate loads url and makes it the current page
	Navigate(ctx context.Context, url string) error
	// Rows lists the table rows of the current page in document order
	Rows(ctx context.Context) ([]Element, error)
	// FindByText returns the first link below scope whose text equals label.
	// A nil scope searches the whole page.
	FindByText(ctx context.Context, scope Element, label string) (Element, bool, error)
	// Activate follows el and waits for the resulting page to render
	Activate(ctx context.Context, el Element) error
	// Close releases the session
	Close() error
}

// NavigationErrorKind tells navigation failures apart
type NavigationErrorKind string

const (
	CannotOpen      NavigationErrorKind = "cannot_open"
	DriverCrashed   NavigationErrorKind = "driver_crashed"
	ElementNotFound NavigationErrorKind = "element_not_found"
	Timeout         NavigationErrorKind = "timeout"
)

// NavigationError is returned by every Driver operation that fails
type NavigationError struct {
	Kind NavigationErrorKind
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("navigation %s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("navigation %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// ErrSessionClosed is wrapped into DriverCrashed errors after Close
var ErrSessionClosed = errors.New("browser session closed")
