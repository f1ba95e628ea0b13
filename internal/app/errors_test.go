package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"lascrawl/internal/browser"
	"lascrawl/internal/crawl"
	"lascrawl/internal/fetch"
	"lascrawl/internal/ledger"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ledger.ErrorKind
	}{
		{"cannot open", &browser.NavigationError{Kind: browser.CannotOpen}, ledger.KindCannotOpenPage},
		{"driver crashed", &browser.NavigationError{Kind: browser.DriverCrashed}, ledger.KindCannotOpenPage},
		{"missing page link", &browser.NavigationError{Kind: browser.ElementNotFound}, ledger.KindCannotOpenPage},
		{"page timeout", &browser.NavigationError{Kind: browser.Timeout}, ledger.KindTimeout},
		{"connection", &fetch.Error{Kind: fetch.ConnectionError}, ledger.KindConnectionError},
		{"read timeout", fmt.Errorf("download: %w", &fetch.Error{Kind: fetch.ReadTimeout, Err: context.DeadlineExceeded}), ledger.KindReadTimeout},
		{"max retries", &fetch.Error{Kind: fetch.MaxRetriesExceeded}, ledger.KindMaxRetriesExceeded},
		{"empty table", fmt.Errorf("%w: http://site", crawl.ErrEmptyTable), ledger.KindEmptyTable},
		{"item deadline", context.DeadlineExceeded, ledger.KindTimeout},
		{"anything else", errors.New("nil map write"), ledger.KindUnhandled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}
