package app

import (
	"context"
	"errors"

	"lascrawl/internal/browser"
	"lascrawl/internal/crawl"
	"lascrawl/internal/fetch"
	"lascrawl/internal/ledger"
)

// classify maps a failed attempt onto the worklist's error kinds. Anything it does
// not recognize is KindUnhandled, which stops the run.
func classify(err error) ledger.ErrorKind {
	var navErr *browser.NavigationError
	var fetchErr *fetch.Error

	switch {
	case errors.Is(err, crawl.ErrEmptyTable):
		return ledger.KindEmptyTable
	case errors.As(err, &fetchErr):
		switch fetchErr.Kind {
		case fetch.ConnectionError:
			return ledger.KindConnectionError
		case fetch.ReadTimeout:
			return ledger.KindReadTimeout
		case fetch.MaxRetriesExceeded:
			return ledger.KindMaxRetriesExceeded
		}
	case errors.As(err, &navErr):
		if navErr.Kind == browser.Timeout {
			return ledger.KindTimeout
		}
		return ledger.KindCannotOpenPage
	case errors.Is(err, context.DeadlineExceeded):
		return ledger.KindTimeout
	}

	return ledger.KindUnhandled
}
