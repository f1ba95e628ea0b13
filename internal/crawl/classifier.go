package crawl

import (
	"path/filepath"
	"strings"
)

// Verdict is the classifier's decision for a filename
type Verdict int

const (
	Reject Verdict = iota
	Expected
	Unexpected
)

// Retain reports whether the file should be downloaded
func (v Verdict) Retain() bool {
	return v != Reject
}

func (v Verdict) String() string {
	switch v {
	case Expected:
		return "expected"
	case Unexpected:
		return "unexpected"
	}
	return "rejected"
}

var (
	// DefaultExpected lists the target extensions
	DefaultExpected = []string{".las"}
	// DefaultDenied lists the document, image and spreadsheet formats never worth fetching
	DefaultDenied = []string{".tif", ".tiff", ".pdf", ".xls", ".xlsx", ".xml", ".jpg", ".jpeg", ".png", ".gif", ".bmp"}
)

// Classifier decides which declared filenames are downloaded. Anything not on the
// denylist is kept, because the site's catalogue of types is incomplete.
type Classifier struct {
	expected map[string]bool
	denied   map[string]bool
}

// NewClassifier creates a classifier; nil lists fall back to the defaults
func NewClassifier(expected, denied []string) *Classifier {
	if expected == nil {
		expected = DefaultExpected
	}
	if denied == nil {
		denied = DefaultDenied
	}
	return &Classifier{
		expected: extensionSet(expected),
		denied:   extensionSet(denied),
	}
}

// Classify returns the verdict for filename, ignoring case
func (c *Classifier) Classify(filename string) Verdict {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	switch {
	case c.denied[ext]:
		return Reject
	case c.expected[ext]:
		return Expected
	}
	return Unexpected
}

func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}
