package worker

import (
	"path/filepath"
	"strings"

	"lascrawl/internal/crawl"
)

// Task is one retained candidate to download
type Task struct {
	Index    int
	Page     string
	URL      string
	Filename string
	Verdict  crawl.Verdict
	Dest     string
}

// Result describes a finished task
type Result struct {
	Filename string
	Path     string
	Bytes    int64
	Skipped  bool
}

// Config contains downloader configuration
type Config struct {
	ChunkSize    int
	SkipExisting bool
}

// Destination joins the server-declared filename under dir. The name is used as
// given; safe is false when the result would land outside dir.
func Destination(dir, filename string) (path string, safe bool) {
	path = filepath.Join(dir, filename)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path, false
	}
	return path, true
}
