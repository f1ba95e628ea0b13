package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Worklist column names
const (
	ColumnSource     = "Docs"
	ColumnIdentifier = "API"
	ColumnStatus     = "status"
)

var (
	// ErrConfig is returned when the worklist lacks required columns or values
	ErrConfig = errors.New("invalid worklist")
	// ErrUnknownIndex is returned when updating an index that was never loaded
	ErrUnknownIndex = errors.New("unknown work item index")
)

// WorkItem is one row of the worklist
type WorkItem struct {
	Index      int
	SourceURL  string
	Identifier string
	Status     Status
}

// LoadOptions controls how the worklist is located inside the file
type LoadOptions struct {
	// HeaderSearchRows is how many leading rows may precede the header row
	HeaderSearchRows int
}

// Ledger is the ordered, persistent set of work items backed by a CSV file.
// Column order and extra columns are kept as loaded; rows are never reordered,
// so an item's index is its position among the data rows.
type Ledger struct {
	mu        sync.Mutex
	path      string
	header    []string
	statusCol int
	rows      [][]string
	items     []WorkItem
}

// Load reads the worklist at path
func Load(path string, opts LoadOptions) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open worklist: %w", err)
	}
	defer f.Close()

	return read(path, f, opts)
}

func read(path string, r io.Reader, opts LoadOptions) (*Ledger, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse worklist: %w", err)
	}

	// spreadsheet exports often start with a byte order mark
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}

	headerRow := -1
	var srcCol, idCol int
	for i := 0; i < len(records) && i <= opts.HeaderSearchRows; i++ {
		srcCol, idCol = columnIndex(records[i], ColumnSource), columnIndex(records[i], ColumnIdentifier)
		if srcCol >= 0 && idCol >= 0 {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return nil, fmt.Errorf("%w: missing columns %q or %q in the first %d rows of %s",
			ErrConfig, ColumnIdentifier, ColumnSource, opts.HeaderSearchRows+1, path)
	}

	header := trimAll(records[headerRow])
	statusCol := columnIndex(header, ColumnStatus)
	if statusCol < 0 {
		header = append(header, ColumnStatus)
		statusCol = len(header) - 1
	}

	l := &Ledger{
		path:      path,
		header:    header,
		statusCol: statusCol,
	}

	for _, record := range records[headerRow+1:] {
		if isBlank(record) {
			continue
		}
		row := make([]string, max(len(header), len(record)))
		copy(row, record)

		index := len(l.items)
		item := WorkItem{
			Index:      index,
			SourceURL:  strings.TrimSpace(row[srcCol]),
			Identifier: strings.TrimSpace(row[idCol]),
		}
		if item.SourceURL == "" || item.Identifier == "" {
			return nil, fmt.Errorf("%w: row %d is missing %q or %q", ErrConfig, index, ColumnSource, ColumnIdentifier)
		}

		item.Status = parseStatus(row[statusCol])

		l.rows = append(l.rows, row)
		l.items = append(l.items, item)
	}

	return l, nil
}

// Path returns the file the ledger persists to
func (l *Ledger) Path() string {
	return l.path
}

// Len returns the number of work items
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Items returns a copy of every item in index order
func (l *Ledger) Items() []WorkItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]WorkItem(nil), l.items...)
}

// Get returns the item with the given index
func (l *Ledger) Get(index int) (WorkItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.items) {
		return WorkItem{}, false
	}
	return l.items[index], true
}

// PendingOrRetryable returns the items the policy allows to be processed, in
// ascending index order.
func (l *Ledger) PendingOrRetryable(policy RetryPolicy) []WorkItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []WorkItem
	for _, item := range l.items {
		if policy.Eligible(item.Status) {
			out = append(out, item)
		}
	}
	return out
}

// Update replaces the status of exactly one item
func (l *Ledger) Update(index int, status Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}
	l.items[index].Status = status
	return nil
}

// Persist rewrites the whole worklist file. The file is replaced atomically so an
// interrupted write never leaves a truncated worklist behind.
func (l *Ledger) Persist() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp worklist: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(l.header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range l.rows {
		row[l.statusCol] = l.items[i].Status.encode()
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush worklist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp worklist: %w", err)
	}

	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace worklist: %w", err)
	}
	return nil
}

// Summary counts items per state
type Summary struct {
	Total  int
	Counts map[State]int
}

// PercentComplete is the share of items that are neither pending nor failed
func (s Summary) PercentComplete() float64 {
	if s.Total == 0 {
		return 100
	}
	open := s.Counts[StatePending] + s.Counts[StateError]
	return 100 - 100*float64(open)/float64(s.Total)
}

// Summary returns per-state counts over all items
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{Total: len(l.items), Counts: make(map[State]int)}
	for _, item := range l.items {
		s.Counts[item.Status.State]++
	}
	return s
}

func columnIndex(record []string, name string) int {
	for i, col := range record {
		if strings.TrimSpace(col) == name {
			return i
		}
	}
	return -1
}

func trimAll(record []string) []string {
	out := make([]string, len(record))
	for i, col := range record {
		out[i] = strings.TrimSpace(col)
	}
	return out
}

func isBlank(record []string) bool {
	for _, col := range record {
		if strings.TrimSpace(col) != "" {
			return false
		}
	}
	return true
}
