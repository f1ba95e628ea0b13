package ledger

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// State is the coarse lifecycle position of a work item
type State string

const (
	StatePending      State = "pending"
	StateInProgress   State = "in_progress"
	StateComplete     State = "complete"
	StateError        State = "error"
	// StateUnrecognized holds status text this tool did not write. The text is
	// kept verbatim and the item is never processed.
	StateUnrecognized State = "unrecognized"
)

// ErrorKind classifies why an item's crawl failed
type ErrorKind string

const (
	KindCannotOpenPage     ErrorKind = "cannot_open_page"
	KindTimeout            ErrorKind = "timeout"
	KindConnectionError    ErrorKind = "connection_error"
	KindMaxRetriesExceeded ErrorKind = "max_retries_exceeded"
	KindReadTimeout        ErrorKind = "read_timeout"
	KindEmptyTable         ErrorKind = "empty_table"
	KindUnhandled          ErrorKind = "unhandled"
)

// IsValid reports whether k is a known kind
func (k ErrorKind) IsValid() bool {
	switch k {
	case KindCannotOpenPage, KindTimeout, KindConnectionError, KindMaxRetriesExceeded,
		KindReadTimeout, KindEmptyTable, KindUnhandled:
		return true
	}
	return false
}

// RetryEligible reports whether an item failing with this kind may be attempted again.
func (k ErrorKind) RetryEligible() bool {
	return k.IsValid() && k != KindEmptyTable
}

const noFilesMarker = "no files found"

// Status is the tagged per-item status. Files is only meaningful for StateComplete;
// Kind, Detail and Attempts only for StateError. Attempts keeps one counter per kind
// and survives across error transitions so each kind is bounded independently.
type Status struct {
	State    State
	Files    []string
	Kind     ErrorKind
	Detail   string
	Attempts map[ErrorKind]int
}

// Pending returns the initial status
func Pending() Status {
	return Status{State: StatePending}
}

// InProgress marks an item being processed. prev keeps the attempt counters.
func InProgress(prev Status) Status {
	return Status{State: StateInProgress, Attempts: copyAttempts(prev.Attempts)}
}

// Complete records a finished crawl. An empty list means no files were found.
func Complete(files []string) Status {
	if len(files) == 0 {
		files = nil
	} else {
		files = append([]string(nil), files...)
	}
	return Status{State: StateComplete, Files: files}
}

// Failed records a failure of the given kind on top of prev, incrementing that
// kind's attempt counter and leaving the other counters untouched.
func Failed(prev Status, kind ErrorKind, detail string) Status {
	attempts := copyAttempts(prev.Attempts)
	if attempts == nil {
		attempts = make(map[ErrorKind]int)
	}
	attempts[kind]++
	return Status{
		State:    StateError,
		Kind:     kind,
		Detail:   detail,
		Attempts: attempts,
	}
}

// AttemptCount returns the counter of the status' current error kind
func (s Status) AttemptCount() int {
	if s.State != StateError {
		return 0
	}
	return s.Attempts[s.Kind]
}

// NoFilesFound reports a complete status without files
func (s Status) NoFilesFound() bool {
	return s.State == StateComplete && len(s.Files) == 0
}

func (s Status) String() string {
	switch s.State {
	case StateInProgress:
		return string(StateInProgress)
	case StateError:
		return fmt.Sprintf("error(%s, attempt %d): %s", s.Kind, s.AttemptCount(), s.Detail)
	}
	return s.encode()
}

func copyAttempts(in map[ErrorKind]int) map[ErrorKind]int {
	if len(in) == 0 {
		return nil
	}
	out := make(map[ErrorKind]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// RetryPolicy bounds how often an item may fail with a retry-eligible kind
type RetryPolicy struct {
	MaxAttempts        int
	MaxTimeoutAttempts int
}

// Limit returns the attempt bound for kind
func (p RetryPolicy) Limit(kind ErrorKind) int {
	if kind == KindTimeout {
		return p.MaxTimeoutAttempts
	}
	return p.MaxAttempts
}

// Eligible reports whether an item with status s should be (re)processed.
func (p RetryPolicy) Eligible(s Status) bool {
	switch s.State {
	case StatePending:
		return true
	case StateError:
		return s.Kind.RetryEligible() && s.AttemptCount() < p.Limit(s.Kind)
	}
	return false
}

// Exhausted reports whether s is an error that may not be retried any more.
func (p RetryPolicy) Exhausted(s Status) bool {
	return s.State == StateError && !p.Eligible(s)
}

// encode renders the status for the worklist's status column.
//
//	pending
//	no files found
//	complete:["a.las","b.las"]
//	error:timeout:connection_error=1,timeout=2: detail text
func (s Status) encode() string {
	switch s.State {
	case StateComplete:
		if len(s.Files) == 0 {
			return noFilesMarker
		}
		data, _ := json.Marshal(s.Files)
		return "complete:" + string(data)
	case StateError:
		kinds := make([]string, 0, len(s.Attempts))
		for k := range s.Attempts {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		counts := make([]string, 0, len(kinds))
		for _, k := range kinds {
			counts = append(counts, k+"="+strconv.Itoa(s.Attempts[ErrorKind(k)]))
		}
		detail := strings.Join(strings.Fields(s.Detail), " ")
		return fmt.Sprintf("error:%s:%s: %s", s.Kind, strings.Join(counts, ","), detail)
	case StateUnrecognized:
		return s.Detail
	}
	// in_progress is never persisted
	return string(StatePending)
}

var (
	legacyListItem = regexp.MustCompile(`'([^']*)'|"([^"]*)"`)
)

// parseStatus decodes the status column. Blank cells are pending. Values written by
// the older tool (python lists, "ERROR: ...", "unhandled error: ...") are accepted;
// anything else is kept as StateUnrecognized.
func parseStatus(text string) Status {
	raw := strings.TrimSpace(text)
	lower := strings.ToLower(raw)

	switch {
	case raw == "", lower == string(StatePending), lower == string(StateInProgress), lower == "nan":
		return Pending()
	case lower == noFilesMarker:
		return Complete(nil)
	case strings.HasPrefix(raw, "complete:"):
		var files []string
		if err := json.Unmarshal([]byte(strings.TrimPrefix(raw, "complete:")), &files); err != nil {
			return unrecognized(raw)
		}
		return Complete(files)
	case strings.HasPrefix(raw, "["):
		var files []string
		for _, m := range legacyListItem.FindAllStringSubmatch(raw, -1) {
			files = append(files, m[1]+m[2])
		}
		return Complete(files)
	case strings.HasPrefix(lower, "unhandled error:"):
		return Failed(Status{}, KindUnhandled, strings.TrimSpace(raw[len("unhandled error:"):]))
	case strings.HasPrefix(raw, "error:"):
		if s, err := parseError(strings.TrimPrefix(raw, "error:")); err == nil {
			return s
		}
		// hand-written "error: ..." text
		fallthrough
	case strings.HasPrefix(lower, "error"):
		detail := strings.TrimSpace(strings.TrimLeft(raw[len("error"):], ":"))
		return Failed(Status{}, legacyKind(detail), detail)
	}

	return unrecognized(raw)
}

func unrecognized(raw string) Status {
	return Status{State: StateUnrecognized, Detail: raw}
}

func parseError(rest string) (Status, error) {
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 {
		return Status{}, fmt.Errorf("malformed error status %q", rest)
	}

	kind := ErrorKind(parts[0])
	if !kind.IsValid() {
		return Status{}, fmt.Errorf("unknown error kind %q", parts[0])
	}

	attempts := make(map[ErrorKind]int)
	if parts[1] != "" {
		for _, pair := range strings.Split(parts[1], ",") {
			k, v, ok := strings.Cut(pair, "=")
			n, err := strconv.Atoi(v)
			if !ok || err != nil || !ErrorKind(k).IsValid() {
				return Status{}, fmt.Errorf("malformed attempt counter %q", pair)
			}
			attempts[ErrorKind(k)] = n
		}
	}
	if attempts[kind] == 0 {
		attempts[kind] = 1
	}

	var detail string
	if len(parts) == 3 {
		detail = strings.TrimSpace(parts[2])
	}

	return Status{State: StateError, Kind: kind, Detail: detail, Attempts: attempts}, nil
}

// legacyKind maps a free-text error from the older tool onto a kind.
func legacyKind(detail string) ErrorKind {
	d := strings.ToLower(detail)
	switch {
	case strings.Contains(d, "read timed out"):
		return KindReadTimeout
	case strings.Contains(d, "max retries exceeded"):
		return KindMaxRetriesExceeded
	case strings.Contains(d, "timeout"), strings.Contains(d, "timed out"):
		return KindTimeout
	case strings.Contains(d, "index out of range"):
		return KindEmptyTable
	case strings.Contains(d, "connection"):
		return KindConnectionError
	}
	return KindCannotOpenPage
}
