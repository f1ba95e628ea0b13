package progress

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Status represents the current crawl status
type Status struct {
	TotalItems      int64         // items eligible this run
	ProcessedItems  int64         // items finished this run
	CompleteItems   int64         // items that reached complete
	FailedItems     int64         // items that ended in error
	FilesDownloaded int64         // files written to disk
	ProcessedBytes  int64         // bytes written to disk
	CurrentPage     string        // "{index}.{page}" being scanned
	StartTime       time.Time     // run start
	LastUpdateTime  time.Time     // last change
	AverageSpeed    float64       // bytes/second since start
	ETA             time.Duration // estimated time to finish the eligible items
}

// Tracker tracks crawl progress
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{status: Status{StartTime: now, LastUpdateTime: now}}
}

// SetTotal sets the number of items this run will attempt
func (t *Tracker) SetTotal(items int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.TotalItems = items
}

// SetCurrentPage records the sub-page being scanned
func (t *Tracker) SetCurrentPage(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CurrentPage = key
	t.status.LastUpdateTime = time.Now()
}

// AddComplete counts a finished item
func (t *Tracker) AddComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CompleteItems++
	t.status.ProcessedItems++
	t.calculateETA(time.Now())
}

// AddFailed counts an item that ended in error
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FailedItems++
	t.status.ProcessedItems++
	t.calculateETA(time.Now())
}

// AddFile counts a downloaded file of the given size
func (t *Tracker) AddFile(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FilesDownloaded++
	t.status.ProcessedBytes += bytes
	t.updateSpeed(time.Now())
}

// updateSpeed must be called with the lock held
func (t *Tracker) updateSpeed(now time.Time) {
	t.status.LastUpdateTime = now
	if elapsed := now.Sub(t.status.StartTime); elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.ProcessedBytes) / elapsed.Seconds()
	}
}

// calculateETA extrapolates the mean time per item
func (t *Tracker) calculateETA(now time.Time) {
	t.status.LastUpdateTime = now
	remaining := t.status.TotalItems - t.status.ProcessedItems
	if t.status.ProcessedItems == 0 || remaining <= 0 {
		t.status.ETA = 0
		return
	}

	perItem := now.Sub(t.status.StartTime) / time.Duration(t.status.ProcessedItems)
	t.status.ETA = perItem * time.Duration(remaining)
}

// GetStatus returns the current status (thread-safe)
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns the share of eligible items processed
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalItems == 0 {
		return 0
	}

	return float64(t.status.ProcessedItems) / float64(t.status.TotalItems) * 100
}

// FormatSpeed formats speed in human readable format
func FormatSpeed(bytesPerSecond float64) string {
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatDuration renders d rounded to whole seconds, e.g. "1m30s"; zero means the
// ETA is not known yet.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "calculating..."
	}
	return d.Round(time.Second).String()
}
