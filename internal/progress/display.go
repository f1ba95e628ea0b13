package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Display periodically prints the tracker's status
type Display struct {
	tracker  *Tracker
	interval time.Duration
	out      io.Writer
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDisplay creates a new progress display writing to stdout
func NewDisplay(tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		out:      os.Stdout,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the display and prints the final summary
func (d *Display) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Display) displayLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprintf(d.out, "\r%s", d.statusLine(d.tracker.GetStatus()))
		case <-d.stopCh:
			fmt.Fprintln(d.out)
			fmt.Fprintln(d.out, strings.Join(d.finalLines(d.tracker.GetStatus()), "\n"))
			return
		}
	}
}

// statusLine renders a one-line progress report
func (d *Display) statusLine(status Status) string {
	percent := d.tracker.GetProgressPercent()
	return fmt.Sprintf("%s %d/%d items | page %-8s | %d files, %s (%s) | ETA %s",
		progressBar(percent, 20),
		status.ProcessedItems, status.TotalItems,
		status.CurrentPage,
		status.FilesDownloaded, FormatBytes(status.ProcessedBytes), FormatSpeed(status.AverageSpeed),
		FormatDuration(status.ETA),
	)
}

// finalLines renders the end-of-run summary
func (d *Display) finalLines(status Status) []string {
	return []string{
		"Crawl finished",
		strings.Repeat("=", 40),
		fmt.Sprintf("Items processed: %d", status.ProcessedItems),
		fmt.Sprintf("  complete:      %d", status.CompleteItems),
		fmt.Sprintf("  failed:        %d", status.FailedItems),
		fmt.Sprintf("Files:           %d (%s)", status.FilesDownloaded, FormatBytes(status.ProcessedBytes)),
		fmt.Sprintf("Elapsed:         %s", FormatDuration(time.Since(status.StartTime))),
		fmt.Sprintf("Average speed:   %s", FormatSpeed(status.AverageSpeed)),
	}
}

func progressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	return fmt.Sprintf("[%s%s] %5.1f%%", strings.Repeat("#", filled), strings.Repeat("-", width-filled), percent)
}

// IsTerminalSupported reports whether stdout is a terminal
func IsTerminalSupported() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fileInfo.Mode()&os.ModeCharDevice != 0
}
