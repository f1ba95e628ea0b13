package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorklist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "links.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

var defaultOpts = LoadOptions{HeaderSearchRows: 10}

func TestLoadDefaultsMissingStatusToPending(t *testing.T) {
	path := writeWorklist(t, "API,Docs,County\n05-001-00001,http://example.com/a,Adams\n05-001-00002,http://example.com/b,Adams\n")

	l, err := Load(path, defaultOpts)
	require.NoError(t, err)

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0].Index)
	assert.Equal(t, "http://example.com/a", items[0].SourceURL)
	assert.Equal(t, "05-001-00001", items[0].Identifier)
	assert.Equal(t, StatePending, items[0].Status.State)
	assert.Equal(t, 1, items[1].Index)
}

func TestLoadFindsHeaderAfterPreamble(t *testing.T) {
	path := writeWorklist(t, "Colorado well logs\nexported 2019\n\n,,\nsource: COGCC\nAPI,Docs\n05-001-00001,http://example.com/a\n")

	l, err := Load(path, defaultOpts)
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())

	item, ok := l.Get(0)
	require.True(t, ok)
	assert.Equal(t, "05-001-00001", item.Identifier)
}

func TestLoadMissingColumnsIsConfigError(t *testing.T) {
	path := writeWorklist(t, "API,Links\n05-001-00001,http://example.com/a\n")

	_, err := Load(path, defaultOpts)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadMissingValueIsConfigError(t *testing.T) {
	path := writeWorklist(t, "API,Docs\n,http://example.com/a\n")

	_, err := Load(path, defaultOpts)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadSkipsBlankLines(t *testing.T) {
	path := writeWorklist(t, "API,Docs\n05-001-00001,http://example.com/a\n,\n05-001-00002,http://example.com/b\n")

	l, err := Load(path, defaultOpts)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
}

func TestLoadStripsByteOrderMark(t *testing.T) {
	path := writeWorklist(t, "\ufeffDocs,API\nhttp://example.com/a,05-001-00001\n")

	l, err := Load(path, defaultOpts)
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())

	item, _ := l.Get(0)
	assert.Equal(t, "http://example.com/a", item.SourceURL)
}

func TestLoadKeepsUnrecognizedStatus(t *testing.T) {
	path := writeWorklist(t, "API,Docs,status\n05-001-00001,http://x/0,done\n05-001-00002,http://x/1,\n")

	l, err := Load(path, defaultOpts)
	require.NoError(t, err)

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, StateUnrecognized, items[0].Status.State)
	assert.Equal(t, "done", items[0].Status.Detail)

	queued := l.PendingOrRetryable(RetryPolicy{MaxAttempts: 5, MaxTimeoutAttempts: 5})
	require.Len(t, queued, 1)
	assert.Equal(t, 1, queued[0].Index)

	require.NoError(t, l.Update(1, Complete(nil)))
	require.NoError(t, l.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "05-001-00001,http://x/0,done", lines[1])
	assert.Equal(t, "05-001-00002,http://x/1,no files found", lines[2])
}

func TestPendingOrRetryable(t *testing.T) {
	path := writeWorklist(t, strings.Join([]string{
		"API,Docs,status",
		"a,http://x/0,pending",
		`b,http://x/1,"complete:[""b.las""]"`,
		"c,http://x/2,error:timeout:timeout=1: slow",
		"d,http://x/3,error:cannot_open_page:cannot_open_page=5: gone",
		"e,http://x/4,error:empty_table:empty_table=1: no rows",
		"f,http://x/5,no files found",
		"g,http://x/6,",
		"",
	}, "\n"))

	l, err := Load(path, defaultOpts)
	require.NoError(t, err)

	items := l.PendingOrRetryable(RetryPolicy{MaxAttempts: 5, MaxTimeoutAttempts: 3})
	var indices []int
	for _, item := range items {
		indices = append(indices, item.Index)
	}
	assert.Equal(t, []int{0, 2, 6}, indices)
}

func TestUpdateUnknownIndex(t *testing.T) {
	path := writeWorklist(t, "API,Docs\na,http://x/0\n")
	l, err := Load(path, defaultOpts)
	require.NoError(t, err)

	assert.ErrorIs(t, l.Update(7, Complete(nil)), ErrUnknownIndex)
	assert.ErrorIs(t, l.Update(-1, Complete(nil)), ErrUnknownIndex)
	require.NoError(t, l.Update(0, Complete([]string{"a.las"})))

	item, _ := l.Get(0)
	assert.Equal(t, []string{"a.las"}, item.Status.Files)
}

func TestPersistRoundTrip(t *testing.T) {
	path := writeWorklist(t, strings.Join([]string{
		"County,API,Docs,Notes",
		"Adams,05-001-00001,http://x/0,first",
		"Adams,05-001-00002,http://x/1,",
		"Baca,05-009-00003,http://x/2,third",
		"",
	}, "\n"))

	l, err := Load(path, defaultOpts)
	require.NoError(t, err)
	require.NoError(t, l.Update(0, Complete([]string{"05-001-00001.las", "extra, file.dat"})))
	require.NoError(t, l.Update(1, Failed(Failed(Pending(), KindTimeout, "page load"), KindConnectionError, "reset\nby peer")))
	require.NoError(t, l.Persist())

	first, err := Load(path, defaultOpts)
	require.NoError(t, err)
	require.NoError(t, first.Persist())
	second, err := Load(path, defaultOpts)
	require.NoError(t, err)

	assert.Equal(t, first.Items(), second.Items())

	items := second.Items()
	assert.Equal(t, []string{"05-001-00001.las", "extra, file.dat"}, items[0].Status.Files)
	assert.Equal(t, KindConnectionError, items[1].Status.Kind)
	assert.Equal(t, "reset by peer", items[1].Status.Detail)
	assert.Equal(t, map[ErrorKind]int{KindTimeout: 1, KindConnectionError: 1}, items[1].Status.Attempts)
	assert.Equal(t, StatePending, items[2].Status.State)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "County,API,Docs,Notes,status", lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "Baca,05-009-00003,http://x/2,third,"))
}

func TestPersistNeverWritesInProgress(t *testing.T) {
	path := writeWorklist(t, "API,Docs\na,http://x/0\n")
	l, err := Load(path, defaultOpts)
	require.NoError(t, err)

	require.NoError(t, l.Update(0, InProgress(Pending())))
	require.NoError(t, l.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "in_progress")
}

func TestSummary(t *testing.T) {
	path := writeWorklist(t, "API,Docs,status\na,http://x/0,\nb,http://x/1,no files found\nc,http://x/2,ERROR: boom\nd,http://x/3,['d.las']\n")
	l, err := Load(path, defaultOpts)
	require.NoError(t, err)

	s := l.Summary()
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Counts[StatePending])
	assert.Equal(t, 2, s.Counts[StateComplete])
	assert.Equal(t, 1, s.Counts[StateError])
	assert.InDelta(t, 50.0, s.PercentComplete(), 0.001)
}
