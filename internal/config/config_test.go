package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("worklist", "", "")
	flags.Int("start-index", 0, "")
	flags.String("output", "", "")
	flags.Int("max-attempts", 0, "")
	flags.Duration("item-timeout", 0, "")
	flags.Bool("show-progress", true, "")
	return flags
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "input/colorado_links.csv", cfg.Worklist.Path)
	assert.Equal(t, 10, cfg.Worklist.HeaderSearchRows)
	assert.Equal(t, "output/colorado", cfg.Output.Dir)
	assert.False(t, cfg.Output.SkipExisting)
	assert.Equal(t, 5, cfg.Crawl.MaxAttempts)
	assert.Equal(t, 5, cfg.Crawl.MaxTimeoutAttempts)
	assert.Equal(t, 1024, cfg.Crawl.ChunkSize)
	assert.Equal(t, "./journal.db", cfg.Journal.Path)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
worklist:
  path: from-file.csv
  start_index: 3
output:
  dir: file-out
crawl:
  max_attempts: 2
  item_timeout: 90s
metrics:
  addr: ":9100"
`), 0o644))
	t.Setenv("LASCRAWL_OUTPUT_DIR", "env-out")
	t.Setenv("LASCRAWL_MAX_ATTEMPTS", "4")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--max-attempts=7", "--show-progress=false"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)

	assert.Equal(t, "from-file.csv", cfg.Worklist.Path)
	assert.Equal(t, 3, cfg.Worklist.StartIndex)
	assert.Equal(t, "env-out", cfg.Output.Dir)
	assert.Equal(t, 7, cfg.Crawl.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Crawl.ItemTimeout)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.False(t, cfg.ShowProgress)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("crawl:\n  max_attempts: 2\n"), 0o644))
	t.Setenv("LASCRAWL_MAX_ATTEMPTS", "4")

	cfg, err := Load(file, testFlags())
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Crawl.MaxAttempts)
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LASCRAWL_JOURNAL=\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LASCRAWL_JOURNAL") })

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Journal.Path)
}

func TestValidation(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"zero attempts", []string{"--max-attempts=0"}},
		{"negative start", []string{"--start-index=-1"}},
		{"empty worklist", []string{"--worklist="}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := testFlags()
			require.NoError(t, flags.Parse(tt.args))
			_, err := Load("", flags)
			assert.Error(t, err)
		})
	}
}

func TestBadEnvValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LASCRAWL_MAX_ATTEMPTS", "many")

	_, err := Load("", nil)
	assert.Error(t, err)
}
