package errlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestLog_RecordAppendsTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "error_log.txt")
	l := New(path)
	l.now = func() time.Time { return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC) }

	l.Record("Failed GET %s: %d %s", "https://api.github.com/orgs/acme/repos", 404, `{"message":"Not Found"}`)
	l.Record("Error processing %s: %v", "widgets", "boom")

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "2024-03-01 10:30:00.000000"), lines[0])
	assert.Contains(t, lines[0], "Failed GET https://api.github.com/orgs/acme/repos: 404")
	assert.Contains(t, lines[1], "Error processing widgets: boom")
}

func TestLog_RecordFlattensMultilineMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_log.txt")
	l := New(path)

	l.Record("body:\n{\n  \"message\": \"oops\"\n}")

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `body: {   "message": "oops" }`)
}

func TestLog_NilIsNoop(t *testing.T) {
	var l *Log
	assert.NotPanics(t, func() { l.Record("ignored") })
	assert.Equal(t, "", l.Path())
}
