package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), "lines.txt")
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	return filePath
}

func TestIterLines(t *testing.T) {
	filePath := writeFile(t, "a b\r\n\nc\n")
	var got []string
	for line, err := range IterLines(filePath) {
		require.NoError(t, err)
		got = append(got, line)
	}
	assert.Equal(t, []string{"a b", "", "c"}, got)

	n, err := CountLines(filePath)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = CountLines(writeFile(t, "no trailing newline"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIterLinesMissingFile(t *testing.T) {
	_, err := CountLines(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, Exists(filepath.Join(t.TempDir(), "missing")))
}

func TestLineReader(t *testing.T) {
	r, err := OpenLines(writeFile(t, "x\ny\n"))
	require.NoError(t, err)
	line, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, "x", line)
	assert.Equal(t, 1, r.Line())
	require.NoError(t, r.Close())
	_, ok = r.Next()
	assert.False(t, ok)
	require.NoError(t, r.Close())
}

func TestReplaceTildeInDir(t *testing.T) {
	got, err := ReplaceTildeInDir("/abs/dir")
	require.NoError(t, err)
	assert.Equal(t, "/abs/dir", got)

	got, err = ReplaceTildeInDir("~/data")
	require.NoError(t, err)
	assert.NotContains(t, got, "~")
	assert.Equal(t, "data", filepath.Base(got))
}
