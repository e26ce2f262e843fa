package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionPath(t *testing.T) {
	build := sessionPath("logs/out.ndjson")

	p, err := build(1)
	require.NoError(t, err)
	assert.Equal(t, "logs/out.ndjson", p)

	p, err = build(3)
	require.NoError(t, err)
	assert.Equal(t, "logs/out.3.ndjson", p)

	p, _ = sessionPath("out")(2)
	assert.Equal(t, "out.2", p)

	_, err = sessionPath(" ")(1)
	assert.Error(t, err)
}

func TestRotationOpen(t *testing.T) {
	dir := t.TempDir()
	r := newRotation(sessionPath(filepath.Join(dir, "nested", "out.log")))

	w, path, err := r.Open(1)
	require.NoError(t, err)
	_, _ = w.WriteString("first\n")

	// Opening the next session flushes and closes the previous file.
	w, path2, err := r.Open(2)
	require.NoError(t, err)
	_, _ = w.WriteString("second\n")
	r.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(data))

	data, err = os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))
	assert.Equal(t, filepath.Join(dir, "nested", "out.2.log"), path2)
}

func TestRotationWithoutBuilder(t *testing.T) {
	r := newRotation(nil)
	w, path, err := r.Open(1)
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Empty(t, path)
	assert.NoError(t, r.Flush())
}
