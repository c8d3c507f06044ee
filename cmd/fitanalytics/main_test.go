package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitFilesExpandsDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "2026")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	for _, name := range []string{
		filepath.Join(dir, "a.fit"),
		filepath.Join(nested, "b.FIT"),
		filepath.Join(nested, "notes.txt"),
	} {
		require.NoError(t, os.WriteFile(name, nil, 0o644))
	}
	single := filepath.Join(t.TempDir(), "c.fit")
	require.NoError(t, os.WriteFile(single, nil, 0o644))

	got, err := fitFiles([]string{dir, single})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.fit"),
		filepath.Join(nested, "b.FIT"),
		single,
	}, got)

	_, err = fitFiles([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
