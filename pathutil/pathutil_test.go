package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExistingAncestor(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0666))

	testCases := []struct {
		in  string
		out string
	}{
		{dir, dir},
		{file, file},
		{filepath.Join(dir, "missing"), dir},
		{filepath.Join(dir, "missing", "deeper", "still"), dir},
		{filepath.Join(file, "impossible"), file},
		{"/", "/"},
	}
	for _, tc := range testCases {
		t.Run("", func(t *testing.T) {
			require.Equal(t, tc.out, ExistingAncestor(tc.in))
		})
	}
}

func TestSameFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0666))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0666))
	require.NoError(t, os.Link(a, link))

	require.True(t, SameFile(a, link))
	require.False(t, SameFile(a, b))
	require.False(t, SameFile(a, filepath.Join(dir, "missing")))

	// Equal and empty names are never the same file; the comparison only
	// means something for two distinct names.
	require.False(t, SameFile(a, a))
	require.False(t, SameFile(a, ""))
	require.False(t, SameFile("", ""))
}

func TestForFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0666))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got := ForFile(f)
	if got == "" {
		t.Skip("descriptor path resolution not supported on this platform")
	}
	want, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// The resolved path follows the file across a rename.
	renamed := filepath.Join(dir, "g")
	require.NoError(t, os.Rename(path, renamed))
	want, err = filepath.EvalSymlinks(renamed)
	require.NoError(t, err)
	require.Equal(t, want, ForFile(f))
}

func TestForFileNil(t *testing.T) {
	require.Equal(t, "", ForFile(nil))
}
