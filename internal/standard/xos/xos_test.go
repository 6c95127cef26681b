// Copyright 2026 Peter Edge
//
// All rights reserved.

package xos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	t.Parallel()
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	path, err := ExpandHome("~/ibjasper")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(homeDir, "ibjasper"), path)
	path, err = ExpandHome("~")
	require.NoError(t, err)
	require.Equal(t, homeDir, path)
	path, err = ExpandHome("relative/~path")
	require.NoError(t, err)
	require.Equal(t, "relative/~path", path)
	path, err = ExpandHome("~other")
	require.NoError(t, err)
	require.Equal(t, "~other", path)
}

func TestFilePathsWithSuffix(t *testing.T) {
	t.Parallel()
	dirPath := t.TempDir()
	for _, relPath := range []string{
		"b.csv",
		"a/2023.CSV",
		"a/notes.txt",
		"a/b/c/2022.csv",
	} {
		filePath := filepath.Join(dirPath, relPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o600))
	}
	filePaths, err := FilePathsWithSuffix(dirPath, ".csv")
	require.NoError(t, err)
	require.Equal(
		t,
		[]string{
			filepath.Join(dirPath, "a", "2023.CSV"),
			filepath.Join(dirPath, "a", "b", "c", "2022.csv"),
			filepath.Join(dirPath, "b.csv"),
		},
		filePaths,
	)
	filePaths, err = FilePathsWithSuffix(filepath.Join(dirPath, "missing"), ".csv")
	require.NoError(t, err)
	require.Empty(t, filePaths)
}
