package wiredump

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndClear(t *testing.T) {
	dir := New(filepath.Join(t.TempDir(), "traces"))

	dir.Write("page_request_headers", "Accept: text/html")
	dir.Write("page_response_body", "<html></html>")

	contents, err := os.ReadFile(filepath.Join(dir.Path(), "page_request_headers.txt"))
	require.NoError(t, err)
	require.Equal(t, "Accept: text/html", string(contents))

	entries, err := os.ReadDir(dir.Path())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	dir.Clear()

	entries, err = os.ReadDir(dir.Path())
	require.NoError(t, err)
	require.Empty(t, entries)

	dir.Write("page_request_headers", "Accept: */*")
	contents, err = os.ReadFile(filepath.Join(dir.Path(), "page_request_headers.txt"))
	require.NoError(t, err)
	require.Equal(t, "Accept: */*", string(contents))
}

func TestWriteReplaces(t *testing.T) {
	dir := New(t.TempDir())

	dir.Write("page_response_body", "first")
	dir.Write("page_response_body", "second")

	contents, err := os.ReadFile(filepath.Join(dir.Path(), "page_response_body.txt"))
	require.NoError(t, err)
	require.Equal(t, "second", string(contents))
}

func TestNilDirIsInert(t *testing.T) {
	var dir *Dir
	dir.Write("page_request_headers", "x")
	dir.Clear()
	require.Equal(t, "", dir.Path())
}
