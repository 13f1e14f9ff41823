// Package wiredump persists request/response traces for a scraper
// instance as plain text files in a per-instance directory.
package wiredump

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Dir writes trace files into a single directory. Writes are best effort:
// failures are logged at warn and never escalate to the caller. A nil
// *Dir discards everything, so callers can hold one unconditionally.
type Dir struct {
	path string
}

// New creates the trace directory, parents included, and returns a Dir
// writing into it.
func New(path string) *Dir {
	err := os.MkdirAll(path, 0755)
	if err != nil {
		slog.Warn("failed to create wiredump directory", "dir", path, "err", err)
	}
	return &Dir{path: path}
}

func (d *Dir) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// Clear empties the directory so it only ever holds the latest exchange.
func (d *Dir) Clear() {
	if d == nil {
		return
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		slog.Warn("failed to list wiredump directory", "dir", d.path, "err", err)
		return
	}
	for _, entry := range entries {
		err := os.RemoveAll(filepath.Join(d.path, entry.Name()))
		if err != nil {
			slog.Warn(
				"failed to remove wiredump file",
				"dir", d.path,
				"file", entry.Name(),
				"err", err,
			)
		}
	}
}

// Write stores contents under <name>.txt, replacing any previous file of
// the same name.
func (d *Dir) Write(name, contents string) {
	if d == nil {
		return
	}
	target := filepath.Join(d.path, name+".txt")
	err := os.WriteFile(target, []byte(contents), 0644)
	if err != nil {
		slog.Warn("failed to write wiredump file", "file", target, "err", err)
	}
}
