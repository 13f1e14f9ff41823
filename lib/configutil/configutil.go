// Package configutil loads json5 configuration files with optional
// `.local` overrides, the convention every pagewatch binary follows.
package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// localPath derives the override path for a config file, e.g.
// pagewatch.json5 -> pagewatch.local.json5.
func localPath(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// readInto parses one json5 file into dst. A missing or empty file
// reports found=false rather than an error.
func readInto(path string, dst any) (found bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json5.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// ReadConfig loads <name> and merges <name-without-ext>.local.<ext> over
// it, field by field. Returns os.ErrNotExist when neither file holds
// anything.
func ReadConfig[T any](name string) (T, error) {
	var out T

	foundBase, err := readInto(name, &out)
	if err != nil {
		return out, err
	}

	local := localPath(name)
	var override T
	foundLocal, err := readInto(local, &override)
	if err != nil {
		return out, err
	}
	if foundLocal {
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Debug("applied local config overrides", "local", local)
	}

	if !foundBase && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadRecursively walks from the working directory up to the filesystem
// root looking for a config named `name`, so commands work from any
// subdirectory of a pagewatch project.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	dir, err := os.Getwd()
	if err != nil {
		return zero, err
	}

	for {
		config, err := ReadConfig[T](filepath.Join(dir, name))
		if err == nil {
			return config, nil
		}
		if !os.IsNotExist(err) {
			return zero, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return zero, os.ErrNotExist
		}
		dir = parent
	}
}
