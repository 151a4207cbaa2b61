// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil keeps media paths confined under their root and writes
// files atomically.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path would leave its root directory.
var ErrEscapesRoot = errors.New("path escapes root")

// ConfineRelPath joins rel onto root and returns the symlink-resolved
// result, failing with ErrEscapesRoot unless it stays under root. rel must
// be relative and slash-separated. A missing root or target is allowed so
// callers can confine paths they are about to create.
func ConfineRelPath(root, rel string) (string, error) {
	clean := filepath.Clean(rel)
	switch {
	case strings.ContainsRune(rel, '\\'):
		return "", fmt.Errorf("%w: backslash in %q", ErrEscapesRoot, rel)
	case filepath.IsAbs(clean):
		return "", fmt.Errorf("%w: %q is absolute", ErrEscapesRoot, rel)
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return "", fmt.Errorf("%w: %q climbs out", ErrEscapesRoot, rel)
	}

	base, err := resolveExisting(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	target, err := resolveExisting(filepath.Join(base, clean))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", rel, err)
	}
	if !within(base, target) {
		return "", fmt.Errorf("%w via symlink: %s", ErrEscapesRoot, target)
	}
	return target, nil
}

// resolveExisting evaluates symlinks on the longest existing prefix of p
// and re-appends the missing tail.
func resolveExisting(p string) (string, error) {
	p, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(append([]string{p}, tail...)...), nil
		}
		tail = append([]string{filepath.Base(p)}, tail...)
		p = parent
	}
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// RemoveConfined deletes root/rel recursively. Removing root itself is
// refused and a missing target is not an error.
func RemoveConfined(root, rel string) error {
	if filepath.Clean(rel) == "." {
		return fmt.Errorf("%w: refusing to remove root %s", ErrEscapesRoot, root)
	}
	path, err := ConfineRelPath(root, rel)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
