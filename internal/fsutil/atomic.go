// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// WriteAtomic streams r into path. Readers never observe a partial file: data
// goes to a pending file in the same directory which is fsynced and renamed
// over path only after the copy succeeded.
func WriteAtomic(path string, r io.Reader, perm os.FileMode) (int64, error) {
	pending, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(perm),
	)
	if err != nil {
		return 0, fmt.Errorf("create pending file: %w", err)
	}
	// No-op once CloseAtomicallyReplace succeeded.
	defer func() { _ = pending.Cleanup() }()

	n, err := io.Copy(pending, r)
	if err != nil {
		return n, fmt.Errorf("write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return n, fmt.Errorf("atomically replace %s: %w", filepath.Base(path), err)
	}
	return n, nil
}

// WriteFileAtomic is WriteAtomic for an in-memory payload.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm, renameio.WithTempDir(filepath.Dir(path)))
}
