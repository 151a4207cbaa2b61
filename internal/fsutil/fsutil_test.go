// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()

	got, err := ConfineRelPath(root, "item-1/res.mp4")
	require.NoError(t, err)
	realRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, filepath.Join(realRoot, "item-1", "res.mp4"), got)

	for _, bad := range []string{"../x", "..", "/etc/passwd", `a\b`} {
		_, err := ConfineRelPath(root, bad)
		assert.ErrorIs(t, err, ErrEscapesRoot, bad)
	}
}

func TestConfineRelPath_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := ConfineRelPath(root, "link/file")
	assert.ErrorIs(t, err, ErrEscapesRoot)
}

func TestConfineRelPath_MissingParents(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media")

	got, err := ConfineRelPath(root, "item-1/sub/res.mp4")
	require.NoError(t, err)
	assert.Equal(t, "res.mp4", filepath.Base(got))
	assert.Equal(t, "sub", filepath.Base(filepath.Dir(got)))
}

func TestRemoveConfined(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "item-1")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o600))

	require.NoError(t, RemoveConfined(root, "item-1"))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// Idempotent.
	assert.NoError(t, RemoveConfined(root, "item-1"))
	assert.Error(t, RemoveConfined(root, "."))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "task_42", SafeName("task_42"))
	assert.Equal(t, "a.b-c", SafeName("a.b-c"))

	for _, id := range []string{"", "..", "../escape", "a/b", ".hidden", "ünïcode"} {
		name := SafeName(id)
		assert.Regexp(t, `^id-[0-9a-f]{64}$`, name, id)
	}
	assert.NotEqual(t, SafeName("a/b"), SafeName("a/c"))

	hashed := SafeName("a/b")
	assert.NotEqual(t, hashed, SafeName(hashed), "hashed names are not passed through")
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")

	n, err := WriteAtomic(path, bytes.NewReader([]byte("frames")), 0o644)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no pending files left behind")
	assert.True(t, entries[0].Type().IsRegular())
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_id")
	require.NoError(t, WriteFileAtomic(path, []byte("abc"), 0o600))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}
