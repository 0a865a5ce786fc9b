// Package fsutil provides filesystem helpers for the acquisition engine:
// atomic file placement, permission constants and free-space probing.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// File and directory permission constants.
const (
	// FileModeDefault is the mode for installed model files. Models are
	// world-readable data, never executable.
	FileModeDefault = 0o644 // -rw-r--r--
	// FileModeTemp is the mode for in-flight partial files.
	FileModeTemp = 0o600 // -rw-------

	// DirModeDefault is the mode for the model tree's category directories.
	DirModeDefault = 0o755 // drwxr-xr-x
	// DirModePrivate is the mode for the temp namespace.
	DirModePrivate = 0o700 // drwx------
)

// Move moves a file from src to dst, creating dst's parent directories.
// It attempts an atomic os.Rename first and falls back to copy+delete when
// the rename crosses a filesystem boundary. Partial state is never visible
// at dst: the fallback copies into a sibling temp file and renames that.
func Move(src, dst string) error {
	if src == "" || dst == "" {
		return fmt.Errorf("source and destination paths cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dst), DirModeDefault); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossFilesystemError(err) {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}

	// Cross-filesystem: copy next to the destination, then rename within the
	// destination filesystem so the final placement stays atomic.
	staging := dst + ".moving"
	if err := Copy(src, staging); err != nil {
		_ = os.Remove(staging)
		return err
	}
	if err := os.Rename(staging, dst); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("failed to finalize cross-device move to %s: %w", dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove source %s after move: %w", src, err)
	}
	return nil
}

// isCrossFilesystemError reports whether an os.Rename failure indicates a
// cross-device link that requires the copy fallback.
func isCrossFilesystemError(err error) bool {
	if err == nil {
		return false
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errno, ok := linkErr.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return isCrossFilesystemError(pathErr.Err)
	}
	return strings.Contains(strings.ToLower(err.Error()), "cross-device")
}

// Copy copies the contents of srcFile to dstFile and fsyncs the result.
func Copy(srcFile, dstFile string) error {
	src, err := os.Open(srcFile)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", srcFile, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, FileModeDefault)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dstFile, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy from %s to %s: %w", srcFile, dstFile, err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", dstFile, err)
	}
	return nil
}

// FreeSpace returns the number of bytes available to unprivileged writes on
// the filesystem containing dir.
func FreeSpace(dir string) (int64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("failed to stat filesystem at %s: %w", dir, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}

// RemoveIfEmpty deletes dir when it contains no entries. Non-empty or
// missing directories are left alone.
func RemoveIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}
