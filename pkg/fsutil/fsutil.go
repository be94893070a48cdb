// Package fsutil implements the filesystem hardening primitives the vault
// relies on: directories created under a configured base are mode 0700,
// files are written mode 0600 at open time (not chmod'd afterward), and any
// path resolving outside its configured base is rejected before it touches
// disk.
//
// Grounded on original_source/src/utils/fs.rs (secure_create_dir_all,
// secure_write), generalized with an explicit scope check since passd's
// relative_path values are attacker-influenced RPC input.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrScopeViolation is returned when a path would resolve outside its
// configured base directory, e.g. via ".." segments in a relative_path.
var ErrScopeViolation = errors.New("path escapes configured base directory")

const (
	dirMode  os.FileMode = 0700
	fileMode os.FileMode = 0600
)

// WithinBase resolves path relative to base and returns the cleaned
// absolute path, failing with ErrScopeViolation if it would escape base.
func WithinBase(base, path string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil {
		return "", ErrScopeViolation
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrScopeViolation
	}
	return absPath, nil
}

// SecureCreateDirAll creates path (and any missing parents up to base) with
// mode 0700 on every created component, rejecting paths outside base.
func SecureCreateDirAll(base, path string) error {
	absPath, err := WithinBase(base, path)
	if err != nil {
		return err
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(absPath, dirMode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", absPath, err)
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == "." {
		return nil
	}
	current := absBase
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		if err := os.Chmod(current, dirMode); err != nil {
			return fmt.Errorf("failed to secure directory %s: %w", current, err)
		}
	}
	return nil
}

// SecureWrite writes data to path with mode 0600 set at open time,
// truncating any existing file. The parent directory must already exist.
func SecureWrite(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// IsSecureDir reports whether path exists, is a directory, and is mode
// 0700.
func IsSecureDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	return info.Mode().Perm() == dirMode
}

// IsSecureFile reports whether path exists, is a regular file, and is mode
// 0600.
func IsSecureFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm() == fileMode
}

// Exists reports whether path exists, regardless of type.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
